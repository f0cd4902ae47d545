// Package media abstracts where uploaded and imported media bytes live.
package media

import "context"

// Store persists media objects under caller-chosen filenames and returns the
// path used to reference them from entity rows.
type Store interface {
	// Save writes the bytes and returns the storage path.
	Save(ctx context.Context, data []byte, filename string) (string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, path string) (bool, error)
}
