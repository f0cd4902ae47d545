package friendships

import (
	"context"

	"fellis.eu/internal/models"
)

// Repository manages bidirectional friendship edges. Every mutating
// operation touches both directions in a single statement, so the pair is
// atomic without a cross-statement transaction.
type Repository interface {
	// Befriend inserts both (a→b) and (b→a) edges with the given provenance
	// tag. Existing edges are silently ignored.
	Befriend(ctx context.Context, userID, friendID, source string) error

	// Unfriend removes both directions of the edge.
	Unfriend(ctx context.Context, userID, friendID string) error

	// DeleteBySource removes every edge touching the user that carries the
	// provenance tag, in both directions, and returns the rows deleted.
	DeleteBySource(ctx context.Context, userID, source string) (int64, error)

	ListByUser(ctx context.Context, userID string) ([]*models.Friendship, error)
}
