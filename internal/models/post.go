package models

import "time"

// Provenance tags for imported entities. Rows tagged SourceNative are never
// touched by source-scoped erasure.
const (
	SourceNative        = "native"
	SourceExternal      = "external"
	SourceExternalPost  = "external_post"
	SourceExternalPhoto = "external_photo"
)

// Post is a feed entry, natively created or materialized by the import
// pipeline. MediaPath points at the single attached media object, if any.
type Post struct {
	ID        string
	UserID    string
	Body      string
	MediaPath *string
	Source    string
	CreatedAt time.Time
}

// Friendship is one direction of a bidirectional edge. Both directions are
// always created and removed together.
type Friendship struct {
	UserID    string
	FriendID  string
	Source    string
	CreatedAt time.Time
}
