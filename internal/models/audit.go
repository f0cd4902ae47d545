package models

import "time"

// AuditEntry is an append-only record of a privacy-relevant action. UserID is
// nullable: entries written after a full account erasure keep the former
// identifier in Details instead, and the row itself is retained for
// legal-compliance reasons.
type AuditEntry struct {
	ID         string
	UserID     *string
	Action     string
	Details    map[string]any
	IP         string
	OccurredAt time.Time
}
