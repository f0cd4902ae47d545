package models

import "time"

// ConsentRecord is one row of the append-only consent ledger. Withdrawing a
// purpose never deletes history: the active grant gets its WithdrawnAt set
// and the ledger keeps every prior record.
type ConsentRecord struct {
	ID           string
	UserID       string
	Purpose      string
	Granted      bool
	GrantedAt    time.Time
	WithdrawnAt  *time.Time
	RequestIP    string
	RequestAgent string
}

// Active reports whether this record represents a currently effective grant.
func (c *ConsentRecord) Active() bool {
	return c.Granted && c.WithdrawnAt == nil
}
