package models

import "time"

// Session is a server-side login session. Expired rows are removed by the
// retention sweeper.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
