package repomanager

import (
	"context"
	"database/sql"

	"fellis.eu/internal/dbx"
	"fellis.eu/internal/repositories/audit"
	"fellis.eu/internal/repositories/consents"
	"fellis.eu/internal/repositories/friendships"
	"fellis.eu/internal/repositories/posts"
	"fellis.eu/internal/repositories/sessions"
	"fellis.eu/internal/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run the same repository code inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Consents(db dbx.DBTX) consents.Repository
	Audit(db dbx.DBTX) audit.Repository
	Posts(db dbx.DBTX) posts.Repository
	Friendships(db dbx.DBTX) friendships.Repository
}
