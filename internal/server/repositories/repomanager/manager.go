package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/flaxvault/internal/dbx"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/objects"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code path
// works on a plain connection or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Objects(db dbx.DBTX) objects.Repository
	Permissions(db dbx.DBTX) permissions.Repository
}
