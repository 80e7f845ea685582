package repomanager

import (
	"context"
	"database/sql"

	"github.com/avezhov/filestorage/internal/dbx"
	"github.com/avezhov/filestorage/internal/server/repositories/files"
	"github.com/avezhov/filestorage/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them either directly on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Files(db dbx.DBTX) files.Repository
}
