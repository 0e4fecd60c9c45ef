package repomanager

import (
	"context"
	"database/sql"

	"github.com/ztmed/emrsearch/internal/dbx"
	"github.com/ztmed/emrsearch/internal/server/repositories/envelopekeys"
	"github.com/ztmed/emrsearch/internal/server/repositories/grants"
	"github.com/ztmed/emrsearch/internal/server/repositories/index"
	"github.com/ztmed/emrsearch/internal/server/repositories/records"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Index(db dbx.DBTX) index.Repository
	EnvelopeKeys(db dbx.DBTX) envelopekeys.Repository
	Grants(db dbx.DBTX) grants.Repository
	Records(db dbx.DBTX) records.Repository
}
