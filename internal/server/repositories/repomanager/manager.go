package repomanager

import (
	"context"
	"database/sql"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/completions"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/documents"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/fingerprints"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/images"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Documents(db dbx.DBTX) documents.Repository
	Images(db dbx.DBTX) images.Repository
	Fingerprints(db dbx.DBTX) fingerprints.Repository
	Completions(db dbx.DBTX) completions.Repository
}
