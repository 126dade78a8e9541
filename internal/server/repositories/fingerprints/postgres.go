// Package fingerprints persists perceptual hashes of accepted images.
package fingerprints

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, fp *models.ImageFingerprint) error {
	query, args, err := psql.Insert("image_fingerprints").
		Columns("document_id", "document_type", "hash", "path").
		Values(fp.DocumentID, fp.DocumentType, fp.Hash, fp.Path).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByType returns fingerprints of docType, skipping those of excludeID
// when set.
func (r *PostgresRepository) ListByType(ctx context.Context, docType string, excludeID *int64) ([]models.ImageFingerprint, error) {
	b := psql.Select("id", "document_id", "document_type", "hash", "path", "created_at").
		From("image_fingerprints").
		Where(sq.Eq{"document_type": docType})
	if excludeID != nil {
		b = b.Where(sq.NotEq{"document_id": *excludeID})
	}
	query, args, err := b.OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ImageFingerprint
	for rows.Next() {
		var f models.ImageFingerprint
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.DocumentType, &f.Hash, &f.Path, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
