// Package images persists the object references attached to documents.
package images

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create attaches an object to a document. An object key that is already
// attached anywhere yields ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, img *models.DocumentImage) error {
	query, args, err := psql.Insert("document_images").
		Columns("document_id", "object_key", "public_url", "position").
		Values(img.DocumentID, img.ObjectKey, img.PublicURL, img.Position).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, args...).Scan(&img.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("object %s: %w", img.ObjectKey, common.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID int64) ([]models.DocumentImage, error) {
	query, args, err := psql.Select("id", "document_id", "object_key", "public_url", "position", "created_at").
		From("document_images").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.DocumentImage
	for rows.Next() {
		var i models.DocumentImage
		if err := rows.Scan(&i.ID, &i.DocumentID, &i.ObjectKey, &i.PublicURL, &i.Position, &i.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
