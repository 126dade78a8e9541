// Package documents persists document records.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository implements document storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts doc and returns the generated id.
func (r *PostgresRepository) Create(ctx context.Context, doc *models.Document) (int64, error) {
	status := doc.Status
	if status == "" {
		status = models.DocumentActive
	}
	query, args, err := psql.Insert("documents").
		Columns("doc_type", "title", "uploaded_by", "content", "content_signature", "status").
		Values(doc.DocType, doc.Title, doc.UploadedBy, doc.Content, doc.ContentSignature, status).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Document, error) {
	query, args, err := psql.Select("id", "doc_type", "title", "uploaded_by", "content", "content_signature", "status", "created_at").
		From("documents").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d models.Document
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&d.ID, &d.DocType, &d.Title, &d.UploadedBy, &d.Content, &d.ContentSignature, &d.Status, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &d, nil
}

// Delete removes the document; images and fingerprints cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("documents").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListTextCandidates returns documents of docType that carry text, skipping
// excludeID when set.
func (r *PostgresRepository) ListTextCandidates(ctx context.Context, docType string, excludeID *int64) ([]models.TextCandidate, error) {
	b := psql.Select("id", "title", "content", "content_signature").
		From("documents").
		Where(sq.Eq{"doc_type": docType}).
		Where(sq.NotEq{"content": ""})
	if excludeID != nil {
		b = b.Where(sq.NotEq{"id": *excludeID})
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

	var result []models.TextCandidate
	for rows.Next() {
		var c models.TextCandidate
		if err := rows.Scan(&c.DocumentID, &c.Title, &c.Content, &c.Signature); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
