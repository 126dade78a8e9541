// Package completions records which confirmations already happened so that
// a retried confirm never creates a second document.
package completions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

// Object keys never contain a newline.
const keySep = "\n"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert claims c.IdempotencyKey. It reports false without error when the
// key was claimed before. A concurrent claim of the same key waits for the
// other transaction and then reports false.
func (r *PostgresRepository) Insert(ctx context.Context, c *models.Completion) (bool, error) {
	query, args, err := psql.Insert("completions").
		Columns("idempotency_key", "document_id", "object_keys").
		Values(c.IdempotencyKey, c.DocumentID, strings.Join(c.ObjectKeys, keySep)).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*models.Completion, error) {
	query, args, err := psql.Select("idempotency_key", "document_id", "object_keys", "created_at").
		From("completions").
		Where(sq.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		c    models.Completion
		id   sql.NullInt64
		keys string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&c.IdempotencyKey, &id, &keys, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if id.Valid {
		c.DocumentID = &id.Int64
	}
	if keys != "" {
		c.ObjectKeys = strings.Split(keys, keySep)
	}
	return &c, nil
}

// AttachDocument records the document a claimed completion produced.
func (r *PostgresRepository) AttachDocument(ctx context.Context, key string, documentID int64) error {
	query, args, err := psql.Update("completions").
		Set("document_id", documentID).
		Where(sq.Eq{"idempotency_key": key}).
		ToSql()
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
