package completions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `^INSERT INTO completions \(idempotency_key,document_id,object_keys\) VALUES \(\$1,\$2,\$3\) ON CONFLICT \(idempotency_key\) DO NOTHING$`

func TestInsert_Claims(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := int64(9)
	mock.ExpectExec(insertQ).
		WithArgs("session:abc", &id, "k1\nk2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Insert(context.Background(), &models.Completion{
		IdempotencyKey: "session:abc", DocumentID: &id, ObjectKeys: []string{"k1", "k2"},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_AlreadyClaimed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Insert(context.Background(), &models.Completion{IdempotencyKey: "keys:x", ObjectKeys: []string{"k"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`^SELECT idempotency_key, document_id, object_keys, created_at FROM completions WHERE idempotency_key = \$1$`).
		WithArgs("session:abc").
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key", "document_id", "object_keys", "created_at"}).
			AddRow("session:abc", int64(9), "k1\nk2", now))

	c, err := repo.Get(context.Background(), "session:abc")
	require.NoError(t, err)
	require.NotNil(t, c.DocumentID)
	assert.Equal(t, int64(9), *c.DocumentID)
	assert.Equal(t, []string{"k1", "k2"}, c.ObjectKeys)
}

func TestGet_NullDocument(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM completions`).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key", "document_id", "object_keys", "created_at"}).
			AddRow("keys:x", nil, "k1", time.Now()))

	c, err := repo.Get(context.Background(), "keys:x")
	require.NoError(t, err)
	assert.Nil(t, c.DocumentID)
	assert.Equal(t, []string{"k1"}, c.ObjectKeys)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM completions`).WillReturnError(sql.ErrNoRows)
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

const attachQ = `^UPDATE completions SET document_id = \$1 WHERE idempotency_key = \$2$`

func TestAttachDocument(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(attachQ).
		WithArgs(int64(12), "keys:abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AttachDocument(context.Background(), "keys:abc", 12))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachDocument_NotClaimed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(attachQ).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachDocument(context.Background(), "keys:missing", 12)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
