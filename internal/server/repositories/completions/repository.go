package completions

import (
	"context"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, c *models.Completion) (bool, error)
	Get(ctx context.Context, key string) (*models.Completion, error)
	AttachDocument(ctx context.Context, key string, documentID int64) error
}
