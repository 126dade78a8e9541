package documents

import (
	"context"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) (int64, error)
	Get(ctx context.Context, id int64) (*models.Document, error)
	Delete(ctx context.Context, id int64) error
	ListTextCandidates(ctx context.Context, docType string, excludeID *int64) ([]models.TextCandidate, error)
}
