package fingerprints

import (
	"context"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, fp *models.ImageFingerprint) error
	ListByType(ctx context.Context, docType string, excludeID *int64) ([]models.ImageFingerprint, error)
}
