package images

import (
	"context"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, img *models.DocumentImage) error
	ListByDocument(ctx context.Context, documentID int64) ([]models.DocumentImage, error)
}
