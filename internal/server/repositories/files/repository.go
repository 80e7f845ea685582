package files

import (
	"context"

	"github.com/avezhov/filestorage/internal/server/models"
)

// Repository persists file records. Get resolves a record by uuid or path
// (uuid wins when both are supplied); CreateOrUpdate is the single
// synchronization point deciding replace-vs-create for an upload.
type Repository interface {
	Get(ctx context.Context, userID int64, uuid, path string) (*models.File, error)
	Create(ctx context.Context, file *models.File) (*models.File, error)
	Update(ctx context.Context, userID int64, path string, size int64) (*models.File, error)
	CreateOrUpdate(ctx context.Context, file *models.File) (*models.File, bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.File, error)
}
