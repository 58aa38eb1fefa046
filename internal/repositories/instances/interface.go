package instances

import (
	"context"

	"github.com/nexusforms/collect/internal/models"
)

// Repository describes lookups and lifecycle operations for Instance rows.
type Repository interface {
	// Get returns the instance with the given id, including soft-deleted rows.
	Get(ctx context.Context, id int64) (*models.Instance, error)

	// GetOneByPath returns the instance stored for the given instance file
	// path (relative to the storage root), or nil when there is none.
	GetOneByPath(ctx context.Context, path string) (*models.Instance, error)

	// GetAllNotDeleted returns every instance without a deleted date.
	GetAllNotDeleted(ctx context.Context) ([]*models.Instance, error)

	// GetAllByStatus returns non-deleted instances in any of the statuses.
	GetAllByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Instance, error)

	// GetAllNotDeletedByFormIDAndVersion returns non-deleted instances of a form.
	GetAllNotDeletedByFormIDAndVersion(ctx context.Context, formID, version string) ([]*models.Instance, error)

	// Save inserts the instance when ID is zero, otherwise updates it, and
	// returns the stored record.
	Save(ctx context.Context, instance *models.Instance) (*models.Instance, error)

	// Delete removes the row.
	Delete(ctx context.Context, id int64) error

	// SoftDelete stamps the deleted date and clears geometry.
	SoftDelete(ctx context.Context, id int64) error
}
