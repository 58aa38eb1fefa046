package forms

import (
	"context"

	"github.com/nexusforms/collect/internal/models"
)

// Repository describes lookups and lifecycle operations for Form rows.
type Repository interface {
	// Get returns the form with the given id, including soft-deleted rows.
	Get(ctx context.Context, id int64) (*models.Form, error)

	// GetAll returns every non-deleted form ordered by display name.
	GetAll(ctx context.Context) ([]*models.Form, error)

	// GetAllByFormID returns all rows for a form id, newest first.
	GetAllByFormID(ctx context.Context, formID string) ([]*models.Form, error)

	// GetAllByFormIDAndVersion returns all rows sharing (formID, version).
	GetAllByFormIDAndVersion(ctx context.Context, formID, version string) ([]*models.Form, error)

	// GetLatestByFormIDAndVersion returns the newest row for (formID, version),
	// preferring non-deleted rows, or nil when none exists.
	GetLatestByFormIDAndVersion(ctx context.Context, formID, version string) (*models.Form, error)

	// Save inserts a form when ID is zero, otherwise updates it.
	Save(ctx context.Context, form *models.Form) (*models.Form, error)

	// Delete removes the row.
	Delete(ctx context.Context, id int64) error

	// SoftDelete marks the row deleted and keeps it for instance lookups.
	SoftDelete(ctx context.Context, id int64) error
}
