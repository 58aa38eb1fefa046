package formmanagement

import (
	"context"
	"fmt"

	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/repositories/forms"
	"github.com/nexusforms/collect/internal/repositories/instances"
	"github.com/nexusforms/collect/internal/storagepath"
)

// FormDeleter deletes form rows, soft-deleting when instances still need
// the row.
type FormDeleter struct {
	forms     forms.Repository
	instances instances.Repository
	paths     *storagepath.Provider
	log       logging.Logger
}

func NewFormDeleter(f forms.Repository, i instances.Repository, paths *storagepath.Provider, log logging.Logger) *FormDeleter {
	return &FormDeleter{forms: f, instances: i, paths: paths, log: log}
}

// Delete hard-deletes the form when no instance uses its (form id, version)
// or when another form row shares that pair; otherwise it soft-deletes.
// It reports whether the row was hard-deleted.
func (d *FormDeleter) Delete(ctx context.Context, id int64) (bool, error) {
	form, err := d.forms.Get(ctx, id)
	if err != nil {
		return false, err
	}

	used, err := d.instances.GetAllNotDeletedByFormIDAndVersion(ctx, form.JrFormID, form.JrVersion)
	if err != nil {
		return false, fmt.Errorf("failed to list instances of form: %w", err)
	}
	same, err := d.forms.GetAllByFormIDAndVersion(ctx, form.JrFormID, form.JrVersion)
	if err != nil {
		return false, fmt.Errorf("failed to list forms with same version: %w", err)
	}

	if len(used) == 0 || len(same) > 1 {
		if err := d.forms.Delete(ctx, id); err != nil {
			return false, err
		}
		if form.FormFilePath != "" {
			p := d.paths.AbsolutePath(form.FormFilePath)
			if err := filex.DeleteIfExists(p); err != nil {
				d.log.Warn(ctx, "failed to delete form definition", "path", p, "error", err)
			}
		}
		d.log.Info(ctx, "form deleted", "id", id, "form_id", form.JrFormID, "version", form.JrVersion)
		return true, nil
	}

	if err := d.forms.SoftDelete(ctx, id); err != nil {
		return false, err
	}
	d.log.Info(ctx, "form soft deleted", "id", id, "form_id", form.JrFormID, "instances", len(used))
	return false, nil
}
