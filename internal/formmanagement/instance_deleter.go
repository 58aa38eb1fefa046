package formmanagement

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/repositories/forms"
	"github.com/nexusforms/collect/internal/repositories/instances"
	"github.com/nexusforms/collect/internal/storagepath"
)

// InstanceDeleter removes an instance and its folder.
type InstanceDeleter struct {
	instances instances.Repository
	forms     forms.Repository
	paths     *storagepath.Provider
	log       logging.Logger
}

func NewInstanceDeleter(i instances.Repository, f forms.Repository, paths *storagepath.Provider, log logging.Logger) *InstanceDeleter {
	return &InstanceDeleter{instances: i, forms: f, paths: paths, log: log}
}

// Delete removes the instance folder. Submitted instances keep their row
// (soft delete) as proof of submission; others are hard-deleted. A
// soft-deleted form left without instances is then removed.
func (d *InstanceDeleter) Delete(ctx context.Context, id int64) error {
	inst, err := d.instances.Get(ctx, id)
	if err != nil {
		return err
	}

	if inst.InstanceFilePath != "" {
		dir := filepath.Dir(d.paths.AbsolutePath(inst.InstanceFilePath))
		if dir != d.paths.InstancesDir() && dir != d.paths.Root() {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to delete instance folder: %w", err)
			}
		}
	}

	if inst.Status == models.StatusSubmitted {
		if !inst.IsDeleted() {
			err = d.instances.SoftDelete(ctx, id)
		}
	} else {
		err = d.instances.Delete(ctx, id)
	}
	if err != nil {
		return err
	}
	d.log.Info(ctx, "instance deleted", "id", id, "path", inst.InstanceFilePath, "status", inst.Status)

	form, err := d.forms.GetLatestByFormIDAndVersion(ctx, inst.JrFormID, inst.JrVersion)
	if err != nil {
		return fmt.Errorf("failed to look up form: %w", err)
	}
	if form == nil || !form.Deleted {
		return nil
	}
	remaining, err := d.instances.GetAllNotDeletedByFormIDAndVersion(ctx, inst.JrFormID, inst.JrVersion)
	if err != nil {
		return fmt.Errorf("failed to list instances of form: %w", err)
	}
	if len(remaining) == 0 {
		if err := d.forms.Delete(ctx, form.ID); err != nil {
			return err
		}
		d.log.Info(ctx, "removed soft-deleted form", "id", form.ID, "form_id", form.JrFormID)
	}
	return nil
}
