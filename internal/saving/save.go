// Package saving writes a form session to disk, finalizes it and keeps the
// instance row in step with the files.
package saving

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/encryption"
	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/geometry"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/repositories/forms"
	"github.com/nexusforms/collect/internal/repositories/instances"
	"github.com/nexusforms/collect/internal/storagepath"
	"github.com/nexusforms/collect/internal/xform"
)

// Encrypter is the part of the encryption engine the disk writer uses.
type Encrypter interface {
	Encrypt(ctx context.Context, instanceXML, submissionXML string, info *encryption.FormInfo) error
	DeletePlaintextFiles(ctx context.Context, instanceXML, lastSaved string) bool
}

// Dependencies are the collaborators shared by every save.
type Dependencies struct {
	Instances  instances.Repository
	Forms      forms.Repository
	Encryption Encrypter
	Paths      *storagepath.Provider
	Log        logging.Logger
}

// SaveFormToDisk saves one session. A value is used for a single SaveForm
// call.
type SaveFormToDisk struct {
	Dependencies

	Session        xform.FormSession
	SaveAndExit    bool
	ShouldFinalize bool
	// UpdatedName is the display name chosen by the user. A non-empty
	// meta/instanceName in the instance wins over it.
	UpdatedName string
	// FormID is the form row the session was opened from, or zero when it
	// was opened from an existing instance.
	FormID int64
	// TempFiles are replaced media files to delete before writing.
	TempFiles []string

	progress ProgressListener
	form     *models.Form
	formRead bool
}

// SaveForm runs validation, writes the instance and, when finalizing,
// builds and optionally encrypts the submission.
func (t *SaveFormToDisk) SaveForm(ctx context.Context, progress ProgressListener) Result {
	if progress == nil {
		progress = ProgressFunc(func(string) {})
	}
	t.progress = progress

	t.progress.OnProgressStep(StepValidating)
	validation, err := t.Session.ValidateAnswers(t.ShouldFinalize)
	if err != nil {
		return Result{Code: SaveError, Message: err.Error()}
	}
	if !validation.OK() {
		return Result{Code: ValidationFailed, Message: validation.Message, Validation: &validation}
	}

	if t.ShouldFinalize {
		if err := t.Session.PostProcess(); err != nil {
			return Result{Code: SaveError, Message: err.Error()}
		}
	}

	t.progress.OnProgressStep(StepCollecting)
	name := t.UpdatedName
	if md := t.Session.SubmissionMetadata(); md.InstanceName != "" {
		name = md.InstanceName
	}

	for _, f := range t.TempFiles {
		if err := filex.DeleteIfExists(f); err != nil {
			t.Log.Warn(ctx, "failed to delete replaced media", "path", f, "error", err)
		}
	}

	if err := t.exportData(ctx, name); err != nil {
		t.Log.Error(ctx, "failed to save instance", "instance", t.Session.InstanceFile(), "error", err)
		var encErr *encryption.EncryptionError
		if errors.As(err, &encErr) {
			return Result{Code: EncryptionError, Message: err.Error()}
		}
		return Result{Code: SaveError, Message: err.Error()}
	}

	t.removeSavepoint(ctx)

	if t.SaveAndExit {
		return Result{Code: SavedAndExit}
	}
	return Result{Code: Saved}
}

func (t *SaveFormToDisk) exportData(ctx context.Context, name string) error {
	instancePath := t.Session.InstanceFile()
	if instancePath == "" {
		return common.ErrorNoInstanceFile
	}
	lastSaved := t.Session.LastSavedPath()

	t.progress.OnProgressStep(StepSaving)
	payload, err := t.Session.FilledInXML()
	if err != nil {
		return fmt.Errorf("failed to serialize instance: %w", err)
	}
	if err := filex.WriteFileSync(instancePath, payload); err != nil {
		return err
	}
	if lastSaved != "" {
		if err := filex.WriteFileSync(lastSaved, payload); err != nil {
			return err
		}
	}

	if err := t.updateInstanceDatabase(ctx, models.StatusIncomplete, true, name, payload, false); err != nil {
		return err
	}
	if !t.ShouldFinalize {
		return nil
	}

	t.progress.OnProgressStep(StepFinalizing)
	submission, err := t.Session.SubmissionXML()
	if err != nil {
		return fmt.Errorf("failed to serialize submission: %w", err)
	}
	submissionPath := filepath.Join(filepath.Dir(instancePath), common.SubmissionFileName)
	if err := filex.WriteFileSync(submissionPath, submission); err != nil {
		return err
	}

	canEdit := t.Session.IsSubmissionEntireForm()

	form, err := t.lookupForm(ctx, nil)
	if err != nil {
		return err
	}
	info, err := encryption.NewFormInfo(form, t.Session.SubmissionMetadata())
	if err != nil {
		return err
	}
	encrypted := false
	if info != nil {
		t.progress.OnProgressStep(StepEncrypting)
		if err := t.Encryption.Encrypt(ctx, instancePath, submissionPath, info); err != nil {
			return err
		}
		encrypted = true
		canEdit = false
	}

	if err := t.updateInstanceDatabase(ctx, models.StatusComplete, canEdit, name, payload, encrypted); err != nil {
		return err
	}

	if !canEdit {
		if err := filex.DeleteIfExists(instancePath); err != nil {
			return fmt.Errorf("failed to remove editable instance: %w", err)
		}
		if err := os.Rename(submissionPath, instancePath); err != nil {
			return fmt.Errorf("failed to move submission into place: %w", err)
		}
	} else if err := filex.DeleteIfExists(submissionPath); err != nil {
		t.Log.Warn(ctx, "failed to delete submission file", "path", submissionPath, "error", err)
	}

	if encrypted {
		t.Encryption.DeletePlaintextFiles(ctx, instancePath, lastSaved)
	}
	return nil
}

// updateInstanceDatabase creates or updates the row for the session's
// instance file.
func (t *SaveFormToDisk) updateInstanceDatabase(ctx context.Context, status models.Status, canEdit bool,
	name string, payload []byte, encrypted bool) error {
	rel := t.Paths.RelativePath(t.Session.InstanceFile())

	existing, err := t.Instances.GetOneByPath(ctx, rel)
	if err != nil {
		return err
	}

	var row *models.Instance
	if existing != nil {
		row = existing.Copy()
		if name != "" {
			row.DisplayName = name
		}
	} else {
		row = &models.Instance{InstanceFilePath: rel}
		row.JrFormID, row.JrVersion = t.Session.FormIdentity()
		row.DisplayName = name
	}

	form, err := t.lookupForm(ctx, existing)
	if err != nil {
		return err
	}
	if existing == nil && form != nil {
		row.JrFormID = form.JrFormID
		row.JrVersion = form.JrVersion
		row.SubmissionURI = form.SubmissionURI
		if row.DisplayName == "" {
			row.DisplayName = form.DisplayName
		}
	}

	row.Status = status
	row.CanEditWhenComplete = canEdit
	row.GeometryType, row.Geometry = "", ""
	if !encrypted && form != nil {
		typ, gj, err := geometry.Extract(payload, form.GeometryXPath)
		if err != nil {
			t.Log.Warn(ctx, "failed to extract geometry", "xpath", form.GeometryXPath, "error", err)
		}
		row.GeometryType, row.Geometry = typ, gj
	}

	saved, err := t.Instances.Save(ctx, row)
	if err != nil {
		return err
	}
	t.Log.Debug(ctx, "instance row saved", "id", saved.ID, "status", saved.Status, "can_edit", saved.CanEditWhenComplete)
	return nil
}

// lookupForm resolves the session's form once per save: by row id when the
// session was opened from a form, otherwise by form id and version.
func (t *SaveFormToDisk) lookupForm(ctx context.Context, existing *models.Instance) (*models.Form, error) {
	if t.formRead {
		return t.form, nil
	}

	var (
		form *models.Form
		err  error
	)
	if t.FormID != 0 {
		form, err = t.Forms.Get(ctx, t.FormID)
		if errors.Is(err, common.ErrorNotFound) {
			form, err = nil, nil
		}
	} else {
		formID, version := t.Session.FormIdentity()
		if existing != nil {
			formID, version = existing.JrFormID, existing.JrVersion
		}
		form, err = t.Forms.GetLatestByFormIDAndVersion(ctx, formID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up form: %w", err)
	}

	t.form, t.formRead = form, true
	return form, nil
}

func (t *SaveFormToDisk) removeSavepoint(ctx context.Context) {
	name := filepath.Base(t.Session.InstanceFile())
	for _, p := range []string{t.Paths.SavepointFile(name), t.Paths.IndexFile(name)} {
		if err := filex.DeleteIfExists(p); err != nil {
			t.Log.Warn(ctx, "failed to delete savepoint", "path", p, "error", err)
		}
	}
}
