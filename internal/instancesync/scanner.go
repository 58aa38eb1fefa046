// Package instancesync reconciles the instances folder with the instance
// table: rows whose files vanished are deleted and folders nobody knows
// about are imported.
package instancesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/encryption"
	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/repositories/forms"
	"github.com/nexusforms/collect/internal/repositories/instances"
	"github.com/nexusforms/collect/internal/storagepath"
	"github.com/nexusforms/collect/internal/xform"
)

// Encrypter is the part of the encryption engine the scanner uses.
type Encrypter interface {
	Encrypt(ctx context.Context, instanceXML, submissionXML string, info *encryption.FormInfo) error
	DeletePlaintextFiles(ctx context.Context, instanceXML, lastSaved string) bool
}

// InstanceDeleter removes an instance row and its folder.
type InstanceDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// Scanner is safe to run repeatedly; a second run without filesystem
// changes imports and deletes nothing.
type Scanner struct {
	instances instances.Repository
	forms     forms.Repository
	encrypter Encrypter
	deleter   InstanceDeleter
	paths     *storagepath.Provider
	log       logging.Logger

	// AutoComplete marks imported instances complete instead of incomplete.
	AutoComplete bool

	runs atomic.Int64
}

func NewScanner(i instances.Repository, f forms.Repository, enc Encrypter, deleter InstanceDeleter,
	paths *storagepath.Provider, log logging.Logger) *Scanner {
	return &Scanner{
		instances:    i,
		forms:        f,
		encrypter:    enc,
		deleter:      deleter,
		paths:        paths,
		log:          log,
		AutoComplete: true,
	}
}

// Scan runs one reconciliation pass and returns a status message naming the
// number of imported instances (empty when none). One malformed folder never
// fails the pass. A cancelled ctx stops the pass between instances.
func (s *Scanner) Scan(ctx context.Context) (string, error) {
	log := s.log.With("run", s.runs.Add(1))

	candidates, err := s.candidates(ctx, log)
	if err != nil {
		return "", err
	}

	rows, err := s.instances.GetAllNotDeleted(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load instances: %w", err)
	}

	var stale []*models.Instance
	for _, row := range rows {
		path := s.paths.AbsolutePath(row.InstanceFilePath)
		if _, ok := candidates[path]; ok || row.Status == models.StatusSubmitted {
			delete(candidates, path)
			continue
		}
		stale = append(stale, row)
	}

	for _, row := range stale {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.deleter.Delete(ctx, row.ID); err != nil {
			log.Warn(ctx, "failed to delete instance without file", "id", row.ID, "path", row.InstanceFilePath, "error", err)
			continue
		}
		log.Info(ctx, "deleted instance without file", "id", row.ID, "path", row.InstanceFilePath)
	}

	paths := make([]string, 0, len(candidates))
	for p := range candidates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	added := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return statusMessage(added), err
		}
		if s.importInstance(ctx, log, p) {
			added++
		}
	}

	log.Info(ctx, "instance scan finished", "added", added, "removed", len(stale))
	return statusMessage(added), nil
}

func statusMessage(added int) string {
	switch added {
	case 0:
		return ""
	case 1:
		return "1 instance was added"
	}
	return fmt.Sprintf("%d instances were added", added)
}

// candidates returns the readable canonical instance files under the
// instances folder, moving a lone submission.xml into place first.
func (s *Scanner) candidates(ctx context.Context, log logging.Logger) (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.paths.InstancesDir())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list instances folder: %w", err)
	}

	out := make(map[string]struct{}, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		folder := ent.Name()
		path := s.paths.InstanceFile(folder)

		if !filex.Exists(path) {
			submission := filepath.Join(filepath.Dir(path), common.SubmissionFileName)
			if !filex.Exists(submission) {
				continue
			}
			if err := os.Rename(submission, path); err != nil {
				log.Warn(ctx, "failed to move submission into place", "folder", folder, "error", err)
				continue
			}
			log.Info(ctx, "moved submission into place", "folder", folder)
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warn(ctx, "instance file is not readable", "path", path, "error", err)
			continue
		}
		_ = f.Close()
		out[path] = struct{}{}
	}
	return out, nil
}

// importInstance creates a row for an unknown instance file. It reports
// whether a row was added.
func (s *Scanner) importInstance(ctx context.Context, log logging.Logger, path string) bool {
	identity, err := xform.ReadInstanceIdentity(path)
	if err != nil {
		log.Warn(ctx, "skipping unparsable instance", "path", path, "error", err)
		return false
	}
	if identity.FormID == "" {
		log.Warn(ctx, "skipping instance without form id", "path", path)
		return false
	}

	form, err := s.findForm(ctx, identity)
	if errors.Is(err, common.ErrorFormNotFound) {
		log.Info(ctx, "skipping instance of unknown form", "path", path, "form_id", identity.FormID)
		return false
	}
	if err != nil {
		log.Warn(ctx, "form lookup failed", "path", path, "form_id", identity.FormID, "error", err)
		return false
	}

	canEdit := true
	if encryption.IsRequired(form) {
		if err := s.encryptIfNeeded(ctx, path, form, identity); err != nil {
			log.Warn(ctx, "failed to encrypt imported instance", "path", path, "error", err)
			return false
		}
		canEdit = false
	}

	status := models.StatusIncomplete
	if s.AutoComplete {
		status = models.StatusComplete
	}
	row, err := s.instances.Save(ctx, &models.Instance{
		InstanceFilePath:    s.paths.RelativePath(path),
		SubmissionURI:       form.SubmissionURI,
		DisplayName:         form.DisplayName,
		JrFormID:            form.JrFormID,
		JrVersion:           form.JrVersion,
		Status:              status,
		CanEditWhenComplete: canEdit,
	})
	if err != nil {
		log.Warn(ctx, "failed to insert imported instance", "path", path, "error", err)
		return false
	}
	log.Info(ctx, "imported instance", "id", row.ID, "path", row.InstanceFilePath, "status", row.Status)
	return true
}

// findForm prefers the exact (form id, version) and falls back to the
// newest form with the id. It returns common.ErrorFormNotFound when neither
// exists.
func (s *Scanner) findForm(ctx context.Context, identity xform.InstanceIdentity) (*models.Form, error) {
	form, err := s.forms.GetLatestByFormIDAndVersion(ctx, identity.FormID, identity.Version)
	if err != nil || form != nil {
		return form, err
	}
	all, err := s.forms.GetAllByFormID(ctx, identity.FormID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("form %q: %w", identity.FormID, common.ErrorFormNotFound)
	}
	return all[0], nil
}

// encryptIfNeeded encrypts an imported plaintext instance in place. An
// instance folder that already holds submission.xml.enc is left alone.
func (s *Scanner) encryptIfNeeded(ctx context.Context, path string, form *models.Form, identity xform.InstanceIdentity) error {
	dir := filepath.Dir(path)
	if filex.Exists(filepath.Join(dir, common.EncryptedSubmissionFileName)) {
		return nil
	}

	info, err := encryption.NewFormInfo(form, xform.SubmissionMetadata{InstanceID: identity.InstanceID})
	if err != nil {
		return err
	}

	submission := filepath.Join(dir, common.SubmissionFileName)
	if err := filex.CopyFile(path, submission); err != nil {
		return fmt.Errorf("failed to copy instance to submission: %w", err)
	}
	if err := s.encrypter.Encrypt(ctx, path, submission, info); err != nil {
		_ = filex.DeleteIfExists(submission)
		return err
	}

	if err := filex.DeleteIfExists(path); err != nil {
		return fmt.Errorf("failed to remove plaintext instance: %w", err)
	}
	if err := os.Rename(submission, path); err != nil {
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	s.encrypter.DeletePlaintextFiles(ctx, path, "")
	return nil
}
