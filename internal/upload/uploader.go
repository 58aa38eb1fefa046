// Package upload sends completed instances to their destination and records
// the outcome on the instance row.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/repositories/instances"
	"github.com/nexusforms/collect/internal/storagepath"
)

// InstanceUploader uploads single instances.
type InstanceUploader interface {
	// UploadOneSubmission sends the instance to url and records SUBMITTED or
	// SUBMISSION_FAILED on its row. It returns the server message, if any.
	UploadOneSubmission(ctx context.Context, instance *models.Instance, url string) (string, error)

	GetURLToSubmitTo(instance *models.Instance, deviceID, overrideURL, urlFromSettings string) string
}

const submissionPath = "/submission"

// Uploader is the InstanceUploader backed by a Transport.
type Uploader struct {
	instances instances.Repository
	transport Transport
	paths     *storagepath.Provider
	log       logging.Logger

	DeviceID  string
	ServerURL string
}

var _ InstanceUploader = (*Uploader)(nil)

func NewUploader(i instances.Repository, transport Transport, paths *storagepath.Provider, log logging.Logger) *Uploader {
	return &Uploader{instances: i, transport: transport, paths: paths, log: log}
}

// GetInstancesFromIDs loads the instances with the given ids. Missing ids
// are logged and left out.
func (u *Uploader) GetInstancesFromIDs(ctx context.Context, ids ...int64) ([]*models.Instance, error) {
	out := make([]*models.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := u.instances.Get(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			u.log.Warn(ctx, "instance to upload not found", "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (u *Uploader) SaveSuccessStatus(ctx context.Context, instance *models.Instance) error {
	return u.saveStatus(ctx, instance, models.StatusSubmitted)
}

func (u *Uploader) SaveFailedStatus(ctx context.Context, instance *models.Instance) error {
	return u.saveStatus(ctx, instance, models.StatusSubmissionFailed)
}

func (u *Uploader) saveStatus(ctx context.Context, instance *models.Instance, status models.Status) error {
	upd := instance.Copy()
	upd.Status = status
	if _, err := u.instances.Save(ctx, upd); err != nil {
		return fmt.Errorf("failed to save %s status: %w", status, err)
	}
	return nil
}

func (u *Uploader) UploadOneSubmission(ctx context.Context, instance *models.Instance, url string) (string, error) {
	if instance.Status == models.StatusSubmitted {
		return "", common.ErrorAlreadySent
	}
	if !uploadable(instance.Status) {
		return "", common.ErrorNotFinalized
	}

	msg, err := u.submit(ctx, instance, url)
	if err != nil {
		u.log.Warn(ctx, "instance upload failed", "id", instance.ID, "url", url, "error", err)
		if serr := u.SaveFailedStatus(ctx, instance); serr != nil {
			return "", errors.Join(err, serr)
		}
		var upErr *UploadError
		if !errors.As(err, &upErr) {
			err = &UploadError{URL: url, Err: err}
		}
		return "", err
	}

	if err := u.SaveSuccessStatus(ctx, instance); err != nil {
		return "", err
	}
	u.log.Info(ctx, "instance submitted", "id", instance.ID, "url", url)
	return msg, nil
}

func (u *Uploader) submit(ctx context.Context, instance *models.Instance, url string) (string, error) {
	if url == "" {
		return "", common.ErrorNoSubmissionURL
	}
	sub, err := NewSubmission(u.paths.AbsolutePath(instance.InstanceFilePath))
	if err != nil {
		return "", fmt.Errorf("failed to collect submission files: %w", err)
	}
	return u.transport.Submit(ctx, url, sub)
}

// GetURLToSubmitTo picks the override URL, then the instance's submission
// URI, then the settings URL plus /submission, and appends the device id.
func (u *Uploader) GetURLToSubmitTo(instance *models.Instance, deviceID, overrideURL, urlFromSettings string) string {
	var raw string
	switch {
	case strings.TrimSpace(overrideURL) != "":
		raw = strings.TrimSpace(overrideURL)
	case strings.TrimSpace(instance.SubmissionURI) != "":
		raw = strings.TrimSpace(instance.SubmissionURI)
	case strings.TrimSpace(urlFromSettings) != "":
		raw = strings.TrimRight(strings.TrimSpace(urlFromSettings), "/") + submissionPath
	default:
		return ""
	}
	if deviceID == "" {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := parsed.Query()
	q.Set("deviceID", deviceID)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// Outcome is the result of uploading one instance.
type Outcome struct {
	InstanceID  int64
	DisplayName string
	Message     string
	Skipped     bool
	// Reason says why a skipped instance was not sent.
	Reason string
	Err    error
}

// uploadable reports whether an instance in status may be sent.
func uploadable(status models.Status) bool {
	return status == models.StatusComplete || status == models.StatusSubmissionFailed
}

// UploadAll uploads the instances with the given ids, skipping submitted
// ones and drafts that were never finalized. Every attempted instance gets exactly one status update; nothing is
// retried. A cancelled ctx stops before the next instance.
func (u *Uploader) UploadAll(ctx context.Context, ids []int64, overrideURL string) (map[int64]Outcome, error) {
	list, err := u.GetInstancesFromIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]Outcome, len(list))
	for _, inst := range list {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o := Outcome{InstanceID: inst.ID, DisplayName: inst.DisplayName}
		if !uploadable(inst.Status) {
			o.Skipped = true
			o.Reason = "not finalized"
			if inst.Status == models.StatusSubmitted {
				o.Reason = "already submitted"
			}
			u.log.Debug(ctx, "skipping instance", "id", inst.ID, "status", inst.Status, "reason", o.Reason)
			out[inst.ID] = o
			continue
		}
		target := u.GetURLToSubmitTo(inst, u.DeviceID, overrideURL, u.ServerURL)
		o.Message, o.Err = u.UploadOneSubmission(ctx, inst, target)
		out[inst.ID] = o
	}
	return out, nil
}

// Router sends s3:// destinations to S3 and everything else over OpenRosa.
type Router struct {
	OpenRosa Transport
	S3       Transport
}

func (r *Router) Submit(ctx context.Context, rawURL string, s Submission) (string, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		if r.S3 == nil {
			return "", &UploadError{URL: rawURL, Err: errors.New("s3 uploads are not configured")}
		}
		return r.S3.Submit(ctx, rawURL, s)
	}
	return r.OpenRosa.Submit(ctx, rawURL, s)
}
