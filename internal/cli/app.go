package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/nexusforms/collect/internal/capture"
	"github.com/nexusforms/collect/internal/config"
	"github.com/nexusforms/collect/internal/database"
	"github.com/nexusforms/collect/internal/encryption"
	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/formmanagement"
	"github.com/nexusforms/collect/internal/instancesync"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/saving"
	"github.com/nexusforms/collect/internal/storagepath"
	"github.com/nexusforms/collect/internal/upload"
)

// App holds the collaborators shared by all commands.
type App struct {
	cfg   *config.Config
	log   logging.Logger
	paths *storagepath.Provider
	repos *database.Repositories
	enc   *encryption.Engine

	captures *capture.Registry

	out    io.Writer
	errOut io.Writer
}

// NewApp prepares the storage root and opens its database.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, out, errOut io.Writer) (*App, error) {
	paths := storagepath.New(cfg.StorageRoot)
	for _, dir := range []string{paths.Root(), paths.InstancesDir(), paths.FormsDir(), paths.CacheDir()} {
		if _, err := filex.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to prepare storage: %w", err)
		}
	}

	repos, err := database.InitDatabase(ctx, paths.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	return &App{
		cfg:    cfg,
		log:    log,
		paths:  paths,
		repos:  repos,
		enc:    encryption.NewEngine(log),
		out:    out,
		errOut: errOut,

		captures: &capture.Registry{},
	}, nil
}

func (a *App) Close() error {
	return a.repos.Close()
}

func (a *App) saveDependencies() saving.Dependencies {
	return saving.Dependencies{
		Instances:  a.repos.Instances,
		Forms:      a.repos.Forms,
		Encryption: a.enc,
		Paths:      a.paths,
		Log:        a.log,
	}
}

func (a *App) formDeleter() *formmanagement.FormDeleter {
	return formmanagement.NewFormDeleter(a.repos.Forms, a.repos.Instances, a.paths, a.log)
}

func (a *App) instanceDeleter() *formmanagement.InstanceDeleter {
	return formmanagement.NewInstanceDeleter(a.repos.Instances, a.repos.Forms, a.paths, a.log)
}

func (a *App) scanner() *instancesync.Scanner {
	s := instancesync.NewScanner(a.repos.Instances, a.repos.Forms, a.enc, a.instanceDeleter(), a.paths, a.log)
	s.AutoComplete = a.cfg.AutoCompleteOnSync
	return s
}

// uploader builds an uploader routing s3:// targets to S3 and everything
// else to an OpenRosa server. S3 stays unconfigured if the AWS config
// cannot be loaded.
func (a *App) uploader(ctx context.Context, password string) *upload.Uploader {
	router := &upload.Router{
		OpenRosa: upload.NewOpenRosaTransport(a.cfg.Username, password, a.cfg.UploadTimeout),
	}
	client, err := upload.NewS3Client(ctx, a.cfg.S3Region, a.cfg.S3Endpoint, "", "")
	if err != nil {
		a.log.Warn(ctx, "s3 uploads disabled", "error", err)
	} else {
		router.S3 = upload.NewS3Transport(client)
	}

	u := upload.NewUploader(a.repos.Instances, router, a.paths, a.log)
	u.DeviceID = a.cfg.DeviceID
	u.ServerURL = a.cfg.ServerURL
	return u
}
