package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nexusforms/collect/internal/config"
	"github.com/nexusforms/collect/internal/logging"
)

// session carries the App opened for the running command.
type session struct {
	app    *App
	logger *logging.ZapLogger
}

func (s *session) open(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		_ = logger.Sync()
		return err
	}
	s.app = app
	s.logger = logger
	return nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	_ = s.logger.Sync()
	s.app = nil
	return err
}

// NewRootCommand creates the collect root command. The returned close
// function releases whatever the executed command opened.
func NewRootCommand() (*cobra.Command, func() error) {
	s := &session{}

	cmd := &cobra.Command{
		Use:           "collect",
		Short:         "Offline form instance storage, finalization and upload",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newFormCommand(s))
	cmd.AddCommand(newInstanceCommand(s))
	cmd.AddCommand(newScanCommand(s))
	cmd.AddCommand(newUploadCommand(s))

	return cmd, s.close
}

// Execute runs the command line args against a fresh root command.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	cmd, closeFn := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	if cerr := closeFn(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close storage: %w", cerr))
	}
	return err
}
