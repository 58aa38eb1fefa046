package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Reconcile the instances folder with the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, _ func(string)) (string, error) {
				return s.app.scanner().Scan(ctx)
			})
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "no new instances"
			}
			fmt.Fprintln(s.app.out, msg)
			return nil
		},
	}
}
