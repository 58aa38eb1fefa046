package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nexusforms/collect/internal/cryptox"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/upload"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// UploadOptions are the flags of "upload".
type UploadOptions struct {
	URL         string
	AskPassword bool
}

func newUploadCommand(s *session) *cobra.Command {
	opts := &UploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload [ids...]",
		Short: "Upload finalized instances",
		Long: `Uploads the instances with the given ids, or every complete and
previously failed instance when no ids are given. Each instance goes to
--url, its form's submission URL or <server-url>/submission, in that order.
s3:// destinations are written to S3.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			password := s.app.cfg.Password
			if opts.AskPassword {
				pw, err := getPassword(s.app.errOut)
				if err != nil {
					return err
				}
				password = pw
			}

			outcomes, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, report func(string)) (map[int64]upload.Outcome, error) {
				if len(ids) == 0 {
					pending, err := s.app.repos.Instances.GetAllByStatus(ctx, models.StatusComplete, models.StatusSubmissionFailed)
					if err != nil {
						return nil, err
					}
					for _, p := range pending {
						ids = append(ids, p.ID)
					}
				}
				report(fmt.Sprintf("uploading %d instance(s)", len(ids)))
				return s.app.uploader(ctx, password).UploadAll(ctx, ids, opts.URL)
			})
			if err != nil {
				return err
			}
			return reportOutcomes(s.app.out, outcomes)
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", "", "submission URL overriding the form and server URLs")
	cmd.Flags().BoolVar(&opts.AskPassword, "ask-password", false, "prompt for the server password")
	return cmd
}

func getPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer cryptox.Wipe(pw)
	return string(pw), nil
}

// reportOutcomes prints one line per instance in id order. It fails when
// any upload failed.
func reportOutcomes(w io.Writer, outcomes map[int64]upload.Outcome) error {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "nothing to upload")
		return nil
	}

	ids := make([]int64, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	failed := 0
	for _, id := range ids {
		o := outcomes[id]
		switch {
		case o.Skipped:
			fmt.Fprintf(w, "%d %s: skipped: %s\n", id, o.DisplayName, o.Reason)
		case o.Err != nil:
			failed++
			fmt.Fprintf(w, "%d %s: failed: %v\n", id, o.DisplayName, o.Err)
		case o.Message != "":
			fmt.Fprintf(w, "%d %s: submitted (%s)\n", id, o.DisplayName, o.Message)
		default:
			fmt.Fprintf(w, "%d %s: submitted\n", id, o.DisplayName)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(ids))
	}
	return nil
}
