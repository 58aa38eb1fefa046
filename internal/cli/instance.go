package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/saving"
	"github.com/nexusforms/collect/internal/xform"
)

// SaveOptions are the flags of "instance save".
type SaveOptions struct {
	Finalize    bool
	Name        string
	Attachments []string
}

func newInstanceCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage filled-in form instances",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List instances that are not deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, _ func(string)) ([]*models.Instance, error) {
				return s.app.repos.Instances.GetAllNotDeleted(ctx)
			})
			if err != nil {
				return err
			}
			return renderInstances(s.app.out, list)
		},
	})

	opts := &SaveOptions{}
	save := &cobra.Command{
		Use:   "save <form-id> <instance.xml>",
		Short: "Store instance XML as a new instance of a form",
		Long: `Copies the instance XML into a new instance folder and saves it the
way a form session does. With --finalize the answers are validated against
the form, the submission is built and, for forms with a public key,
encrypted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formID, err := parseID(args[0])
			if err != nil {
				return err
			}
			inst, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, report func(string)) (*models.Instance, error) {
				return s.app.saveInstance(ctx, formID, args[1], opts, report)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(s.app.out, "saved instance %d (%s): %s\n", inst.ID, inst.Status, inst.InstanceFilePath)
			return nil
		},
	}
	save.Flags().BoolVar(&opts.Finalize, "finalize", false, "finalize the instance")
	save.Flags().StringVar(&opts.Name, "name", "", "display name when the instance has no instanceName")
	save.Flags().StringSliceVar(&opts.Attachments, "attach", nil, "media files to copy into the instance folder")
	cmd.AddCommand(save)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an instance and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, err = runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, _ func(string)) (struct{}, error) {
				return struct{}{}, s.app.instanceDeleter().Delete(ctx, id)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(s.app.out, "instance %d deleted\n", id)
			return nil
		},
	})

	return cmd
}

// saveInstance creates a new instance folder for src and runs the disk
// writer over it.
func (a *App) saveInstance(ctx context.Context, formID int64, src string, opts *SaveOptions,
	report func(string)) (*models.Instance, error) {
	form, err := a.repos.Forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	def, err := xform.ParseDefinition(a.paths.AbsolutePath(form.FormFilePath))
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance: %w", err)
	}

	attachments, err := a.pickFiles(ctx, opts.Attachments)
	if err != nil {
		return nil, err
	}

	instanceFile := a.newInstanceFile(form.JrFormID, time.Now())
	doc, err := xform.NewDocument(data, instanceFile, a.paths.LastSavedFile(instanceFile), def)
	if err != nil {
		return nil, err
	}

	folder := filepath.Dir(instanceFile)
	if err := copyAttachments(folder, attachments); err != nil {
		_ = os.RemoveAll(folder)
		return nil, err
	}

	task := &saving.SaveFormToDisk{
		Dependencies:   a.saveDependencies(),
		Session:        doc,
		SaveAndExit:    true,
		ShouldFinalize: opts.Finalize,
		UpdatedName:    opts.Name,
		FormID:         form.ID,
	}
	res := task.SaveForm(ctx, saving.ProgressFunc(report))
	if !res.Succeeded() {
		// A failed validation writes nothing, so the folder holds only
		// the attachments copied above.
		if res.Code == saving.ValidationFailed {
			_ = os.RemoveAll(folder)
		}
		return nil, saveFailure(res)
	}

	inst, err := a.repos.Instances.GetOneByPath(ctx, a.paths.RelativePath(instanceFile))
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance row for %s is missing after save", instanceFile)
	}
	return inst, nil
}

func copyAttachments(folder string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	if _, err := filex.EnsureDir(folder); err != nil {
		return fmt.Errorf("failed to create instance folder: %w", err)
	}
	for _, m := range files {
		if err := filex.CopyFile(m, filepath.Join(folder, filepath.Base(m))); err != nil {
			return fmt.Errorf("failed to attach %s: %w", m, err)
		}
	}
	return nil
}

// newInstanceFile picks a fresh folder named after the form and t.
func (a *App) newInstanceFile(formID string, t time.Time) string {
	base := fmt.Sprintf("%s_%s", formID, t.Format("2006-01-02_15-04-05"))
	folder := base
	for n := 2; filex.Exists(filepath.Join(a.paths.InstancesDir(), folder)); n++ {
		folder = fmt.Sprintf("%s_%d", base, n)
	}
	return a.paths.InstanceFile(folder)
}

func saveFailure(res saving.Result) error {
	switch res.Code {
	case saving.ValidationFailed:
		v := res.Validation
		if v != nil && v.Field != "" {
			return fmt.Errorf("validation failed (%s) at %s: %s", v.Outcome, v.Field, res.Message)
		}
		return errors.New("validation failed: " + res.Message)
	case saving.EncryptionError:
		return errors.New("encryption failed: " + res.Message)
	default:
		return errors.New("save failed: " + res.Message)
	}
}
