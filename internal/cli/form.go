package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/xform"
)

func newFormCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Manage form definitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <xform.xml>",
		Short: "Import a form definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, report func(string)) (*models.Form, error) {
				return s.app.addForm(ctx, args[0], report)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(s.app.out, "imported form %d: %s\n", f.ID, f.DisplayName)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List imported forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, _ func(string)) ([]*models.Form, error) {
				return s.app.repos.Forms.GetAll(ctx)
			})
			if err != nil {
				return err
			}
			return renderForms(s.app.out, list)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a form, keeping it soft-deleted while instances use it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			hard, err := runTask(cmd.Context(), s.app.errOut, func(ctx context.Context, _ func(string)) (bool, error) {
				return s.app.formDeleter().Delete(ctx, id)
			})
			if err != nil {
				return err
			}
			if hard {
				fmt.Fprintf(s.app.out, "form %d deleted\n", id)
			} else {
				fmt.Fprintf(s.app.out, "form %d marked deleted, instances still use it\n", id)
			}
			return nil
		},
	})

	return cmd
}

// addForm copies the definition into the forms folder and records it.
func (a *App) addForm(ctx context.Context, src string, report func(string)) (*models.Form, error) {
	report("parsing " + filepath.Base(src))
	def, err := xform.ParseDefinition(src)
	if err != nil {
		return nil, err
	}
	if def.FormID == "" {
		return nil, fmt.Errorf("form definition %s has no form id", src)
	}

	existing, err := a.repos.Forms.GetAllByFormIDAndVersion(ctx, def.FormID, def.Version)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if !f.Deleted {
			return nil, fmt.Errorf("form %s version %q is already imported as %d", def.FormID, def.Version, f.ID)
		}
	}

	name := def.FormID
	if def.Version != "" {
		name += "_" + def.Version
	}
	dst := filepath.Join(a.paths.FormsDir(), name+".xml")

	report("copying definition")
	if err := filex.CopyFile(src, dst); err != nil {
		return nil, fmt.Errorf("failed to copy form definition: %w", err)
	}

	saved, err := a.repos.Forms.Save(ctx, def.Form(a.paths.RelativePath(dst)))
	if err != nil {
		return nil, err
	}
	a.log.Info(ctx, "form imported", "id", saved.ID, "form_id", saved.JrFormID, "version", saved.JrVersion)
	return saved, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
