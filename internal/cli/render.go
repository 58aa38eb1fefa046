package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nexusforms/collect/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderForms(w io.Writer, list []*models.Form) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no forms")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tFORM ID\tVERSION\tNAME\tENCRYPTED")
	for _, f := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			f.ID, f.JrFormID, orDash(f.JrVersion), f.DisplayName, yesNo(f.IsEncrypted()))
	}
	return tw.Flush()
}

func renderInstances(w io.Writer, list []*models.Instance) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no instances")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tFORM\tVERSION\tNAME\tSTATUS\tEDITABLE\tGEOMETRY\tCHANGED")
	for _, i := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i.ID, i.JrFormID, orDash(i.JrVersion), i.DisplayName, i.Status,
			yesNo(i.CanEditWhenComplete), orDash(i.GeometryType), formatTime(i.LastStatusChangeDate))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
