package upload

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/filex"
)

// Submission is the set of files sent for one instance.
type Submission struct {
	// InstanceFile is the XML sent as the main submission document. For an
	// encrypted instance this is the manifest.
	InstanceFile string
	Attachments  []string
}

// Transport delivers a submission to a destination and returns an optional
// server message.
type Transport interface {
	Submit(ctx context.Context, url string, s Submission) (string, error)
}

// NewSubmission collects the files of the instance at instanceFile. An
// encrypted instance sends only its .enc files; a plain one sends every
// attachment except submission.xml.
func NewSubmission(instanceFile string) (Submission, error) {
	dir := filepath.Dir(instanceFile)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Submission{}, err
	}
	encrypted := filex.Exists(filepath.Join(dir, common.EncryptedSubmissionFileName))

	s := Submission{InstanceFile: instanceFile}
	for _, ent := range entries {
		name := ent.Name()
		if !ent.Type().IsRegular() || strings.HasPrefix(name, ".") || name == filepath.Base(instanceFile) {
			continue
		}
		isEnc := strings.HasSuffix(name, common.EncryptedSuffix)
		if encrypted != isEnc || name == common.SubmissionFileName {
			continue
		}
		s.Attachments = append(s.Attachments, filepath.Join(dir, name))
	}
	sort.Strings(s.Attachments)
	return s, nil
}
