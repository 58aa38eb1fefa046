package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusforms/collect/internal/upload"
)

const surveyForm = `<?xml version="1.0"?>
<h:html xmlns="http://www.w3.org/2002/xforms" xmlns:h="http://www.w3.org/1999/xhtml">
  <h:head>
    <h:title>Survey</h:title>
    <model>
      <instance>
        <survey id="survey" version="3">
          <name/>
          <location/>
          <meta><instanceID/><instanceName/></meta>
        </survey>
      </instance>
      <bind nodeset="/survey/name" type="string" required="true()"/>
      <bind nodeset="/survey/location" type="geopoint"/>
    </model>
  </h:head>
  <h:body/>
</h:html>`

const surveyInstance = `<survey id="survey" version="3">
  <name>Ama</name>
  <location>5.6037 -0.187 10 5</location>
  <meta><instanceID>uuid:7c1f</instanceID><instanceName>Ama</instanceName></meta>
</survey>`

const emptyInstance = `<survey id="survey" version="3">
  <name/>
  <location/>
  <meta><instanceID>uuid:0001</instanceID></meta>
</survey>`

type harness struct {
	t    *testing.T
	root string
	dir  string
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, root: t.TempDir(), dir: t.TempDir()}
}

func (h *harness) file(name, content string) string {
	h.t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	base := []string{"--storage", h.root, "--log-level", "error", "--device-id", "collect:test"}
	err := Execute(context.Background(), append(base, args...), &out, &errOut)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "collect %s", strings.Join(args, " "))
	return out
}

func TestRootCommand(t *testing.T) {
	cmd, closeFn := NewRootCommand()
	require.NotNil(t, cmd)
	require.NoError(t, closeFn())
	assert.Equal(t, "collect", cmd.Use)

	for _, path := range [][]string{
		{"form", "add"}, {"form", "list"}, {"form", "delete"},
		{"instance", "list"}, {"instance", "save"}, {"instance", "delete"},
		{"scan"}, {"upload"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	for _, name := range []string{"config", "storage", "server-url", "device-id", "log-format", "upload-timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
	save, _, err := cmd.Find([]string{"instance", "save"})
	require.NoError(t, err)
	assert.NotNil(t, save.Flags().Lookup("finalize"))
}

func TestEndToEnd(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "collect:test", r.URL.Query().Get("deviceID"))
		f, _, err := r.FormFile("xml_submission_file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(f)
		assert.Contains(t, string(body), "<name>Ama</name>")
		received.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := newHarness(t)
	formPath := h.file("survey.xml", surveyForm)

	out := h.mustRun("form", "add", formPath)
	assert.Equal(t, "imported form 1: Survey\n", out)

	_, err := h.run("form", "add", formPath)
	require.ErrorContains(t, err, "already imported")

	out = h.mustRun("form", "list")
	assert.Contains(t, out, "survey")
	assert.FileExists(t, filepath.Join(h.root, "forms", "survey_3.xml"))

	out = h.mustRun("instance", "save", "1", h.file("ama.xml", surveyInstance), "--finalize")
	assert.Contains(t, out, "saved instance 1 (complete)")

	_, err = h.run("instance", "save", "1", h.file("empty.xml", emptyInstance), "--finalize")
	require.ErrorContains(t, err, "validation failed")

	out = h.mustRun("instance", "save", "1", h.file("draft.xml", emptyInstance), "--name", "Draft")
	assert.Contains(t, out, "saved instance 2 (incomplete)")

	out = h.mustRun("instance", "list")
	assert.Contains(t, out, "Ama")
	assert.Contains(t, out, "Point")
	assert.Contains(t, out, "Draft")

	out = h.mustRun("upload", "1", "--url", srv.URL+"/submission")
	assert.Equal(t, "1 Ama: submitted\n", out)
	assert.EqualValues(t, 1, received.Load())

	out = h.mustRun("upload", "--url", srv.URL+"/submission")
	assert.Equal(t, "nothing to upload\n", out)
	assert.EqualValues(t, 1, received.Load())

	out = h.mustRun("scan")
	assert.Equal(t, "no new instances\n", out)

	out = h.mustRun("instance", "delete", "1")
	assert.Equal(t, "instance 1 deleted\n", out)

	out = h.mustRun("form", "delete", "1")
	assert.Equal(t, "form 1 marked deleted, instances still use it\n", out)

	h.mustRun("instance", "delete", "2")
	out = h.mustRun("instance", "list")
	assert.Equal(t, "no instances\n", out)
	out = h.mustRun("form", "list")
	assert.Equal(t, "no forms\n", out)
}

func TestScanImportsDroppedFolder(t *testing.T) {
	h := newHarness(t)
	h.mustRun("form", "add", h.file("survey.xml", surveyForm))

	folder := filepath.Join(h.root, "instances", "survey_import")
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "survey_import.xml"), []byte(surveyInstance), 0o600))

	out := h.mustRun("scan")
	assert.Equal(t, "1 instance was added\n", out)

	out = h.mustRun("--auto-complete=false", "scan")
	assert.Equal(t, "no new instances\n", out)

	out = h.mustRun("instance", "list")
	assert.Contains(t, out, "complete")
}

func TestSaveWithAttachments(t *testing.T) {
	h := newHarness(t)
	h.mustRun("form", "add", h.file("survey.xml", surveyForm))
	photo := h.file("photo.jpg", "jpeg bytes")
	instancesDir := filepath.Join(h.root, "instances")

	folders := func() []string {
		entries, err := os.ReadDir(instancesDir)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	_, err := h.run("instance", "save", "1", h.file("empty.xml", emptyInstance), "--finalize", "--attach", photo)
	require.ErrorContains(t, err, "validation failed")
	assert.Empty(t, folders(), "a rejected save leaves no instance folder")

	_, err = h.run("instance", "save", "1", h.file("ama.xml", surveyInstance), "--attach", filepath.Join(h.dir, "missing.jpg"))
	require.ErrorContains(t, err, "capture cancelled")
	assert.Empty(t, folders())

	out := h.mustRun("instance", "save", "1", h.file("ama2.xml", surveyInstance), "--attach", photo)
	assert.Contains(t, out, "saved instance 1")
	got := folders()
	require.Len(t, got, 1)
	assert.FileExists(t, filepath.Join(instancesDir, got[0], "photo.jpg"))
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("form", "delete", "abc")
	require.ErrorContains(t, err, `invalid id "abc"`)

	_, err = h.run("instance", "save", "7", h.file("x.xml", surveyInstance))
	require.Error(t, err)

	_, err = h.run("form", "add", filepath.Join(h.dir, "missing.xml"))
	require.ErrorContains(t, err, "failed to open form definition")

	_, err = h.run("--log-format", "yaml", "scan")
	require.Error(t, err)
}

func TestReportOutcomes(t *testing.T) {
	var buf bytes.Buffer
	err := reportOutcomes(&buf, map[int64]upload.Outcome{
		3: {InstanceID: 3, DisplayName: "c", Err: errors.New("boom")},
		1: {InstanceID: 1, DisplayName: "a", Message: "thanks"},
		2: {InstanceID: 2, DisplayName: "b", Skipped: true, Reason: "already submitted"},
		4: {InstanceID: 4, DisplayName: "d", Skipped: true, Reason: "not finalized"},
	})
	require.EqualError(t, err, "1 of 4 uploads failed")
	assert.Equal(t, "1 a: submitted (thanks)\n2 b: skipped: already submitted\n3 c: failed: boom\n4 d: skipped: not finalized\n", buf.String())
}

func TestRunTask_PrintsProgress(t *testing.T) {
	var buf bytes.Buffer
	got, err := runTask(context.Background(), &buf, func(ctx context.Context, report func(string)) (int, error) {
		report("one")
		report("two")
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, "... one\n... two\n", buf.String())
}

func TestGetPassword(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }
	var buf bytes.Buffer
	pw, err := getPassword(&buf)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Enter password: \n", buf.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
	_, err = getPassword(&buf)
	require.ErrorContains(t, err, "failed to read password")
}
