package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInstance(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "instances", "x_1")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return filepath.Join(dir, "x_1.xml")
}

func TestNewSubmission(t *testing.T) {
	plain := writeInstance(t, map[string]string{
		"x_1.xml": "<data/>", "photo.jpg": "p", "audio.m4a": "a", "submission.xml": "<data/>", ".hidden": "h",
	})
	s, err := NewSubmission(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, s.InstanceFile)
	require.Len(t, s.Attachments, 2)
	assert.Equal(t, "audio.m4a", filepath.Base(s.Attachments[0]))
	assert.Equal(t, "photo.jpg", filepath.Base(s.Attachments[1]))

	encrypted := writeInstance(t, map[string]string{
		"x_1.xml": "<data encrypted=\"yes\"/>", "photo.jpg.enc": "p", "submission.xml.enc": "s", "stray.jpg": "x",
	})
	s, err = NewSubmission(encrypted)
	require.NoError(t, err)
	require.Len(t, s.Attachments, 2)
	assert.Equal(t, "photo.jpg.enc", filepath.Base(s.Attachments[0]))
	assert.Equal(t, "submission.xml.enc", filepath.Base(s.Attachments[1]))
}

func TestOpenRosaTransport_Success(t *testing.T) {
	instance := writeInstance(t, map[string]string{"x_1.xml": "<data id=\"X\"/>", "photo.jpg": "jpeg"})

	var gotParts map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1.0", r.Header.Get("X-OpenRosa-Version"))
		assert.NotEmpty(t, r.Header.Get("Date"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "enumerator", user)
		assert.Equal(t, "s3cret", pass)
		assert.Equal(t, "dev-1", r.URL.Query().Get("deviceID"))

		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		gotParts = map[string]string{}
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(p)
			gotParts[p.FormName()] = string(data)
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `<OpenRosaResponse xmlns="http://openrosa.org/http/response"><message>full submission received</message></OpenRosaResponse>`)
	}))
	defer srv.Close()

	s, err := NewSubmission(instance)
	require.NoError(t, err)

	tr := NewOpenRosaTransport("enumerator", "s3cret", 5*time.Second)
	msg, err := tr.Submit(context.Background(), srv.URL+"/submission?deviceID=dev-1", s)
	require.NoError(t, err)
	assert.Equal(t, "full submission received", msg)
	assert.Equal(t, map[string]string{"xml_submission_file": `<data id="X"/>`, "photo.jpg": "jpeg"}, gotParts)
}

func TestOpenRosaTransport_Accepted(t *testing.T) {
	instance := writeInstance(t, map[string]string{"x_1.xml": "<data/>"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		assert.False(t, ok, "no credentials configured: %s", pass)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg, err := NewOpenRosaTransport("", "", 0).Submit(context.Background(), srv.URL, Submission{InstanceFile: instance})
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestOpenRosaTransport_ErrorStatus(t *testing.T) {
	instance := writeInstance(t, map[string]string{"x_1.xml": "<data/>"})

	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"openrosa message", http.StatusBadRequest,
			`<OpenRosaResponse xmlns="http://openrosa.org/http/response"><message>form is closed</message></OpenRosaResponse>`,
			"form is closed"},
		{"plain body", http.StatusUnauthorized, "unauthorized\n", "unauthorized"},
		{"ok is not created", http.StatusOK, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewOpenRosaTransport("", "", 0).Submit(context.Background(), srv.URL, Submission{InstanceFile: instance})
			var upErr *UploadError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tc.status, upErr.StatusCode)
			assert.Equal(t, tc.message, upErr.ServerMessage)
			assert.Equal(t, srv.URL, upErr.URL)
		})
	}
}

func TestOpenRosaTransport_Unreachable(t *testing.T) {
	instance := writeInstance(t, map[string]string{"x_1.xml": "<data/>"})
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenRosaTransport("", "", time.Second).Submit(context.Background(), url, Submission{InstanceFile: instance})
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Zero(t, upErr.StatusCode)
	assert.Error(t, upErr.Err)
}

func TestOpenRosaTransport_MissingFile(t *testing.T) {
	_, err := NewOpenRosaTransport("", "", 0).Submit(context.Background(), "http://127.0.0.1:1",
		Submission{InstanceFile: filepath.Join(t.TempDir(), "nope.xml")})
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
}
