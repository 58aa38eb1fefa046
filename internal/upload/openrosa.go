package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

const (
	openRosaVersionHeader = "X-OpenRosa-Version"
	openRosaVersion       = "1.0"
	submissionField       = "xml_submission_file"
	maxResponseBody       = 64 << 10
)

// OpenRosaTransport posts submissions as multipart/form-data the way
// OpenRosa servers accept them.
type OpenRosaTransport struct {
	client   *http.Client
	username string
	password string
	now      func() time.Time
}

// NewOpenRosaTransport returns a transport using basic auth when username is
// set. A zero timeout means no timeout.
func NewOpenRosaTransport(username, password string, timeout time.Duration) *OpenRosaTransport {
	return &OpenRosaTransport{
		client:   &http.Client{Timeout: timeout},
		username: username,
		password: password,
		now:      time.Now,
	}
}

func (t *OpenRosaTransport) Submit(ctx context.Context, url string, s Submission) (string, error) {
	body, contentType, err := multipartBody(s)
	if err != nil {
		return "", &UploadError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", &UploadError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(openRosaVersionHeader, openRosaVersion)
	req.Header.Set("Date", t.now().UTC().Format(http.TimeFormat))
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &UploadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	message := responseMessage(raw)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return "", &UploadError{URL: url, StatusCode: resp.StatusCode, ServerMessage: message}
	}
	return message, nil
}

func multipartBody(s Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := addFilePart(w, submissionField, s.InstanceFile, "text/xml"); err != nil {
		return nil, "", err
	}
	for _, a := range s.Attachments {
		if err := addFilePart(w, filepath.Base(a), a, contentTypeFor(a)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func addFilePart(w *multipart.Writer, field, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(path)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	switch ext {
	case ".enc":
		return "application/octet-stream"
	case ".xml":
		return "text/xml"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// responseMessage extracts the text of an OpenRosaResponse message element.
func responseMessage(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	n := xmlquery.FindOne(doc, "//*[local-name()='OpenRosaResponse']/*[local-name()='message']")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}
