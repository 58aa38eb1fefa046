package upload

import "fmt"

// UploadError is a failed submission attempt. StatusCode is zero when the
// request never got a response.
type UploadError struct {
	URL           string
	StatusCode    int
	ServerMessage string
	Err           error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.ServerMessage != "":
		return fmt.Sprintf("upload to %s failed: %d: %s", e.URL, e.StatusCode, e.ServerMessage)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload to %s failed with status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upload to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upload to %s failed", e.URL)
}

func (e *UploadError) Unwrap() error { return e.Err }
