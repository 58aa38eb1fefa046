package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nexusforms/collect/internal/capture"
	"github.com/nexusforms/collect/internal/filex"
)

// pickFiles requests one file capture per path and returns the resolved
// absolute paths in order.
func (a *App) pickFiles(ctx context.Context, files []string) ([]string, error) {
	picked := make([]string, 0, len(files))
	for _, f := range files {
		token, ch := a.captures.Request(capture.KindFile)
		go a.provideFile(token, f)
		resp, err := a.captures.Await(ctx, token, ch)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", f, err)
		}
		picked = append(picked, resp.Payload)
	}
	return picked, nil
}

// provideFile answers a file capture from the local filesystem.
func (a *App) provideFile(token, path string) {
	abs, err := filepath.Abs(path)
	if err != nil || !filex.Exists(abs) {
		a.captures.Cancel(token)
		return
	}
	if err := a.captures.Resolve(token, abs); err != nil {
		a.log.Debug(context.Background(), "file capture dropped", "token", token, "error", err)
	}
}
