package cli

import (
	"context"
	"fmt"
	"io"
)

// runTask runs fn on its own goroutine. Progress reported by fn is printed to
// w from the calling goroutine until fn returns.
func runTask[T any](ctx context.Context, w io.Writer, fn func(ctx context.Context, report func(string)) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	steps := make(chan string)
	done := make(chan result, 1)

	go func() {
		report := func(step string) {
			select {
			case steps <- step:
			case <-ctx.Done():
			}
		}
		v, err := fn(ctx, report)
		done <- result{value: v, err: err}
	}()

	for {
		select {
		case step := <-steps:
			fmt.Fprintf(w, "... %s\n", step)
		case r := <-done:
			return r.value, r.err
		}
	}
}
