// Package capture tracks requests for data produced outside a form session,
// such as a photo, a barcode scan or a location fix. Each request gets a
// correlation token; the answer is delivered on the request's channel.
package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownToken is returned when resolving a token that is not pending.
	ErrUnknownToken = errors.New("unknown capture token")
	// ErrCancelled is returned by Await when the request was cancelled.
	ErrCancelled = errors.New("capture cancelled")
)

// Kind names the external producer of a capture.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindBarcode  Kind = "barcode"
	KindLocation Kind = "location"
	KindFile     Kind = "file"
)

// Response is the answer to a capture request. Payload is a file path for
// media kinds and the raw value otherwise.
type Response struct {
	Token   string
	Kind    Kind
	Payload string
}

type pending struct {
	kind Kind
	ch   chan Response
}

// Registry holds pending capture requests. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	pending map[string]pending
}

// Request registers a capture and returns its token and the channel the
// response arrives on. The channel is closed without a value if the request
// is cancelled.
func (r *Registry) Request(kind Kind) (string, <-chan Response) {
	token := uuid.NewString()
	ch := make(chan Response, 1)

	r.mu.Lock()
	if r.pending == nil {
		r.pending = make(map[string]pending)
	}
	r.pending[token] = pending{kind: kind, ch: ch}
	r.mu.Unlock()

	return token, ch
}

// Resolve delivers payload to the request with token.
func (r *Registry) Resolve(token, payload string) error {
	p, ok := r.take(token)
	if !ok {
		return ErrUnknownToken
	}
	p.ch <- Response{Token: token, Kind: p.kind, Payload: payload}
	close(p.ch)
	return nil
}

// Cancel drops a pending request. Unknown tokens are ignored.
func (r *Registry) Cancel(token string) {
	if p, ok := r.take(token); ok {
		close(p.ch)
	}
}

// Pending returns the number of outstanding requests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) take(token string) (pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	return p, ok
}

// Await waits for the response to token. When ctx ends first the request is
// cancelled and ctx's error returned. A request cancelled by its producer
// yields ErrCancelled.
func (r *Registry) Await(ctx context.Context, token string, ch <-chan Response) (Response, error) {
	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrCancelled
		}
		return resp, nil
	case <-ctx.Done():
		r.Cancel(token)
		return Response{}, ctx.Err()
	}
}
