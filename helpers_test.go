package foxytools

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	expectedNoErrorMsg  = "Expected no error, got %v"
	expectedCallsMsg    = "Expected %d transport calls, got %d"
	expectedBodyMsg     = "Expected body %q, got %q"
	expectedStatusMsg   = "Expected status %d, got %d"
	testRequestIDPrefix = "req-"
)

// echoTransport answers every request with its request id as the body.
type echoTransport struct {
	calls atomic.Int32
}

func (e *echoTransport) Execute(_ context.Context, req *Request) (*Response, error) {
	e.calls.Add(1)
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte(req.Header.Get(RequestIDHeader)),
	}, nil
}

func (e *echoTransport) Calls() int {
	return int(e.calls.Load())
}

// statusTransport answers with a fixed status and body.
func statusTransport(status int, body string) TransportFunc {
	return func(context.Context, *Request) (*Response, error) {
		return &Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

// sequenceIDs returns a generator producing req-1, req-2, ...
func sequenceIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return testRequestIDPrefix + strconv.Itoa(n)
	}
}

// countingBackend records every call made to the wrapped backend.
type countingBackend struct {
	CacheBackend
	gets, puts atomic.Int32
}

func (b *countingBackend) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	b.gets.Add(1)
	return b.CacheBackend.Get(ctx, collection, key)
}

func (b *countingBackend) Put(ctx context.Context, collection, key string, value []byte) error {
	b.puts.Add(1)
	return b.CacheBackend.Put(ctx, collection, key, value)
}

var errUpstream = errors.New("upstream unavailable")

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithStoreRoot(t.TempDir()), WithEnv("test")}
	client, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
