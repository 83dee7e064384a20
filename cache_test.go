package foxytools

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weapp/foxytools/internal/backoff"
)

func newTestCache(t *testing.T, cfg CacheConfig) (*ResponseCache, *countingBackend) {
	t.Helper()
	backend := &countingBackend{CacheBackend: NewStoreBackend(t.TempDir(), "test", nil)}
	return NewResponseCache(backend, cfg), backend
}

func okCompute(calls *atomic.Int32, body string) ComputeFunc {
	return func(context.Context) (*Response, error) {
		calls.Add(1)
		return &Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
	}
}

func TestFetchOrComputeSkipRunsComputeOnceWithoutStore(t *testing.T) {
	cache, backend := newTestCache(t, CacheConfig{})
	var calls atomic.Int32

	resp, err := cache.FetchOrCompute(context.Background(), "request", Options{"path": "/x"}, true, okCompute(&calls, "fresh"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if resp.Text() != "fresh" {
		t.Errorf(expectedBodyMsg, "fresh", resp.Text())
	}
	if calls.Load() != 1 {
		t.Errorf("Expected compute once, got %d", calls.Load())
	}
	if backend.gets.Load() != 0 || backend.puts.Load() != 0 {
		t.Errorf("Expected no store access, got %d gets and %d puts", backend.gets.Load(), backend.puts.Load())
	}
}

func TestFetchOrComputeSkipDoesNotRetry(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	calls := 0

	_, err := cache.FetchOrCompute(context.Background(), "request", "k", true, func(context.Context) (*Response, error) {
		calls++
		return nil, errUpstream
	})
	if !errors.Is(err, errUpstream) {
		t.Errorf("Expected upstream error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected compute once, got %d", calls)
	}
}

func TestFetchOrComputeSecondCallIsAHit(t *testing.T) {
	cache, backend := newTestCache(t, CacheConfig{})
	var calls atomic.Int32
	ctx := context.Background()

	first, err := cache.FetchOrCompute(ctx, "request", Options{"path": "/x"}, false, okCompute(&calls, "one"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	second, err := cache.FetchOrCompute(ctx, "request", Options{"path": "/x"}, false, okCompute(&calls, "two"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if calls.Load() != 1 {
		t.Errorf("Expected compute at most once, got %d", calls.Load())
	}
	if second.Text() != first.Text() {
		t.Errorf(expectedBodyMsg, first.Text(), second.Text())
	}
	if backend.puts.Load() != 1 {
		t.Errorf("Expected one write, got %d", backend.puts.Load())
	}
}

func TestFetchOrComputeKeyIsOrderIndependent(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	var calls atomic.Int32
	ctx := context.Background()

	a := Options{}
	a["method"] = "get"
	a["path"] = "/x"
	a["params"] = map[string]any{"q": "fox", "page": 1}

	b := Options{}
	b["params"] = map[string]any{"page": 1, "q": "fox"}
	b["path"] = "/x"
	b["method"] = "get"

	if _, err := cache.FetchOrCompute(ctx, "request", a, false, okCompute(&calls, "a")); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	resp, err := cache.FetchOrCompute(ctx, "request", b, false, okCompute(&calls, "b"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if calls.Load() != 1 || resp.Text() != "a" {
		t.Errorf("Expected b to hit a's entry, got %d computes and body %q", calls.Load(), resp.Text())
	}
}

func TestFetchOrComputeCollectionsAreSeparate(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	var calls atomic.Int32
	ctx := context.Background()

	for _, collection := range []string{"request", "other"} {
		if _, err := cache.FetchOrCompute(ctx, collection, "same-key", false, okCompute(&calls, collection)); err != nil {
			t.Fatalf(expectedNoErrorMsg, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("Expected a compute per collection, got %d", calls.Load())
	}
}

func TestFetchOrComputeRetriesUntilSuccess(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	calls := 0

	resp, err := cache.FetchOrCompute(context.Background(), "request", "flaky", false, func(context.Context) (*Response, error) {
		calls++
		if calls < 4 {
			return nil, errUpstream
		}
		return &Response{StatusCode: http.StatusOK, Body: []byte("finally")}, nil
	})
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 attempts, got %d", calls)
	}

	again, err := cache.FetchOrCompute(context.Background(), "request", "flaky", false, func(context.Context) (*Response, error) {
		t.Error("compute should not run on a hit")
		return nil, errUpstream
	})
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if again.Text() != resp.Text() {
		t.Errorf(expectedBodyMsg, resp.Text(), again.Text())
	}
}

func TestFetchOrComputeGivesUpAfterBound(t *testing.T) {
	cache, backend := newTestCache(t, CacheConfig{})
	calls := 0

	_, err := cache.FetchOrCompute(context.Background(), "request", "down", false, func(context.Context) (*Response, error) {
		calls++
		return nil, errUpstream
	})

	var computeErr *CacheComputeError
	if !errors.As(err, &computeErr) {
		t.Fatalf("Expected *CacheComputeError, got %v", err)
	}
	if calls != DefaultComputeAttempts || computeErr.Attempts != DefaultComputeAttempts {
		t.Errorf("Expected %d attempts, got %d (reported %d)", DefaultComputeAttempts, calls, computeErr.Attempts)
	}
	if !errors.Is(err, ErrCacheCompute) || !errors.Is(err, errUpstream) {
		t.Errorf("Expected ErrCacheCompute wrapping the cause, got %v", err)
	}
	if backend.puts.Load() != 0 {
		t.Errorf("Expected failures not to be cached, got %d writes", backend.puts.Load())
	}
}

func TestFetchOrComputeRetryIfStopsEarly(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{RetryIf: IsTransient})
	calls := 0

	_, err := cache.FetchOrCompute(context.Background(), "request", "gone", false, func(context.Context) (*Response, error) {
		calls++
		return nil, &StatusError{StatusCode: http.StatusNotFound}
	})
	if !errors.Is(err, ErrStatus) {
		t.Errorf("Expected ErrStatus, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestFetchOrComputeStopsOnCancel(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{Backoff: backoff.Policy{Initial: time.Hour, Max: time.Hour, Multiplier: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := cache.FetchOrCompute(ctx, "request", "slow", false, func(context.Context) (*Response, error) {
		calls++
		return nil, errUpstream
	})
	if err == nil {
		t.Fatal("Expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected one attempt before the backoff was cancelled, got %d", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected cancellation to interrupt the backoff")
	}
}

func TestFetchOrComputeCoalescesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(context.Context) (*Response, error) {
		calls.Add(1)
		<-release
		return &Response{StatusCode: http.StatusOK, Body: []byte("shared")}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := cache.FetchOrCompute(context.Background(), "request", "hot", false, compute)
			if err != nil {
				t.Errorf(expectedNoErrorMsg, err)
				return
			}
			if resp.Text() != "shared" {
				t.Errorf(expectedBodyMsg, "shared", resp.Text())
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected one compute for concurrent misses, got %d", calls.Load())
	}
}

func TestFetchOrComputeReturnsIndependentCopies(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{})
	var calls atomic.Int32
	ctx := context.Background()

	first, err := cache.FetchOrCompute(ctx, "request", "copy", false, okCompute(&calls, "abc"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	first.Body[0] = 'X'

	second, err := cache.FetchOrCompute(ctx, "request", "copy", false, okCompute(&calls, "abc"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if second.Text() != "abc" {
		t.Errorf(expectedBodyMsg, "abc", second.Text())
	}
}

func TestFetchOrComputeCorruptEntry(t *testing.T) {
	backend := NewMemoryBackend()
	cache := NewResponseCache(backend, CacheConfig{})
	if err := backend.Put(context.Background(), "request", CacheKey("bad"), []byte("not: [valid")); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	_, err := cache.FetchOrCompute(context.Background(), "request", "bad", false, func(context.Context) (*Response, error) {
		t.Error("compute should not run over a corrupt entry")
		return nil, nil
	})
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("Expected ErrSerialization, got %v", err)
	}
}

func TestResponseCacheDelete(t *testing.T) {
	cache, _ := newTestCache(t, CacheConfig{Codec: JSONCodec{}})
	var calls atomic.Int32
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if _, err := cache.FetchOrCompute(ctx, "request", key, false, okCompute(&calls, key)); err != nil {
			t.Fatalf(expectedNoErrorMsg, err)
		}
	}

	if err := cache.Delete(ctx, "request", "a"); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if _, ok, _ := cache.Lookup(ctx, "request", "a"); ok {
		t.Error("Expected a to be gone")
	}
	if _, ok, _ := cache.Lookup(ctx, "request", "b"); !ok {
		t.Error("Expected b to remain")
	}

	if err := cache.DeleteAll(ctx, "request"); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if _, ok, _ := cache.Lookup(ctx, "request", "b"); ok {
		t.Error("Expected b to be gone after DeleteAll")
	}
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	_ = backend.Put(ctx, "one", "k1", []byte("v1"))
	_ = backend.Put(ctx, "one", "k2", []byte("v2"))
	_ = backend.Put(ctx, "two", "k1", []byte("other"))

	value, ok, err := backend.Get(ctx, "one", "k1")
	if err != nil || !ok || string(value) != "v1" {
		t.Errorf("Expected v1, got %q (ok=%v, err=%v)", value, ok, err)
	}

	_ = backend.DeleteAll(ctx, "one")
	if backend.Len() != 1 {
		t.Errorf("Expected only collection two to remain, got %d entries", backend.Len())
	}
	if _, ok, _ := backend.Get(ctx, "two", "k1"); !ok {
		t.Error("Expected collection two to be untouched")
	}
}
