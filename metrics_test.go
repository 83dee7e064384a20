package foxytools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsCollectorIsSafe(t *testing.T) {
	var mc *MetricsCollector

	mc.RecordRequest("GET", "x", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "x")
	mc.RecordRequestEnd("GET", "x")
	mc.RecordCacheHit("c")
	mc.RecordCacheMiss("c")
	mc.RecordCacheWrite("c")
	mc.RecordComputeRetry("c", 2)
	mc.RecordRateLimitWait(time.Millisecond)
	mc.RecordError("Other", "GET", "x")

	if mc.GetRegistry() != nil {
		t.Error("Expected nil registry from a nil collector")
	}
}

func TestMetricsCollectorRegistry(t *testing.T) {
	mc := NewMetricsCollector()
	if mc.GetRegistry() == nil {
		t.Fatal("Expected a registry")
	}

	reg := prometheus.NewRegistry()
	if NewMetricsCollectorWithRegistry(reg).GetRegistry() != reg {
		t.Error("Expected the supplied registry to be exposed")
	}

	wrapped := prometheus.WrapRegistererWithPrefix("app_", prometheus.NewRegistry())
	if NewMetricsCollectorWithRegistry(wrapped).GetRegistry() != nil {
		t.Error("Expected no registry for a wrapped registerer")
	}
}

func TestClientRecordsRequestAndCacheMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	transport := &echoTransport{}
	client := newTestClient(t,
		WithURL("http://api.test/items"),
		WithTransport(transport),
		WithCache(),
		WithMetricsCollector(mc),
	)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Request(ctx, nil); err != nil {
			t.Fatalf(expectedNoErrorMsg, err)
		}
	}

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "api.test/items")); got != 2 {
		t.Errorf("Expected 2 requests recorded, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "api.test/items")); got != 0 {
		t.Errorf("Expected no request in flight, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("request")); got != 1 {
		t.Errorf("Expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("request")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheWrites.WithLabelValues("request")); got != 1 {
		t.Errorf("Expected 1 write, got %v", got)
	}
}

func TestClientRecordsComputeRetriesAndErrors(t *testing.T) {
	mc := NewMetricsCollector()
	client := newTestClient(t,
		WithURL("http://api.test/"),
		WithTransport(TransportFunc(func(context.Context, *Request) (*Response, error) { return nil, errUpstream })),
		WithCache(),
		WithComputeAttempts(3),
		WithMetricsCollector(mc),
	)

	_, err := client.Request(context.Background(), nil)
	if !errors.Is(err, ErrCacheCompute) {
		t.Fatalf("Expected cache compute error, got %v", err)
	}

	if got := testutil.ToFloat64(mc.computeRetries.WithLabelValues("request", "2")); got != 1 {
		t.Errorf("Expected one retry at attempt 2, got %v", got)
	}
	if got := testutil.ToFloat64(mc.computeRetries.WithLabelValues("request", "3")); got != 1 {
		t.Errorf("Expected one retry at attempt 3, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("CacheCompute", "GET", "api.test/")); got != 1 {
		t.Errorf("Expected one CacheCompute error, got %v", got)
	}
}

func TestErrorType(t *testing.T) {
	tests := map[string]error{
		"Transport":     &TransportError{},
		"CacheCompute":  &CacheComputeError{},
		"Serialization": &SerializationError{},
		"Status":        &StatusError{},
		"StoreIO":       &StoreIOError{},
		"Other":         errUpstream,
	}

	for expected, err := range tests {
		if got := errorType(err); got != expected {
			t.Errorf("errorType(%T) = %s, want %s", err, got, expected)
		}
	}
}
