package foxytools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weapp/foxytools/internal/backoff"
	"github.com/weapp/foxytools/result"
)

// Client issues requests through a rate limiter, a response cache and a
// middleware pipeline. It is safe for concurrent use.
type Client struct {
	config Config

	transport  Transport
	httpClient *http.Client
	stages     []Stage
	backend    CacheBackend
	boltPath   string
	retryIf    func(error) bool

	pipeline    *Pipeline
	rateLimiter *RateLimiter
	cache       *ResponseCache
	metrics     *MetricsCollector
	debug       *DebugConfig
	logger      Logger
	closers     []io.Closer
}

// New builds a Client from DefaultConfig and options. Configuration
// problems, unknown middlewares and unknown adapters are reported here,
// never at request time.
func New(options ...Option) (*Client, error) {
	c := &Client{
		config: DefaultConfig(),
		debug:  DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	if err := c.build(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// MustNew is New that panics on error.
func MustNew(options ...Option) *Client {
	c, err := New(options...)
	if err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
	return c
}

func (c *Client) validate() error {
	err := c.config.Validate()
	problems := c.validateDebugConfig()
	if len(problems) == 0 {
		return err
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		problems = append(cfgErr.Problems, problems...)
	}
	return &ConfigError{Problems: problems}
}

func (c *Client) build() error {
	cfg := c.config

	transport := c.transport
	if transport == nil && c.httpClient != nil {
		transport = NewHTTPTransportWithClient(c.httpClient, cfg.Timeout)
	}
	if transport == nil {
		t, err := BuildAdapter(cfg.Adapter, cfg)
		if err != nil {
			return err
		}
		transport = t
	}

	sctx := StageContext{
		Config:      cfg,
		Logger:      c.categoryLogger(func(d *DebugConfig) bool { return d.LogRequests }),
		RequestIDFn: c.debug.requestIDGen(),
	}
	stages, err := BuildStages(cfg.Middlewares, sctx)
	if err != nil {
		return err
	}
	if cfg.MonadResultEnabled() {
		stages = append([]Stage{StatusCheckStage()}, stages...)
	}
	stages = append(stages, c.stages...)
	stages = append(stages, JSONBodyStage(), FormBodyStage())
	c.pipeline = NewPipeline(transport, stages...)

	c.rateLimiter = NewRateLimiter(cfg.RateLimit)
	if c.rateLimiter != nil {
		c.rateLimiter.metrics = c.metrics
		c.rateLimiter.logger = c.categoryLogger(func(d *DebugConfig) bool { return d.LogRateLimit })
	}

	backend := c.backend
	if backend == nil && c.boltPath != "" {
		bolt, err := NewBoltBackend(c.boltPath)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, bolt)
		backend = bolt
	}
	if backend == nil {
		backend = NewStoreBackend(cfg.StoreRoot, cfg.Env, c.categoryLogger(func(d *DebugConfig) bool { return d.LogCache }))
	}

	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return &ConfigError{Problems: []string{err.Error()}}
	}

	var policy backoff.Policy
	if cfg.ComputeBackoff > 0 {
		policy = backoff.Default(cfg.ComputeBackoff, 32*cfg.ComputeBackoff)
		if policy.Strategy, err = backoff.StrategyByName(cfg.ComputeBackoffStrategy); err != nil {
			return &ConfigError{Problems: []string{err.Error()}}
		}
	}

	retryIf := c.retryIf
	if retryIf == nil {
		retryIf = retryableComputeError
	}

	c.cache = NewResponseCache(backend, CacheConfig{
		Codec:       codec,
		Attempts:    cfg.ComputeAttempts,
		Backoff:     policy,
		RetryIf:     retryIf,
		Metrics:     c.metrics,
		Logger:      c.categoryLogger(func(d *DebugConfig) bool { return d.LogCache }),
		RetryLogger: c.categoryLogger(func(d *DebugConfig) bool { return d.LogRetries }),
	})

	return nil
}

// retryableComputeError retries everything except error statuses that a
// repeat cannot fix.
func retryableComputeError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsTransient(err)
	}
	var serErr *SerializationError
	return !errors.As(err, &serErr)
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config.clone()
}

// Cache exposes the response cache for explicit invalidation.
func (c *Client) Cache() *ResponseCache {
	return c.cache
}

// Pipeline exposes the composed middleware pipeline.
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline
}

// RateLimiter exposes the limiter; nil when throttling is off.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Metrics returns the metrics collector, if any.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// Close releases backends opened by the client.
func (c *Client) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Request merges opts over the configured defaults and returns the
// response, served from the cache when enabled. The rate limit applies
// only to calls that reach the transport.
func (c *Client) Request(ctx context.Context, opts Options) (*Response, error) {
	start := time.Now()
	merged := MergeOptions(c.config.Defaults, opts)

	req, err := buildRequest(merged, c.config.URL, c.baseHeaders())
	if err != nil {
		return nil, err
	}
	endpoint := endpointOf(req.URL)
	skip := c.skipCache(merged)

	if logger := c.categoryLogger(func(d *DebugConfig) bool { return d.LogRequests }); logger != nil {
		logger.Debug("Starting request", "method", req.Method, "url", req.URL, "endpoint", endpoint, "skipCache", skip)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	resp, err := c.cache.FetchOrCompute(ctx, c.config.Collection, cacheIdentity(merged, req), skip, func(ctx context.Context) (*Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.pipeline.Run(ctx, req)
	})
	c.metrics.RecordRequestEnd(req.Method, endpoint)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, time.Since(start))

	if err == nil {
		if monad, _ := merged.Bool(OptMonadResult); monad && resp.IsError() {
			err = &StatusError{StatusCode: resp.StatusCode, Body: resp.Body, RequestID: resp.RequestID}
		}
	}

	if err != nil {
		c.metrics.RecordError(errorType(err), req.Method, endpoint)
		if logger := c.categoryLogger(func(d *DebugConfig) bool { return d.LogRequests }); logger != nil {
			logger.Debug("Request failed", "method", req.Method, "url", req.URL, "duration", time.Since(start), "error", err.Error())
		}
		return nil, err
	}

	return resp, nil
}

// Fetch is Request returning a Result.
func (c *Client) Fetch(ctx context.Context, opts Options) result.Result[*Response] {
	return result.From(c.Request(ctx, opts))
}

// Raw returns the response body as text.
func (c *Client) Raw(ctx context.Context, opts Options) (string, error) {
	resp, err := c.Request(ctx, opts)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// RawResult is Raw returning a Result.
func (c *Client) RawResult(ctx context.Context, opts Options) result.Result[string] {
	return result.From(c.Raw(ctx, opts))
}

// JSON decodes the response body into generic Go values.
func (c *Client) JSON(ctx context.Context, opts Options) (any, error) {
	return DecodeJSON[any](ctx, c, opts)
}

// JSONResult is JSON returning a Result.
func (c *Client) JSONResult(ctx context.Context, opts Options) result.Result[any] {
	return result.From(c.JSON(ctx, opts))
}

// DecodeJSON requests opts through c and decodes the body into a T.
func DecodeJSON[T any](ctx context.Context, c *Client, opts Options) (T, error) {
	var out T
	resp, err := c.Request(ctx, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, &SerializationError{
			Codec: "json",
			Op:    "decode",
			Err:   fmt.Errorf("error parsing json: %w: %s", err, truncate(resp.Body, 200)),
		}
	}
	return out, nil
}

// RequestAll issues every request with at most Config.Concurrency in
// flight, sharing the client's rate limiter. Responses keep the order of
// reqs; the first error cancels the rest.
func (c *Client) RequestAll(ctx context.Context, reqs []Options) ([]*Response, error) {
	responses := make([]*Response, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for i, opts := range reqs {
		i, opts := i, opts
		g.Go(func() error {
			resp, err := c.Request(ctx, opts)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (c *Client) baseHeaders() http.Header {
	h := c.config.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("User-Agent") == "" && c.config.UserAgent != "" {
		h.Set("User-Agent", c.config.UserAgent)
	}
	return h
}

func (c *Client) skipCache(opts Options) bool {
	if skip, ok := opts.Bool(OptSkipCache); ok {
		return skip
	}
	if cache, ok := opts.Bool(OptCache); ok {
		return !cache
	}
	return !c.config.CacheEnabled()
}

// cacheIdentity is the identity subset of opts with the resolved method
// and URL, so a base URL change is a different entry.
func cacheIdentity(opts Options, req *Request) Options {
	id := opts.Identity()
	delete(id, OptPath)
	id[OptURL] = req.URL
	id[OptMethod] = req.Method
	return id
}

func endpointOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
