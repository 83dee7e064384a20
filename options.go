package foxytools

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// WithConfig merges cfg over the configuration built so far.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.config = c.config.Merge(cfg)
	}
}

// WithURL sets the base URL paths are joined to.
func WithURL(url string) Option {
	return func(c *Client) {
		c.config.URL = url
	}
}

// WithRateLimit sets the pacing policy.
func WithRateLimit(policy RateLimit) Option {
	return func(c *Client) {
		c.config.RateLimit = policy
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
	}
}

// WithOpenTimeout sets the connection timeout.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.OpenTimeout = d
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.config.UserAgent = agent
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.config.Headers == nil {
			c.config.Headers = http.Header{}
		}
		c.config.Headers.Add(key, value)
	}
}

// WithMonadResult makes error statuses fail requests.
func WithMonadResult() Option {
	return func(c *Client) {
		c.config.MonadResult = Bool(true)
	}
}

// WithMiddlewares replaces the registered stages composed into the
// pipeline, outermost first.
func WithMiddlewares(specs ...StageSpec) Option {
	return func(c *Client) {
		c.config.Middlewares = cloneSpecs(specs)
	}
}

// WithStages appends already built stages inside the registered ones.
func WithStages(stages ...Stage) Option {
	return func(c *Client) {
		c.stages = append(c.stages, stages...)
	}
}

// WithAdapter selects a registered transport by name.
func WithAdapter(name string) Option {
	return func(c *Client) {
		c.config.Adapter = name
	}
}

// WithTransport sets the transport directly, bypassing the adapter
// registry.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient uses client for the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCache enables the response cache for calls that do not opt out.
func WithCache() Option {
	return func(c *Client) {
		c.config.Cache = Bool(true)
	}
}

// WithCacheBackend persists the cache through backend instead of the
// default store files.
func WithCacheBackend(backend CacheBackend) Option {
	return func(c *Client) {
		c.backend = backend
	}
}

// WithBoltCache persists the cache in the bolt database at path. The
// database is closed by Client.Close.
func WithBoltCache(path string) Option {
	return func(c *Client) {
		c.boltPath = path
	}
}

// WithRedisCache persists the cache in Redis.
func WithRedisCache(client redis.UniversalClient, prefix string) Option {
	return func(c *Client) {
		c.backend = NewRedisBackend(client, prefix)
	}
}

// WithCollection names the cache collection.
func WithCollection(name string) Option {
	return func(c *Client) {
		c.config.Collection = name
	}
}

// WithStoreRoot sets the directory the store backend writes to.
func WithStoreRoot(dir string) Option {
	return func(c *Client) {
		c.config.StoreRoot = dir
	}
}

// WithEnv sets the store file suffix.
func WithEnv(env string) Option {
	return func(c *Client) {
		c.config.Env = env
	}
}

// WithCodec selects the cache codec by name ("yaml" or "json").
func WithCodec(name string) Option {
	return func(c *Client) {
		c.config.Codec = name
	}
}

// WithComputeAttempts bounds compute runs on a cache miss.
func WithComputeAttempts(n int) Option {
	return func(c *Client) {
		c.config.ComputeAttempts = n
	}
}

// WithComputeBackoff sets the first pause between compute attempts.
func WithComputeBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.config.ComputeBackoff = d
	}
}

// WithComputeBackoffStrategy selects how compute pauses grow:
// "exponential" or "decorrelated".
func WithComputeBackoffStrategy(name string) Option {
	return func(c *Client) {
		c.config.ComputeBackoffStrategy = name
	}
}

// WithComputeRetryIf decides which compute errors are retried.
func WithComputeRetryIf(fn func(error) bool) Option {
	return func(c *Client) {
		c.retryIf = fn
	}
}

// WithConcurrency bounds RequestAll fan-out.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		c.config.Concurrency = n
	}
}

// WithDefaults merges request options applied under every call.
func WithDefaults(opts Options) Option {
	return func(c *Client) {
		c.config.Defaults = MergeOptions(c.config.Defaults, opts)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets the function the request_id stage uses
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		problems = append(problems, "logger must be set when debug is enabled")
	}

	return problems
}
