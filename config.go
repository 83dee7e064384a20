package foxytools

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/weapp/foxytools/internal/backoff"
)

// DefaultUserAgent is sent when no other user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2228.0 Safari/537.36"

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "foxy"

// Config is the immutable client configuration. Build one with
// DefaultConfig, layer changes with Merge or options, and hand it to New.
type Config struct {
	URL         string
	RateLimit   RateLimit
	Timeout     time.Duration
	OpenTimeout time.Duration
	UserAgent   string
	Headers     http.Header
	// MonadResult installs the status_check stage, so error statuses fail
	// the request instead of being returned. Nil means off.
	MonadResult *bool
	Middlewares []StageSpec
	Adapter     string
	// Cache enables the response cache for calls that do not say
	// otherwise. Nil means off.
	Cache      *bool
	Collection string
	StoreRoot  string
	Env        string
	Codec      string
	// ComputeAttempts bounds compute runs on a cache miss.
	ComputeAttempts int
	// ComputeBackoff is the first pause between compute attempts. Zero
	// retries immediately.
	ComputeBackoff time.Duration
	// ComputeBackoffStrategy is "exponential" (default) or "decorrelated".
	ComputeBackoffStrategy string
	// Concurrency bounds RequestAll fan-out.
	Concurrency int
	// Defaults are request options applied under every call.
	Defaults Options
}

// DefaultConfig returns the base layer every client starts from.
func DefaultConfig() Config {
	return Config{
		Timeout:         120 * time.Second,
		OpenTimeout:     20 * time.Second,
		UserAgent:       DefaultUserAgent,
		Headers:         http.Header{},
		Middlewares:     Stages(StageRequestID),
		Adapter:         DefaultAdapter,
		Collection:      "request",
		StoreRoot:       "store",
		Codec:           "yaml",
		ComputeAttempts: DefaultComputeAttempts,
		Concurrency:     4,
		Defaults:        Options{OptMethod: "get", OptPath: ""},
	}
}

// Bool returns a pointer to v, for the optional switches of Config.
func Bool(v bool) *bool {
	return &v
}

// CacheEnabled reports whether calls use the cache unless they opt out.
func (c Config) CacheEnabled() bool {
	return c.Cache != nil && *c.Cache
}

// MonadResultEnabled reports whether error statuses fail requests.
func (c Config) MonadResultEnabled() bool {
	return c.MonadResult != nil && *c.MonadResult
}

// Merge returns c with the fields override sets applied: non-zero values,
// non-nil switches, and any RateLimit other than the zero value (use
// NoRateLimit to switch throttling off). Headers and Defaults merge key by
// key (Defaults recursively); Middlewares is replaced when override sets
// it. Neither value is modified.
func (c Config) Merge(override Config) Config {
	out := c.clone()

	if override.URL != "" {
		out.URL = override.URL
	}
	if override.RateLimit.isSet() {
		out.RateLimit = override.RateLimit
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.OpenTimeout != 0 {
		out.OpenTimeout = override.OpenTimeout
	}
	if override.UserAgent != "" {
		out.UserAgent = override.UserAgent
	}
	for k, vs := range override.Headers {
		out.Headers[k] = append([]string(nil), vs...)
	}
	if override.MonadResult != nil {
		out.MonadResult = Bool(*override.MonadResult)
	}
	if override.Middlewares != nil {
		out.Middlewares = cloneSpecs(override.Middlewares)
	}
	if override.Adapter != "" {
		out.Adapter = override.Adapter
	}
	if override.Cache != nil {
		out.Cache = Bool(*override.Cache)
	}
	if override.Collection != "" {
		out.Collection = override.Collection
	}
	if override.StoreRoot != "" {
		out.StoreRoot = override.StoreRoot
	}
	if override.Env != "" {
		out.Env = override.Env
	}
	if override.Codec != "" {
		out.Codec = override.Codec
	}
	if override.ComputeAttempts != 0 {
		out.ComputeAttempts = override.ComputeAttempts
	}
	if override.ComputeBackoff != 0 {
		out.ComputeBackoff = override.ComputeBackoff
	}
	if override.ComputeBackoffStrategy != "" {
		out.ComputeBackoffStrategy = override.ComputeBackoffStrategy
	}
	if override.Concurrency != 0 {
		out.Concurrency = override.Concurrency
	}
	if override.Defaults != nil {
		out.Defaults = MergeOptions(out.Defaults, override.Defaults)
	}

	return out
}

func (c Config) clone() Config {
	out := c
	out.Headers = c.Headers.Clone()
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	out.Middlewares = cloneSpecs(c.Middlewares)
	out.Defaults = MergeOptions(nil, c.Defaults)
	if c.MonadResult != nil {
		out.MonadResult = Bool(*c.MonadResult)
	}
	if c.Cache != nil {
		out.Cache = Bool(*c.Cache)
	}
	return out
}

func cloneSpecs(specs []StageSpec) []StageSpec {
	if specs == nil {
		return nil
	}
	out := make([]StageSpec, len(specs))
	for i, s := range specs {
		out[i] = StageSpec{Name: s.Name}
		if s.Args != nil {
			out[i].Args = MergeOptions(nil, s.Args)
		}
	}
	return out
}

// Validate collects every problem with c into a *ConfigError.
func (c Config) Validate() error {
	var problems []string

	problems = append(problems, c.RateLimit.validate()...)

	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.OpenTimeout < 0 {
		problems = append(problems, "open_timeout must be non-negative")
	}
	if c.Collection == "" {
		problems = append(problems, "collection must not be empty")
	}
	if strings.ContainsAny(c.Collection, `/\`) {
		problems = append(problems, "collection must not contain path separators")
	}
	if _, err := CodecByName(c.Codec); err != nil {
		problems = append(problems, err.Error())
	}
	if c.ComputeAttempts < 1 {
		problems = append(problems, "compute_attempts must be at least 1")
	}
	if c.ComputeAttempts > 100 {
		problems = append(problems, "compute_attempts > 100 may cause excessive resource usage")
	}
	if c.ComputeBackoff < 0 {
		problems = append(problems, "compute_backoff must be non-negative")
	}
	if _, err := backoff.StrategyByName(c.ComputeBackoffStrategy); err != nil {
		problems = append(problems, "compute_backoff_strategy: "+err.Error())
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	for i, spec := range c.Middlewares {
		if spec.Name == "" {
			problems = append(problems, fmt.Sprintf("middlewares[%d] has no name", i))
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// LoadConfig layers a config file (when path is not empty) and FOXY_*
// environment variables over DefaultConfig. .env and .env.local are
// loaded first when present.
func LoadConfig(path string) (Config, error) {
	v, err := ConfigViper(path)
	if err != nil {
		return Config{}, err
	}
	return ConfigFromViper(v)
}

// ConfigViper returns a viper instance reading FOXY_* variables and, when
// path is not empty, the config file at path. Callers may bind flags to it
// before handing it to ConfigFromViper.
func ConfigViper(path string) (*viper.Viper, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Problems: []string{fmt.Sprintf("read %s: %v", path, err)}}
		}
	}
	return v, nil
}

// ConfigFromViper reads the recognized keys from v over DefaultConfig.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	var override Config
	var problems []string

	override.URL = v.GetString("url")
	override.UserAgent = v.GetString("user_agent")
	override.Adapter = v.GetString("adapter")
	override.Collection = v.GetString("collection")
	override.StoreRoot = v.GetString("store_root")
	override.Env = v.GetString("env")
	override.Codec = v.GetString("codec")
	override.ComputeBackoffStrategy = v.GetString("compute_backoff_strategy")
	if v.IsSet("monad_result") {
		override.MonadResult = Bool(v.GetBool("monad_result"))
	}
	if v.IsSet("cache") {
		override.Cache = Bool(v.GetBool("cache"))
	}
	override.ComputeAttempts = v.GetInt("compute_attempts")
	override.Concurrency = v.GetInt("concurrency")

	for key, dst := range map[string]*time.Duration{
		"timeout":         &override.Timeout,
		"open_timeout":    &override.OpenTimeout,
		"compute_backoff": &override.ComputeBackoff,
	} {
		d, err := toDuration(v.Get(key))
		if err != nil {
			problems = append(problems, key+": "+err.Error())
			continue
		}
		*dst = d
	}

	rl, err := parseRateLimit(v.Get("rate_limit"))
	if err != nil {
		problems = append(problems, "rate_limit: "+err.Error())
	}
	override.RateLimit = rl

	if raw := v.Get("headers"); raw != nil {
		override.Headers = make(http.Header)
		for k, vs := range toValues(raw) {
			override.Headers[http.CanonicalHeaderKey(headerName(k))] = vs
		}
	}

	if raw := v.Get("middlewares"); raw != nil {
		specs, err := parseStageSpecs(raw)
		if err != nil {
			problems = append(problems, "middlewares: "+err.Error())
		}
		override.Middlewares = specs
	}

	if raw := v.GetStringMap("defaults"); len(raw) > 0 {
		override.Defaults = Options(raw)
	}

	if len(problems) > 0 {
		return Config{}, &ConfigError{Problems: problems}
	}

	cfg := DefaultConfig().Merge(override)
	return cfg, cfg.Validate()
}

// parseRateLimit accepts an interval (seconds or a duration string), a
// mapping {requests, per}, or "none". Nil and "" leave the policy unset.
func parseRateLimit(raw any) (RateLimit, error) {
	if raw == nil {
		return RateLimit{}, nil
	}
	if s, ok := raw.(string); ok {
		switch strings.TrimSpace(s) {
		case "":
			return RateLimit{}, nil
		case "none":
			return NoRateLimit, nil
		}
	}
	if m, ok := asMap(raw); ok {
		requests, err := toInt(m["requests"])
		if err != nil {
			return RateLimit{}, err
		}
		per, err := toDuration(m["per"])
		if err != nil {
			return RateLimit{}, err
		}
		return Window(requests, per), nil
	}
	d, err := toDuration(raw)
	if err != nil {
		return RateLimit{}, err
	}
	return Interval(d), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported number %T", v)
	}
}

// parseStageSpecs accepts a comma separated string, a list of names, or a
// list of {name, args} mappings.
func parseStageSpecs(raw any) ([]StageSpec, error) {
	switch x := raw.(type) {
	case string:
		var names []string
		for _, n := range strings.Split(x, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return Stages(names...), nil
	case []string:
		return Stages(x...), nil
	case []any:
		specs := make([]StageSpec, 0, len(x))
		for i, e := range x {
			if name, ok := e.(string); ok {
				specs = append(specs, StageSpec{Name: name})
				continue
			}
			m, ok := asMap(e)
			if !ok {
				return nil, fmt.Errorf("entry %d: unsupported %T", i, e)
			}
			name, _ := m["name"].(string)
			spec := StageSpec{Name: name}
			if args, ok := asMap(m["args"]); ok {
				spec.Args = args
			}
			specs = append(specs, spec)
		}
		return specs, nil
	default:
		return nil, errors.New("expected a list of stage names")
	}
}
