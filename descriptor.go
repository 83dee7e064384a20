package foxytools

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Options describes one request: method, path, params, body, headers,
// cache directives and so on. Values are plain Go values; nested mappings
// are map[string]any (or Options).
type Options map[string]any

// Recognized option names.
const (
	OptMethod      = "method"
	OptURL         = "url"
	OptPath        = "path"
	OptParams      = "params"
	OptHeaders     = "headers"
	OptBody        = "body"
	OptJSON        = "json"
	OptForm        = "form"
	OptTimeout     = "timeout"
	OptOpenTimeout = "open_timeout"
	OptCache       = "cache"
	OptSkipCache   = "skip_cache"
	OptAdapter     = "adapter"
	OptMonadResult = "monad_result"
	OptMiddlewares = "middlewares"
	OptUserAgent   = "user_agent"
)

// transportOnly options never take part in cache identity.
var transportOnly = map[string]struct{}{
	OptTimeout:     {},
	OptOpenTimeout: {},
	OptAdapter:     {},
	OptCache:       {},
	OptSkipCache:   {},
	OptMonadResult: {},
	OptMiddlewares: {},
}

// MergeOptions layers override on top of base. Keys of override win; when
// both sides hold a mapping the two are merged recursively. Neither input
// is modified.
func MergeOptions(base, override Options) Options {
	out := make(Options, len(base)+len(override))
	for k, v := range base {
		out[k] = cloneOptionValue(v)
	}
	for k, v := range override {
		if bm, ok := asMap(out[k]); ok {
			if om, ok := asMap(v); ok {
				out[k] = map[string]any(MergeOptions(bm, om))
				continue
			}
		}
		out[k] = cloneOptionValue(v)
	}
	return out
}

// Identity returns the options that define cache identity.
func (o Options) Identity() Options {
	out := make(Options, len(o))
	for k, v := range o {
		if _, skip := transportOnly[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the option as a string, or "" when absent.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Bool returns the option as a bool and whether it was set.
func (o Options) Bool(key string) (bool, bool) {
	switch v := o[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// Duration reads a duration option. Plain numbers are seconds.
func (o Options) Duration(key string) (time.Duration, error) {
	return toDuration(o[key])
}

func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(d)
	default:
		return 0, fmt.Errorf("unsupported duration %T", v)
	}
}

// buildRequest turns merged options into a Request. baseURL and headers
// come from the client configuration.
func buildRequest(opts Options, baseURL string, headers http.Header) (*Request, error) {
	method := strings.ToUpper(opts.String(OptMethod))
	if method == "" {
		method = http.MethodGet
	}

	base := baseURL
	if u := opts.String(OptURL); u != "" {
		base = u
	}
	target := joinURL(base, opts.String(OptPath))
	if _, err := url.Parse(target); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("invalid url %q: %v", target, err)}}
	}

	timeout, err := opts.Duration(OptTimeout)
	if err != nil {
		return nil, &ConfigError{Problems: []string{"timeout: " + err.Error()}}
	}

	req := &Request{
		Method:  method,
		URL:     target,
		Query:   toValues(opts[OptParams]),
		Header:  headers.Clone(),
		JSON:    opts[OptJSON],
		Form:    toValues(opts[OptForm]),
		Timeout: timeout,
		Options: opts,
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if ua := opts.String(OptUserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, vs := range toValues(opts[OptHeaders]) {
		req.Header[http.CanonicalHeaderKey(headerName(k))] = vs
	}

	switch b := opts[OptBody].(type) {
	case nil:
	case []byte:
		req.Body = b
	case string:
		req.Body = []byte(b)
	default:
		req.Body = []byte(fmt.Sprint(b))
	}

	return req, nil
}

// headerName turns option style keys (user_agent) into header names.
func headerName(k string) string {
	return strings.ReplaceAll(k, "_", "-")
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.Contains(path, "://") || base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func toValues(v any) url.Values {
	m, ok := asMap(v)
	if !ok {
		if vals, ok := v.(url.Values); ok {
			return cloneValues(vals)
		}
		return nil
	}
	out := make(url.Values, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case []string:
			out[k] = append([]string(nil), x...)
		case []any:
			for _, e := range x {
				out.Add(k, fmt.Sprint(e))
			}
		default:
			out.Set(k, fmt.Sprint(x))
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Options:
		return m, true
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneOptionValue(v any) any {
	if m, ok := asMap(v); ok {
		return map[string]any(MergeOptions(nil, m))
	}
	if s, ok := v.([]any); ok {
		return append([]any(nil), s...)
	}
	return v
}

// PadID left-pads id to length with fill, e.g. PadID(7, 3, '0') == "007".
func PadID(id any, length int, fill rune) string {
	s := fmt.Sprint(id)
	if n := length - len([]rune(s)); n > 0 {
		s = strings.Repeat(string(fill), n) + s
	}
	return s
}
