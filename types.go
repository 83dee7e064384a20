package foxytools

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is the typed view of a merged Options map handed to the
// middleware pipeline and finally to the transport.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Header  http.Header
	Body    []byte
	JSON    any
	Form    url.Values
	Timeout time.Duration
	ID      string
	Options Options
}

// Clone returns a deep enough copy for stages to mutate freely.
func (r *Request) Clone() *Request {
	out := *r
	out.Query = cloneValues(r.Query)
	out.Form = cloneValues(r.Form)
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Response is the raw transport response. It is what the cache persists.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// IsError reports whether the status code is 400 or above.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Clone copies the response so callers sharing a cached value cannot
// affect each other.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Handler runs a request through the rest of the pipeline.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Transport executes a request on the wire.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute implements Transport.
func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Stage is one step of the middleware pipeline. It may change the request
// before calling next and the response after next returns.
type Stage interface {
	Name() string
	Handle(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// ComputeFunc produces a response on a cache miss.
type ComputeFunc func(ctx context.Context) (*Response, error)

// Option configures a Client.
type Option func(*Client)

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
