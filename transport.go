package foxytools

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultAdapter is the adapter used when none is configured.
const DefaultAdapter = "http"

// HTTPTransport executes requests with net/http.
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPTransport returns a transport whose dialer gives up after
// openTimeout and whose requests default to timeout.
func NewHTTPTransport(timeout, openTimeout time.Duration) *HTTPTransport {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	if openTimeout > 0 {
		rt.DialContext = (&net.Dialer{Timeout: openTimeout, KeepAlive: 30 * time.Second}).DialContext
		rt.TLSHandshakeTimeout = openTimeout
	}
	return &HTTPTransport{
		client:  &http.Client{Transport: rt},
		timeout: timeout,
	}
}

// NewHTTPTransportWithClient wraps an existing *http.Client.
func NewHTTPTransportWithClient(client *http.Client, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: client, timeout: timeout}
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	timeout := t.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, RequestID: req.ID, Err: err}
	}
	if len(req.Query) > 0 {
		q := target.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, RequestID: req.ID, Err: err}
	}
	httpReq.Header = req.Header.Clone()

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target.String(), RequestID: req.ID, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target.String(), RequestID: req.ID, Err: err}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		RequestID:  httpResp.Header.Get(RequestIDHeader),
	}, nil
}

// AdapterFactory builds the transport named by the adapter option.
type AdapterFactory func(cfg Config) (Transport, error)

var adapterRegistry = xsync.NewMapOf[string, AdapterFactory]()

func init() {
	RegisterAdapter(DefaultAdapter, func(cfg Config) (Transport, error) {
		return NewHTTPTransport(cfg.Timeout, cfg.OpenTimeout), nil
	})
}

// RegisterAdapter makes a transport available under name.
func RegisterAdapter(name string, factory AdapterFactory) {
	adapterRegistry.Store(name, factory)
}

// RegisteredAdapters lists adapter names in sorted order.
func RegisteredAdapters() []string {
	var names []string
	adapterRegistry.Range(func(name string, _ AdapterFactory) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// BuildAdapter returns the transport registered under name.
func BuildAdapter(name string, cfg Config) (Transport, error) {
	if name == "" {
		name = DefaultAdapter
	}
	factory, ok := adapterRegistry.Load(name)
	if !ok {
		return nil, &UnknownAdapterError{Name: name}
	}
	return factory(cfg)
}
