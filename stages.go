package foxytools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Built-in stage names.
const (
	StageRequestID   = "request_id"
	StageJSON        = "json"
	StageForm        = "form"
	StageHeaders     = "headers"
	StageUserAgent   = "user_agent"
	StageStatusCheck = "status_check"
	StageLogging     = "logging"
)

// RequestIDHeader carries the request id set by the request_id stage.
const RequestIDHeader = "X-Request-Id"

func init() {
	RegisterStage(StageRequestID, newRequestIDStage)
	RegisterStage(StageJSON, func(map[string]any, StageContext) (Stage, error) { return JSONBodyStage(), nil })
	RegisterStage(StageForm, func(map[string]any, StageContext) (Stage, error) { return FormBodyStage(), nil })
	RegisterStage(StageHeaders, newHeadersStage)
	RegisterStage(StageUserAgent, newUserAgentStage)
	RegisterStage(StageStatusCheck, func(map[string]any, StageContext) (Stage, error) { return StatusCheckStage(), nil })
	RegisterStage(StageLogging, newLoggingStage)
}

// RequestIDStage tags every outgoing request with a fresh id from gen and
// echoes it into the response. The header name may be overridden.
func RequestIDStage(header string, gen func() string) Stage {
	if header == "" {
		header = RequestIDHeader
	}
	if gen == nil {
		gen = uuid.NewString
	}
	return StageFunc{StageName: StageRequestID, Fn: func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		req.ID = gen()
		req.Header.Set(header, req.ID)

		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.RequestID == "" {
			resp.RequestID = req.ID
		}
		return resp, nil
	}}
}

func newRequestIDStage(args map[string]any, sctx StageContext) (Stage, error) {
	header, _ := args["header"].(string)
	return RequestIDStage(header, sctx.RequestIDFn), nil
}

// JSONBodyStage encodes Request.JSON as the request body.
func JSONBodyStage() Stage {
	return RequestStage(StageJSON, func(_ context.Context, req *Request) error {
		if req.JSON == nil || req.Body != nil {
			return nil
		}
		body, err := json.Marshal(req.JSON)
		if err != nil {
			return &SerializationError{Codec: "json", Op: "encode", Err: err}
		}
		req.Body = body
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return nil
	})
}

// FormBodyStage encodes Request.Form as a urlencoded body.
func FormBodyStage() Stage {
	return RequestStage(StageForm, func(_ context.Context, req *Request) error {
		if len(req.Form) == 0 || req.Body != nil {
			return nil
		}
		req.Body = []byte(req.Form.Encode())
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return nil
	})
}

// HeadersStage adds static headers that the request does not already set.
func HeadersStage(headers http.Header) Stage {
	headers = headers.Clone()
	return RequestStage(StageHeaders, func(_ context.Context, req *Request) error {
		for k, vs := range headers {
			if req.Header.Get(k) == "" {
				req.Header[k] = append([]string(nil), vs...)
			}
		}
		return nil
	})
}

func newHeadersStage(args map[string]any, _ StageContext) (Stage, error) {
	h := make(http.Header)
	for k, vs := range toValues(args) {
		h[http.CanonicalHeaderKey(headerName(k))] = vs
	}
	return HeadersStage(h), nil
}

// UserAgentStage sets the User-Agent header when missing.
func UserAgentStage(agent string) Stage {
	return RequestStage(StageUserAgent, func(_ context.Context, req *Request) error {
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", agent)
		}
		return nil
	})
}

func newUserAgentStage(args map[string]any, sctx StageContext) (Stage, error) {
	agent, _ := args["agent"].(string)
	if agent == "" {
		agent = sctx.Config.UserAgent
	}
	if agent == "" {
		return nil, fmt.Errorf("no user agent given")
	}
	return UserAgentStage(agent), nil
}

// StatusCheckStage fails responses with a status of 400 or above.
func StatusCheckStage() Stage {
	return ResponseStage(StageStatusCheck, func(_ context.Context, req *Request, resp *Response) (*Response, error) {
		if resp.IsError() {
			id := resp.RequestID
			if id == "" {
				id = req.ID
			}
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body, RequestID: id}
		}
		return resp, nil
	})
}

// LoggingStage logs every exchange at debug level. A nil logger makes it
// a pass-through.
func LoggingStage(logger Logger) Stage {
	return StageFunc{StageName: StageLogging, Fn: func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if logger == nil {
			return next(ctx, req)
		}

		start := time.Now()
		logger.Debug("Sending request", "requestID", req.ID, "method", req.Method, "url", req.URL)
		resp, err := next(ctx, req)
		if err != nil {
			logger.Debug("Request failed", "requestID", req.ID, "duration", time.Since(start), "error", err.Error())
			return nil, err
		}
		logger.Debug("Received response", "requestID", req.ID, "status", resp.StatusCode, "bytes", len(resp.Body), "duration", time.Since(start))
		return resp, nil
	}}
}

func newLoggingStage(_ map[string]any, sctx StageContext) (Stage, error) {
	return LoggingStage(sctx.Logger), nil
}
