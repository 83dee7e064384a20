package foxytools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/weapp/foxytools/store"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("foxytools: transport failure")

	// ErrCacheCompute matches any *CacheComputeError.
	ErrCacheCompute = errors.New("foxytools: cache compute failed")

	// ErrSerialization matches any *SerializationError.
	ErrSerialization = errors.New("foxytools: serialization failure")

	// ErrUnknownStage matches any *UnknownStageError.
	ErrUnknownStage = errors.New("foxytools: unknown middleware stage")

	// ErrUnknownAdapter matches any *UnknownAdapterError.
	ErrUnknownAdapter = errors.New("foxytools: unknown adapter")

	// ErrStatus matches any *StatusError.
	ErrStatus = errors.New("foxytools: error status")

	// ErrInvalidConfig matches any *ConfigError.
	ErrInvalidConfig = errors.New("foxytools: invalid configuration")

	// ErrStoreIO matches filesystem failures from the record store.
	ErrStoreIO = store.ErrIO
)

// StoreIOError is a filesystem failure inside a store transaction.
type StoreIOError = store.IOError

// TransportError wraps a failure of the transport collaborator.
type TransportError struct {
	Method    string
	URL       string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) hold.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// CacheComputeError is returned once every compute attempt has failed.
type CacheComputeError struct {
	Collection string
	Key        string
	Attempts   int
	Err        error
}

func (e *CacheComputeError) Error() string {
	return fmt.Sprintf("cache compute %s/%s failed after %d attempt(s): %v", e.Collection, e.Key, e.Attempts, e.Err)
}

func (e *CacheComputeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCacheCompute) hold.
func (e *CacheComputeError) Is(target error) bool { return target == ErrCacheCompute }

// SerializationError reports a value that could not be encoded, or a
// persisted payload that could not be decoded.
type SerializationError struct {
	Codec string
	Op    string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Codec, e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSerialization) hold.
func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// UnknownStageError is returned at construction time for a middleware
// name that has no registered factory.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown middleware stage %q", e.Name)
}

// Is makes errors.Is(err, ErrUnknownStage) hold.
func (e *UnknownStageError) Is(target error) bool { return target == ErrUnknownStage }

// UnknownAdapterError is returned for an adapter name with no factory.
type UnknownAdapterError struct {
	Name string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter %q", e.Name)
}

// Is makes errors.Is(err, ErrUnknownAdapter) hold.
func (e *UnknownAdapterError) Is(target error) bool { return target == ErrUnknownAdapter }

// StatusError turns an HTTP error status into a failure. It is produced by
// the status_check stage.
type StatusError struct {
	StatusCode int
	Body       []byte
	RequestID  string
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, body)
}

// Is makes errors.Is(err, ErrStatus) hold.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// ConfigError collects every configuration problem found.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// IsTransient reports whether err looks like a failure that may succeed on
// a later attempt: transport errors, timeouts, 429 and 5xx statuses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, ErrTransport)
}
