package foxytools

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec serializes values for persistence.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// YAMLCodec writes block-style YAML documents. It is the default because
// the stored text stays easy to read and edit.
type YAMLCodec struct{}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (YAMLCodec) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// JSONCodec writes compact JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "yaml", "yml":
		return YAMLCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// storedResponse is the persisted shape of a Response.
type storedResponse struct {
	Status    int                 `yaml:"status" json:"status"`
	RequestID string              `yaml:"request_id,omitempty" json:"request_id,omitempty"`
	Header    map[string][]string `yaml:"header,omitempty" json:"header,omitempty"`
	Body      string              `yaml:"body" json:"body"`
}

func encodeResponse(codec Codec, resp *Response) ([]byte, error) {
	data, err := codec.Marshal(storedResponse{
		Status:    resp.StatusCode,
		RequestID: resp.RequestID,
		Header:    resp.Header,
		Body:      string(resp.Body),
	})
	if err != nil {
		return nil, &SerializationError{Codec: codec.Name(), Op: "encode", Err: err}
	}
	return data, nil
}

func decodeResponse(codec Codec, data []byte) (*Response, error) {
	var stored storedResponse
	if err := codec.Unmarshal(data, &stored); err != nil {
		return nil, &SerializationError{Codec: codec.Name(), Op: "decode", Err: err}
	}
	if stored.Status == 0 {
		return nil, &SerializationError{Codec: codec.Name(), Op: "decode", Err: fmt.Errorf("missing status in %q", truncate(data, 64))}
	}
	return &Response{
		StatusCode: stored.Status,
		RequestID:  stored.RequestID,
		Header:     stored.Header,
		Body:       []byte(stored.Body),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
