// Package onedrive implements the OneDrive REST request pipeline: request
// construction, an interceptor chain for authorization, response
// classification into typed results or service errors, long-running
// operation monitoring, and chunked uploads.
package onedrive

import "encoding/json"

// Serializer converts between wire bytes and model objects. The pipeline is
// serializer-agnostic; the API speaks JSON, so JSONSerializer is the default.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the standard JSON serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
