package stream

import (
	"context"
	"encoding/json"
)

// JSONStream yields results encoded as JSON documents.
type JSONStream struct {
	results *ResultStream
}

// Next returns the JSON form of the next result. Per-event errors follow
// ResultStream.Next.
func (s *JSONStream) Next(ctx context.Context) (string, error) {
	res, err := s.results.Next(ctx)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return "", &ClassifyError{Flags: res.Flags, Err: err}
	}
	return string(raw), nil
}

// Close closes the underlying event stream.
func (s *JSONStream) Close() error { return s.results.Close() }
