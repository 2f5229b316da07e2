package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/model"
)

// Scorer produces a verdict for one request.
// Implementations should honor ctx cancellation, but the relay does not
// depend on it.
type Scorer interface {
	Score(ctx context.Context, req model.ScanRequest) (model.ScanResult, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, req model.ScanRequest) (model.ScanResult, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, req model.ScanRequest) (model.ScanResult, error) {
	return f(ctx, req)
}

// HTTPScorer posts requests as JSON to the scoring backend.
type HTTPScorer struct {
	endpoint    string
	client      *http.Client
	maxBodySize int64
}

// ScorerOption configures an HTTPScorer.
type ScorerOption func(*HTTPScorer)

// WithHTTPClient sets the HTTP client. The client should not carry its own
// timeout; the relay timers bound every call.
func WithHTTPClient(client *http.Client) ScorerOption {
	return func(s *HTTPScorer) {
		if client != nil {
			s.client = client
		}
	}
}

// WithMaxBodySize limits how much of the response body is read.
func WithMaxBodySize(n int64) ScorerOption {
	return func(s *HTTPScorer) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// NewHTTPScorer creates a scorer posting to endpoint.
func NewHTTPScorer(endpoint string, opts ...ScorerOption) *HTTPScorer {
	s := &HTTPScorer{
		endpoint:    endpoint,
		client:      &http.Client{},
		maxBodySize: config.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, req model.ScanRequest) (model.ScanResult, error) {
	if req.Links == nil {
		req.Links = []string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: encode request: %v", model.ErrValidation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: %v", model.ErrBackend, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: %v", model.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ScanResult{}, fmt.Errorf("%w: backend returned HTTP %d", model.ErrBackend, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize+1))
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: read response: %v", model.ErrBackend, err)
	}
	if int64(len(data)) > s.maxBodySize {
		return model.ScanResult{}, fmt.Errorf("%w: response exceeds %d bytes", model.ErrBackend, s.maxBodySize)
	}

	result, err := model.DecodeScanResult(data)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: malformed response: %v", model.ErrBackend, err)
	}
	return result, nil
}
