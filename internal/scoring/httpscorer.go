package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hieromt/hieromt/pkg/types"
)

const defaultHTTPTimeout = 30 * time.Second

// Option configures an [HTTPScorer].
type Option func(*HTTPScorer)

// WithTimeout overrides the per-request timeout. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPScorer) { s.httpClient.Timeout = d }
}

// HTTPScorer computes a metric by delegating to an external scoring
// service — the model-heavy metrics (BERTScore, COMET) are conventionally
// served by a small Python sidecar rather than reimplemented in Go. The
// service contract is a single endpoint:
//
//	POST {baseURL}{path}
//	{"source":"...","prediction":"...","reference":"...","src_lang":"en","tgt_lang":"fr"}
//	-> {"score": number}
type HTTPScorer struct {
	name       string
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewHTTPScorer builds an HTTPScorer named name, posting requests to
// baseURL+path. baseURL must be non-empty.
func NewHTTPScorer(name, baseURL, path string, opts ...Option) (*HTTPScorer, error) {
	if baseURL == "" {
		return nil, errors.New("scoring: baseURL must not be empty")
	}
	s := &HTTPScorer{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NewBERTScoreScorer builds an HTTPScorer for the BERTScore-F1 metric
// against a sidecar serving POST /bertscore.
func NewBERTScoreScorer(baseURL string, opts ...Option) (*HTTPScorer, error) {
	return NewHTTPScorer("bertscore_f1", baseURL, "/bertscore", opts...)
}

// NewCOMETScorer builds an HTTPScorer for the COMET metric against a
// sidecar serving POST /comet.
func NewCOMETScorer(baseURL string, opts ...Option) (*HTTPScorer, error) {
	return NewHTTPScorer("comet", baseURL, "/comet", opts...)
}

func (s *HTTPScorer) Name() string { return s.name }

type scoreRequest struct {
	Source     string `json:"source"`
	Prediction string `json:"prediction"`
	Reference  string `json:"reference"`
	SourceLang string `json:"src_lang"`
	TargetLang string `json:"tgt_lang"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

func (s *HTTPScorer) Score(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}

	body, err := json.Marshal(scoreRequest{
		Source:     source,
		Prediction: prediction,
		Reference:  reference,
		SourceLang: pair.Src,
		TargetLang: pair.Tgt,
	})
	if err != nil {
		return math.NaN(), fmt.Errorf("scoring: %s: marshal request: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+s.path, bytes.NewReader(body))
	if err != nil {
		return math.NaN(), fmt.Errorf("scoring: %s: build request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return math.NaN(), fmt.Errorf("scoring: %s: request: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return math.NaN(), fmt.Errorf("scoring: %s: unexpected status %d", s.name, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return math.NaN(), fmt.Errorf("scoring: %s: decode response: %w", s.name, err)
	}
	return out.Score, nil
}

var _ Scorer = (*HTTPScorer)(nil)
