package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/darc-connector/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// ErrUnavailable indicates a model scoring service is unreachable.
var ErrUnavailable = errors.New("classifier service unavailable")

// requiredFeatures lists the feature keys each known model version expects.
// Missing keys are substituted with zero (fail-open on features; model
// availability itself is fail-closed at startup).
var requiredFeatures = map[string][]string{
	VersionV2:  {"Sentiment Score", "Keyword Count", "Obfuscation Level"},
	VersionV32: {"sentiment", "keyword_count", "obfuscation"},
}

// classifyRequest is the request body for POST /classify.
type classifyRequest struct {
	Content  string             `json:"content"`
	Features map[string]float64 `json:"features"`
}

// classifyResponse is the response body from /classify.
type classifyResponse struct {
	Category      string             `json:"category"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	ModelVersion  string             `json:"model_version,omitempty"`
}

// MLClient scores content against one model version's HTTP scoring service.
type MLClient struct {
	version string
	baseURL string
	client  *http.Client
}

// NewMLClient creates a scoring client for a model version.
func NewMLClient(version, baseURL string) *MLClient {
	return &MLClient{
		version: version,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Version identifies the model this client scores with.
func (c *MLClient) Version() string {
	return c.version
}

// Classify sends content and the encoded feature bag to the scoring service.
func (c *MLClient) Classify(
	ctx context.Context,
	content string,
	features map[string]float64,
) (*domain.Verdict, error) {
	req := classifyRequest{
		Content:  content,
		Features: c.withDefaults(features),
	}

	body, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal classify request: %w", marshalErr)
	}

	httpReq, reqErr := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %w", reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, doErr := c.client.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier %s returned %d", c.version, resp.StatusCode)
	}

	var result classifyResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("decode classify response: %w", decodeErr)
	}

	raw, rawErr := json.Marshal(result)
	if rawErr != nil {
		return nil, fmt.Errorf("marshal raw result: %w", rawErr)
	}

	return &domain.Verdict{
		ModelVersion: c.version,
		Category:     domain.Category(result.Category),
		Confidence:   result.Confidence,
		RawResult:    raw,
	}, nil
}

// Health checks the scoring service's /health endpoint.
func (c *MLClient) Health(ctx context.Context) error {
	httpReq, reqErr := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("create request: %w", reqErr)
	}

	resp, doErr := c.client.Do(httpReq)
	if doErr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier %s unhealthy: status %d", c.version, resp.StatusCode)
	}
	return nil
}

// withDefaults fills in zero values for any required feature the caller did
// not supply, per the model's documented convention.
func (c *MLClient) withDefaults(features map[string]float64) map[string]float64 {
	filled := make(map[string]float64, len(features))
	for k, v := range features {
		filled[k] = v
	}
	for _, key := range requiredFeatures[c.version] {
		if _, ok := filled[key]; !ok {
			filled[key] = 0
		}
	}
	return filled
}
