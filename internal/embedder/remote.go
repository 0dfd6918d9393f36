package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultRemoteModel is used when no model is configured.
	DefaultRemoteModel = "text-embedding-3-small"

	// RemoteDimension is the expected vector length of the remote model.
	RemoteDimension = 1536
)

// Remote calls an OpenAI-compatible embeddings endpoint. Every call
// carries an explicit timeout and a bounded retry with exponential
// backoff; callers wrap Remote in a Fallback so exhaustion degrades to
// the deterministic variant instead of failing the unit.
type Remote struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	retry      RetryConfig
	cache      *Cache
}

// RemoteOptions configures a Remote embedder.
type RemoteOptions struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RetryCount int
}

// NewRemote creates a remote embedder.
func NewRemote(opts RemoteOptions, cache *Cache) (*Remote, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", ErrRemoteFailed)
	}
	model := opts.Model
	if model == "" {
		model = DefaultRemoteModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Remote{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: NewRetryConfig(opts.RetryCount),
		cache: cache,
	}, nil
}

func (r *Remote) Embed(ctx context.Context, req Request) (*Embedding, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if emb, ok := r.cache.Get(req.Hash); ok {
			return emb, nil
		}
	}

	vector, err := retryWithBackoff(ctx, r.retry, func() ([]float32, error) {
		return r.callAPI(ctx, req.Text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrRemoteFailed, r.retry.MaxAttempts, err)
	}

	emb := &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: len(vector),
		Variant:   VariantRemote,
	}

	if r.cache != nil {
		r.cache.Set(req.Hash, emb)
	}

	return emb, nil
}

func (r *Remote) callAPI(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": r.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return apiResp.Data[0].Embedding, nil
}

func (r *Remote) Dimension() int {
	return RemoteDimension
}

func (r *Remote) Variant() string {
	return VariantRemote
}

func (r *Remote) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// NormalizeVector normalizes a vector to unit length so cosine similarity
// is a dot product.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
