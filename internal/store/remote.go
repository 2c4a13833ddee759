package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
)

// RemoteBackend talks to the memory REST service over HTTP.
type RemoteBackend struct {
	baseURL    string
	httpClient *http.Client
}

// RemoteOption configures a RemoteBackend.
type RemoteOption func(*RemoteBackend)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(b *RemoteBackend) { b.httpClient = c }
}

// NewRemoteBackend returns a backend rooted at baseURL, e.g. "http://127.0.0.1:5000".
func NewRemoteBackend(baseURL string, opts ...RemoteOption) *RemoteBackend {
	b := &RemoteBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BaseURL returns the service root.
func (b *RemoteBackend) BaseURL() string {
	return b.baseURL
}

func (b *RemoteBackend) List(ctx context.Context) ([]memory.Record, error) {
	resp, err := b.get(ctx, "/memories/all")
	if err != nil {
		return nil, err
	}
	var records []memory.Record
	if err := decodeJSON(resp, &records); err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	if records == nil {
		records = []memory.Record{}
	}
	return records, nil
}

func (b *RemoteBackend) Add(ctx context.Context, c memory.Candidate) (memory.Record, error) {
	resp, err := b.post(ctx, "/memories/add", c)
	if err != nil {
		return memory.Record{}, err
	}
	var rec memory.Record
	if err := decodeJSON(resp, &rec); err != nil {
		return memory.Record{}, fmt.Errorf("adding memory: %w", err)
	}
	return rec, nil
}

func (b *RemoteBackend) Delete(ctx context.Context, id int64) error {
	resp, err := b.delete(ctx, "/memories/"+strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("deleting memory %d: %w", id, err)
	}
	return nil
}

// Analyze asks the service to analyze everything it stores. The records
// argument is not sent; the service is the authority on the set.
func (b *RemoteBackend) Analyze(ctx context.Context, _ []memory.Record) (insight.Set, error) {
	resp, err := b.post(ctx, "/analyze", nil)
	if err != nil {
		return insight.Set{}, err
	}
	var set insight.Set
	if err := decodeJSON(resp, &set); err != nil {
		return insight.Set{}, err
	}
	if !set.Valid() {
		return insight.Set{}, fmt.Errorf("%w: incomplete insight set", insight.ErrMalformed)
	}
	return set, nil
}

func (b *RemoteBackend) Reflect(ctx context.Context, rec memory.Record) (string, error) {
	resp, err := b.post(ctx, "/analyze/one", map[string]any{"memory": rec})
	if err != nil {
		return "", err
	}
	var out struct {
		Insight string `json:"insight"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Insight) == "" {
		return "", ErrNoInsight
	}
	return out.Insight, nil
}

func (b *RemoteBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory service not reachable at %s: %w", b.baseURL, err)
	}
	return resp, nil
}

func (b *RemoteBackend) get(ctx context.Context, path string) (*http.Response, error) {
	return b.do(ctx, http.MethodGet, path, nil)
}

func (b *RemoteBackend) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return b.do(ctx, http.MethodPost, path, body)
}

func (b *RemoteBackend) delete(ctx context.Context, path string) (*http.Response, error) {
	return b.do(ctx, http.MethodDelete, path, nil)
}

// decodeJSON closes resp.Body. A non-2xx status becomes *APIError carrying
// the service's {"error": ...} text when present. v may be nil, and an empty
// success body leaves v untouched.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if v == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
