package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/capsule/internal/config"
	"github.com/kalambet/capsule/internal/store"
)

// apiClient talks to a running capsule server. Memory operations go through
// the same RemoteBackend the page uses; health is read directly.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	backend    *store.RemoteBackend
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	base := cfg.Store.RemoteURL
	if base == "" {
		base = cfg.Server.Origin()
	}
	return newClientFor(base, &http.Client{Timeout: 60 * time.Second}), nil
}

func newClientFor(baseURL string, hc *http.Client) *apiClient {
	b := store.NewRemoteBackend(baseURL, store.WithHTTPClient(hc))
	return &apiClient{
		baseURL:    b.BaseURL(),
		httpClient: hc,
		backend:    b,
	}
}

type healthReport struct {
	Status   string `json:"status"`
	Memories int    `json:"memories"`
	Time     string `json:"time"`
}

func (c *apiClient) health(ctx context.Context) (healthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return healthReport{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return healthReport{}, fmt.Errorf("server not reachable at %s, is capsule running? (%w)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return healthReport{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	var h healthReport
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return healthReport{}, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}
