package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// datasetItemsPath is the metastore endpoint listing every dataset.
const datasetItemsPath = "/metastore/schemas/dataset/items"

// ClientConfig configures the catalog client.
type ClientConfig struct {
	// BaseURL is the catalog API root, without a trailing slash.
	BaseURL string

	// Timeout bounds each request, including the full download body.
	// Default: 10 minutes.
	Timeout time.Duration
}

// DefaultClientConfig returns the CMS provider-data catalog defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://data.cms.gov/provider-data/api/1",
		Timeout: 10 * time.Minute,
	}
}

// Client talks to the remote catalog. It covers the two collaborator roles
// the sync engine needs: listing datasets and streaming download bodies.
// Retries and authentication are out of scope here.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ListDatasets fetches the full dataset listing from the metastore.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+datasetItemsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("list datasets: unexpected status %s", resp.Status)
	}

	var datasets []Dataset
	if err := json.NewDecoder(resp.Body).Decode(&datasets); err != nil {
		return nil, fmt.Errorf("decode dataset listing: %w", err)
	}
	return datasets, nil
}

// Fetch opens a download endpoint and returns the response body stream.
// Any non-2xx response is a failure; the caller owns closing the stream.
func (c *Client) Fetch(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request for %s: %w", downloadURL, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", downloadURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %s", downloadURL, resp.Status)
	}
	return resp.Body, nil
}
