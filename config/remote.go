package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxRemoteDocument   = 4 << 20
)

// IsRemote reports whether source names an HTTP(S) document.
func IsRemote(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch retrieves a techui document over HTTP and decodes it like a local
// YAML file. Any transport failure or non-2xx status is returned as an error.
func Fetch(ctx context.Context, url string, client *http.Client) (*Config, error) {
	if url == "" {
		return nil, errors.New("config url must not be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch config %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch config %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteDocument+1))
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", url, err)
	}
	if len(data) > maxRemoteDocument {
		return nil, fmt.Errorf("fetch config %s: document too large, limit is %d bytes", url, maxRemoteDocument)
	}
	cfg, err := Parse(data, url)
	if err != nil {
		return nil, err
	}
	cfg.Source = url
	return cfg, nil
}
