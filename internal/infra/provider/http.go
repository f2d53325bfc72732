package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIStrategy fetches pages from the authenticated history API. This is the
// preferred source: it carries full timestamps and honors larger page sizes.
type APIStrategy struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewAPIStrategy creates the authenticated API strategy.
func NewAPIStrategy(baseURL, authToken string, timeout time.Duration) *APIStrategy {
	return &APIStrategy{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the strategy identifier.
func (s *APIStrategy) Name() string { return "api" }

// FetchPage fetches one page of round history.
func (s *APIStrategy) FetchPage(ctx context.Context, page, size int) (*Page, error) {
	url := fmt.Sprintf("%s/api/games/history?page=%d&size=%d", s.baseURL, page, size)
	return fetchAndNormalize(ctx, s.httpClient, url, s.authToken)
}

// ScriptStrategy fetches pages from the public script endpoint the game
// client itself loads. Lower fidelity: timestamps are often absent and the
// page size is fixed server-side, but it needs no credentials.
type ScriptStrategy struct {
	baseURL    string
	httpClient *http.Client
}

// NewScriptStrategy creates the public script strategy.
func NewScriptStrategy(baseURL string, timeout time.Duration) *ScriptStrategy {
	return &ScriptStrategy{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the strategy identifier.
func (s *ScriptStrategy) Name() string { return "script" }

// FetchPage fetches one page of round history.
func (s *ScriptStrategy) FetchPage(ctx context.Context, page, size int) (*Page, error) {
	url := fmt.Sprintf("%s/history.json?page=%d", s.baseURL, page)
	return fetchAndNormalize(ctx, s.httpClient, url, "")
}

func fetchAndNormalize(
	ctx context.Context,
	client *http.Client,
	url, authToken string,
) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: http %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: http %d: %s", ErrMalformed, resp.StatusCode, truncate(body, 200))
	}

	return Normalize(body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
