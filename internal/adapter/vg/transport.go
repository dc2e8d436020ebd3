package vg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"quantbox/internal/vendorclient"
)

// transport performs the raw HTTP round-trip for V-G's JSON API.
type transport struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

func newTransport(token string, httpClient *http.Client) *transport {
	return &transport{token: token, httpClient: httpClient, baseURL: "https://api.vendor-g.example/v2"}
}

type apiRequest struct {
	Method string         `json:"method"`
	Token  string         `json:"token"`
	Params map[string]any `json:"params"`
}

func (t *transport) do(ctx context.Context, method string, params any) (any, error) {
	p, _ := params.(map[string]any)
	body, err := json.Marshal(apiRequest{Method: method, Token: t.token, Params: p})
	if err != nil {
		return nil, fmt.Errorf("vg transport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vg transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, vendorclient.NewTransientError(fmt.Errorf("vg transport: request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vendorclient.NewTransientError(fmt.Errorf("vg transport: read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, vendorclient.NewRateLimitError(fmt.Errorf("vg transport: rate limited (HTTP 429)"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, vendorclient.NewAuthError(fmt.Errorf("vg transport: auth failure (HTTP %d): %s", resp.StatusCode, string(respBody)))
	case resp.StatusCode >= 500:
		return nil, vendorclient.NewTransientError(fmt.Errorf("vg transport: server error (HTTP %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vg transport: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("vg transport: decode response: %w", err)
	}
	return result, nil
}
