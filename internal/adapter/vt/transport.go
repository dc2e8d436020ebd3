package vt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"quantbox/internal/vendorclient"
)

// transport performs the raw HTTP round-trip for V-T's JSON API. It knows
// nothing about rate limiting or retries — that is vendorclient.Client's
// job; transport.do only classifies failures as transient or not, narrowly
// (only a restricted set of failure modes are worth retrying).
type transport struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

func newTransport(token string, httpClient *http.Client) *transport {
	return &transport{token: token, httpClient: httpClient, baseURL: "https://api.vendor-t.example/v1"}
}

type apiRequest struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
}

func (t *transport) do(ctx context.Context, method string, params any) (any, error) {
	p, _ := params.(map[string]any)
	body, err := json.Marshal(apiRequest{APIName: method, Token: t.token, Params: p})
	if err != nil {
		return nil, fmt.Errorf("vt transport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vt transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, vendorclient.NewTransientError(fmt.Errorf("vt transport: request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vendorclient.NewTransientError(fmt.Errorf("vt transport: read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, vendorclient.NewRateLimitError(fmt.Errorf("vt transport: rate limited (HTTP 429)"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, vendorclient.NewAuthError(fmt.Errorf("vt transport: auth failure (HTTP %d): %s", resp.StatusCode, string(respBody)))
	case resp.StatusCode >= 500:
		return nil, vendorclient.NewTransientError(fmt.Errorf("vt transport: server error (HTTP %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vt transport: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("vt transport: decode response: %w", err)
	}
	return result, nil
}
