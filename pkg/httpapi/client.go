// Package httpapi is the JSON-over-HTTP plumbing shared by the aggregator and
// market metadata clients.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"agent-swap/pkg/types"
)

// Client talks to one provider's REST API
type Client struct {
	Provider string
	BaseURL  string
	Header   http.Header
	HTTP     *http.Client
	Logger   *zap.Logger
}

// New creates a client with the given timeout
func New(provider, baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Provider: provider,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Header:   http.Header{},
		HTTP:     &http.Client{Timeout: timeout},
		Logger:   logger,
	}
}

// GetJSON issues a GET and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// PostJSON issues a POST with body encoded as JSON and decodes the response into out
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// PostRaw issues a POST with an already encoded JSON body. header is sent
// alongside the client's own headers, for per-request values such as signatures.
func (c *Client) PostRaw(ctx context.Context, path string, body []byte, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.do(req, out)
}

// URL is the absolute address of path on this API
func (c *Client) URL(path string) string {
	return c.BaseURL + path
}

func (c *Client) do(req *http.Request, out interface{}) error {
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %w", types.ErrUpstream, c.Provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: failed to read response: %w", types.ErrUpstream, c.Provider, err)
	}

	c.Logger.Debug("provider request",
		zap.String("provider", c.Provider),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.UpstreamError{Provider: c.Provider, StatusCode: resp.StatusCode, Message: ErrorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &types.UpstreamError{Provider: c.Provider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid JSON response: %v", err)}
	}
	return nil
}

// ErrorMessage extracts a readable message from an error body
func ErrorMessage(body []byte) string {
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		for _, key := range []string{"error", "message", "msg"} {
			if message, ok := errorResp[key].(string); ok && message != "" {
				return message
			}
		}
		if errs, ok := errorResp["errors"]; ok {
			return fmt.Sprintf("%v", errs)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}

// FlexString decodes a JSON string or number into its textual form
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Float parses the value, returning 0 when empty or malformed
func (f FlexString) Float() float64 {
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0
	}
	return v
}
