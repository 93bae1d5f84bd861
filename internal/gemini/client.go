package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNoCandidates indicates the upstream answered without any usable completion
	ErrNoCandidates = errors.New("upstream returned no candidates")
)

// maxErrorBody bounds how much of a failed response body ends up in errors and logs
const maxErrorBody = 2048

// Generator is the upstream generative-content API as seen by the bridges
type Generator interface {
	GenerateContent(ctx context.Context, parts ...Part) (*GenerateContentResponse, error)
}

// StatusError reports a non-2xx answer from the upstream
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Client calls a generateContent endpoint over HTTP
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient creates a client for endpoint authenticated with apiKey.
// timeout bounds each call end to end; there are no retries.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		MaxIdleConns:           20,
		MaxIdleConnsPerHost:    10,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 16 << 10,
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// GenerateContent sends one user turn made of parts and decodes the candidates.
func (c *Client) GenerateContent(ctx context.Context, parts ...Part) (*GenerateContentResponse, error) {
	body, err := json.Marshal(GenerateContentRequest{
		Contents: []Content{{Parts: parts}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	target, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, which carries the key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("upstream request failed: %w", urlErr.Err)
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var out GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
