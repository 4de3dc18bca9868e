package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "passage-go-client"
	maxErrorBody     = 64 << 10

	defaultPollInterval = 500 * time.Millisecond
)

// Answer is the service's reply to a question.
type Answer struct {
	Text string
	// EmbeddingTokens is the number of tokens spent embedding the question; 0 if unknown.
	EmbeddingTokens int
	RequestID       string
}

// Health is the service health report.
type Health struct {
	Status           string            `json:"status"`
	VectorstoreReady bool              `json:"vectorstore_ready"`
	TotalDocuments   int               `json:"total_documents"`
	TotalChunks      int               `json:"total_chunks"`
	Checks           map[string]string `json:"checks"`
	Version          string            `json:"version"`
}

// Usage is the embedding token usage for the current day or month.
type Usage struct {
	Period          string `json:"period"`
	PeriodStart     int64  `json:"period_start"`
	PeriodEnd       int64  `json:"period_end"`
	Tracked         bool   `json:"tracked"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensLimit     int64  `json:"tokens_limit"`
	TokensRemaining int64  `json:"tokens_remaining"`
	Exhausted       bool   `json:"exhausted"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Answer  string `json:"answer"`
}

// Client talks to a passage server. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Client{base: u, http: hc, userAgent: cfg.userAgent}, nil
}

// Ask sends a question and returns the best passage. A blank question is
// answered by the server with its no-question text, not an error.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	body, err := json.Marshal(queryRequest{Question: question})
	if err != nil {
		return Answer{}, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/query", body)
	if err != nil {
		return Answer{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Answer{}, decodeError(resp)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return Answer{}, fmt.Errorf("decode answer: %w", err)
	}
	tokens, _ := strconv.Atoi(resp.Header.Get("X-Embedding-Tokens"))
	return Answer{
		Text:            qr.Answer,
		EmbeddingTokens: tokens,
		RequestID:       resp.Header.Get("X-Request-ID"),
	}, nil
}

// Health fetches the health report. A 503 while the index is building is
// returned as a report with VectorstoreReady false, not as an error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Health{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return Health{}, decodeError(resp)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

// Usage fetches token usage for period "day" or "month" ("" means month).
func (c *Client) Usage(ctx context.Context, period string) (Usage, error) {
	path := "/api/usage"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Usage{}, decodeError(resp)
	}

	var u Usage
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return Usage{}, fmt.Errorf("decode usage: %w", err)
	}
	return u, nil
}

// WaitReady polls Health until the index is ready or ctx is done.
// A non-positive interval polls every 500ms.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h, err := c.Health(ctx)
		if err == nil && h.VectorstoreReady {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("wait ready: %w: %w", ctx.Err(), err)
			}
			return fmt.Errorf("wait ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		apiErr.Code = er.Code
		apiErr.Message = er.Message
		apiErr.Answer = er.Answer
	}
	if apiErr.Code == "" && resp.StatusCode == http.StatusServiceUnavailable {
		apiErr.Code = "not_ready"
	}
	return apiErr
}

// AnswerText returns the text to show for an Ask result: the passage on
// success, the server's suggested answer on an API error, or "" otherwise.
func AnswerText(ans Answer, err error) string {
	if err == nil {
		return ans.Text
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Answer
	}
	return ""
}
