package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// Client talks to a self-hosted extraction service that turns an event page into a detail.
type Client struct {
	endpoint string
	apiKey   string
	fetcher  ports.HTMLFetcher
	http     *http.Client
}

var _ ports.EventExtractor = (*Client)(nil)

type extractRequest struct {
	URL     string `json:"url"`
	Date    string `json:"date,omitempty"`
	Content string `json:"content,omitempty"`
}

type extractResponse struct {
	Found  bool               `json:"found"`
	Detail domain.EventDetail `json:"detail"`
}

// NewClient creates a reusable HTTP client. When fetcher is nil the service downloads pages itself.
func NewClient(endpoint, apiKey string, fetcher ports.HTMLFetcher) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		fetcher:  fetcher,
		http:     &http.Client{Timeout: 45 * time.Second},
	}
}

// Extract posts the reference (and the page, when a fetcher is set) to /extract.
func (c *Client) Extract(ctx context.Context, ref domain.EventReference) (*domain.EventDetail, error) {
	if c.endpoint == "" {
		return nil, errors.New("ml client: inference url is empty")
	}

	payload := extractRequest{URL: ref.URL, Date: ref.Date}
	if c.fetcher != nil {
		page, err := c.fetcher.Fetch(ctx, ref.URL, "")
		if err != nil {
			return nil, fmt.Errorf("fetch event page: %w", err)
		}
		payload.Content = page
	}

	var resp extractResponse
	if err := c.post(ctx, "/extract", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}

	detail := resp.Detail
	detail.Error = ""
	if detail.URL == "" {
		detail.URL = ref.URL
	}
	return &detail, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
