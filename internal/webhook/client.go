// Package webhook calls the external image generation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"imagegen/internal/apperr"
	"imagegen/internal/model"
)

// maxResponseBytes caps how much of the webhook body is read.
const maxResponseBytes = 1 << 20

// Generator produces a public image URL for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (model.RawImageReference, error)
}

// Client posts prompts to a fixed webhook URL.
type Client struct {
	http    *http.Client
	url     string
	timeout time.Duration
}

var _ Generator = (*Client)(nil)

// NewClient builds a webhook client. The timeout bounds the whole round trip.
func NewClient(httpClient *http.Client, url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{http: httpClient, url: url, timeout: timeout}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generatedItem struct {
	URL string `json:"url"`
}

// Generate sends {"prompt": prompt} and returns the first url of the array response.
func (c *Client) Generate(ctx context.Context, prompt string) (model.RawImageReference, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return model.RawImageReference{}, fmt.Errorf("encode webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.RawImageReference{}, fmt.Errorf("%w: %v", apperr.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return model.RawImageReference{}, fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
		}
		return model.RawImageReference{}, fmt.Errorf("%w: %v", apperr.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.RawImageReference{}, fmt.Errorf("%w: status %d", apperr.ErrUnreachable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return model.RawImageReference{}, fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
		}
		return model.RawImageReference{}, fmt.Errorf("%w: read body: %v", apperr.ErrUnreachable, err)
	}

	return parseResponse(raw)
}

func parseResponse(raw []byte) (model.RawImageReference, error) {
	var items []generatedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return model.RawImageReference{}, fmt.Errorf("%w: expected a json array: %v", apperr.ErrMalformedResponse, err)
	}
	if len(items) == 0 {
		return model.RawImageReference{}, fmt.Errorf("%w: empty array", apperr.ErrMalformedResponse)
	}
	u := strings.TrimSpace(items[0].URL)
	if u == "" {
		return model.RawImageReference{}, fmt.Errorf("%w: missing url", apperr.ErrMalformedResponse)
	}
	return model.RawImageReference{URL: u}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
