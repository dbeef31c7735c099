// Package readwise is a client for the Readwise Reader save endpoint.
package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSaveURL = "https://readwise.io/api/v3/save/"

	locationNew     = "new"
	categoryArticle = "article"

	maxErrorBody = 4 << 10
)

// SaveRequest is the JSON body of a save call.
type SaveRequest struct {
	URL       string `json:"url"`
	Location  string `json:"location"`
	Category  string `json:"category"`
	SavedFrom string `json:"saved_from"`
}

// RateLimitError is returned for HTTP 429. RetryAfter is zero when the
// response carried no usable Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ValidationError is returned for HTTP 400 and is permanent.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "API Validation Failed: " + e.Detail
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Client posts URLs to the save endpoint.
type Client struct {
	endpoint  string
	sourceTag string
	http      *http.Client
}

// NewClient returns a Client. A nil httpClient uses http.DefaultClient.
func NewClient(endpoint, sourceTag string, httpClient *http.Client) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultSaveURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, sourceTag: sourceTag, http: httpClient}
}

// Save submits one URL as a new article.
func (c *Client) Save(ctx context.Context, token, pageURL string) error {
	body, err := json.Marshal(SaveRequest{
		URL:       pageURL,
		Location:  locationNew,
		Category:  categoryArticle,
		SavedFrom: c.sourceTag,
	})
	if err != nil {
		return fmt.Errorf("readwise: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("readwise: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("readwise: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RateLimitError{RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode == http.StatusBadRequest:
		return &ValidationError{Detail: validationDetail(resp.Body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// validationDetail extracts the "detail" field of a 400 body, falling back
// to the raw text when it is not JSON.
func validationDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != nil {
		switch d := payload.Detail.(type) {
		case string:
			return d
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "undefined"
}

// MaxRetryAfter caps the wait a server can ask for.
const MaxRetryAfter = 5 * time.Minute

// ParseRetryAfter accepts delay-seconds (integer or decimal) or an HTTP date.
// It returns zero for a missing or unusable value and never more than
// MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
			return 0
		}
		if secs >= MaxRetryAfter.Seconds() {
			return MaxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, MaxRetryAfter)
		}
	}
	return 0
}
