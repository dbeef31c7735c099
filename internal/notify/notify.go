package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Notifier shows a short titled message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// NTFY delivers notifications to an ntfy topic endpoint.
type NTFY struct {
	client   *http.Client
	endpoint string
}

// New returns an NTFY notifier, or a log-only notifier when endpoint is empty.
func New(client *http.Client, endpoint string) Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return Log{}
	}
	return &NTFY{client: client, endpoint: endpoint}
}

func (n *NTFY) Notify(ctx context.Context, title, message string) error {
	slog.Info("notification", "title", title, "message", message)
	return Send(ctx, n.client, n.endpoint, title, message)
}

// Log only writes notifications to the structured log.
type Log struct{}

func (Log) Notify(_ context.Context, title, message string) error {
	slog.Info("notification", "title", title, "message", message)
	return nil
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Truncate shortens message to at most n runes.
func Truncate(message string, n int) string {
	r := []rune(message)
	if len(r) <= n {
		return message
	}
	return string(r[:n])
}
