package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const completion = "Saved 3 tabs, 0 failures"

func TestSendPostsTitledMessage(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string
	var receivedTitle string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			receivedTitle = r.Header.Get("Title")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	n := New(client, "http://example.com/tabkondo")
	if err := n.Notify(ctx, "TabKondo Complete", completion); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/tabkondo"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedTitle, "TabKondo Complete"; got != want {
		t.Fatalf("title = %q; want %q", got, want)
	}
	if got, want := receivedBody, completion; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/notifications", "", completion)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", "", completion)
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestNewWithoutEndpointLogsOnly(t *testing.T) {
	n := New(nil, "  ")
	if _, ok := n.(Log); !ok {
		t.Fatalf("New() = %T; want Log", n)
	}
	if err := n.Notify(context.Background(), "Missing API Key", "set a token"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 150); got != "short" {
		t.Fatalf("Truncate() = %q", got)
	}
	long := strings.Repeat("é", 200)
	if got := Truncate(long, 150); len([]rune(got)) != 150 {
		t.Fatalf("len(Truncate()) = %d runes; want 150", len([]rune(got)))
	}
}
