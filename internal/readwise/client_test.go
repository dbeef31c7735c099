package readwise

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSavePostsArticle(t *testing.T) {
	var gotAuth, gotContentType, gotMethod string
	var gotBody SaveRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TabKondo", srv.Client())
	if err := c.Save(context.Background(), "secret", "https://example.com/a"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got, want := gotMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := gotAuth, "Token secret"; got != want {
		t.Fatalf("Authorization = %q; want %q", got, want)
	}
	if got, want := gotContentType, "application/json"; got != want {
		t.Fatalf("Content-Type = %q; want %q", got, want)
	}
	want := SaveRequest{URL: "https://example.com/a", Location: "new", Category: "article", SavedFrom: "TabKondo"}
	if gotBody != want {
		t.Fatalf("body = %+v; want %+v", gotBody, want)
	}
}

func TestSaveRateLimited(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			h := make(http.Header)
			h.Set("Retry-After", "3")
			return &http.Response{
				StatusCode: http.StatusTooManyRequests,
				Body:       io.NopCloser(strings.NewReader("slow down")),
				Header:     h,
			}, nil
		}),
	}

	err := NewClient("http://example.com/save/", "TabKondo", client).Save(context.Background(), "t", "https://example.com")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("Save() error = %v; want *RateLimitError", err)
	}
	if got, want := rl.RetryAfter, 3*time.Second; got != want {
		t.Fatalf("RetryAfter = %v; want %v", got, want)
	}
	if IsPermanent(err) {
		t.Fatal("IsPermanent(rate limit) = true; want false")
	}
}

func TestSaveValidationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"bad url"}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "TabKondo", srv.Client()).Save(context.Background(), "t", "https://example.com")
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("Save() error = %v; want *ValidationError", err)
	}
	if !strings.Contains(err.Error(), "bad url") {
		t.Fatalf("error = %q; want to contain %q", err, "bad url")
	}
	if !IsPermanent(err) {
		t.Fatal("IsPermanent(validation) = false; want true")
	}
}

func TestSaveValidationFailureNonStringDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":{"url":["Enter a valid URL."]}}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "TabKondo", srv.Client()).Save(context.Background(), "t", "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "Enter a valid URL.") {
		t.Fatalf("Save() error = %v; want detail in message", err)
	}
}

func TestSaveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "TabKondo", srv.Client()).Save(context.Background(), "t", "https://example.com")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Save() error = %v; want *StatusError", err)
	}
	if got, want := err.Error(), "HTTP 502: upstream down"; got != want {
		t.Fatalf("error = %q; want %q", got, want)
	}
}

func TestSaveTransportError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
	}
	err := NewClient("http://example.com/save/", "TabKondo", client).Save(context.Background(), "t", "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Save() error = %v; want transport error", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"  ", 0},
		{"2", 2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"0", 0},
		{"-4", 0},
		{"soon", 0},
		{now.Add(7 * time.Second).Format(http.TimeFormat), 7 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"NaN", 0},
		{"Inf", 0},
		{"-Inf", 0},
		{"1e300", MaxRetryAfter},
		{"86400", MaxRetryAfter},
		{now.Add(48 * time.Hour).Format(http.TimeFormat), MaxRetryAfter},
	}
	for _, tc := range cases {
		if got := ParseRetryAfter(tc.value, now); got != tc.want {
			t.Fatalf("ParseRetryAfter(%q) = %v; want %v", tc.value, got, tc.want)
		}
	}
}
