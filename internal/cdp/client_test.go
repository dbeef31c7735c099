package cdp

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestTabsFromTargetsKeepsPagesOnly(t *testing.T) {
	targets := []*target.Info{
		{TargetID: "A", Type: "page", URL: "https://example.com/a", Title: "A"},
		{TargetID: "SW", Type: "service_worker", URL: "https://example.com/sw.js"},
		nil,
		{TargetID: "SELF", Type: "page", URL: "about:blank"},
		{TargetID: "B", Type: "page", URL: "chrome://newtab/"},
		{TargetID: "BG", Type: "background_page", URL: "chrome-extension://abc/bg.html"},
	}

	tabs := tabsFromTargets(targets, "SELF")
	if got, want := len(tabs), 2; got != want {
		t.Fatalf("len(tabs) = %d; want %d (%+v)", got, want, tabs)
	}
	if tabs[0].ID != "A" || tabs[0].URL != "https://example.com/a" || tabs[0].Title != "A" {
		t.Fatalf("tabs[0] = %+v", tabs[0])
	}
	if tabs[1].ID != "B" {
		t.Fatalf("tabs[1].ID = %q; want %q", tabs[1].ID, "B")
	}
}

func TestIsMissingTarget(t *testing.T) {
	cases := map[string]bool{
		"No target with given id found (-32602)": true,
		"target closed":                          true,
		"websocket: close 1006":                  false,
	}
	for msg, want := range cases {
		if got := isMissingTarget(errors.New(msg)); got != want {
			t.Fatalf("isMissingTarget(%q) = %v; want %v", msg, got, want)
		}
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 0)
	if _, err := c.ListTabs(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ListTabs() error = %v; want ErrNotConnected", err)
	}
	if err := c.CloseTab(context.Background(), "A"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("CloseTab() error = %v; want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	c := NewClient("", 0)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil; want missing URL error")
	}
}

// fakeAttach counts attaches and hands out plain cancellable contexts.
type fakeAttach struct {
	calls   int
	cancels []context.CancelFunc
}

func (f *fakeAttach) attach(context.Context) (context.Context, context.CancelFunc, context.CancelFunc, error) {
	f.calls++
	ctx, cancel := context.WithCancel(context.Background())
	f.cancels = append(f.cancels, cancel)
	return ctx, cancel, func() {}, nil
}

func TestConnectReattachesAfterBrowserContextEnds(t *testing.T) {
	fa := &fakeAttach{}
	c := NewClient("http://127.0.0.1:1", 0)
	c.attach = fa.attach
	c.alive = func(context.Context, context.Context) error { return nil }

	for i := 0; i < 2; i++ {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	if fa.calls != 1 {
		t.Fatalf("attach calls = %d; want 1 while connected", fa.calls)
	}

	fa.cancels[0]()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after loss error = %v", err)
	}
	if fa.calls != 2 {
		t.Fatalf("attach calls = %d; want 2 after the connection ended", fa.calls)
	}
}

func TestConnectReattachesWhenPingFails(t *testing.T) {
	fa := &fakeAttach{}
	c := NewClient("http://127.0.0.1:1", 0)
	c.attach = fa.attach
	pingErr := errors.New("websocket: close 1006")
	c.alive = func(context.Context, context.Context) error { return pingErr }

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if fa.calls != 2 {
		t.Fatalf("attach calls = %d; want 2", fa.calls)
	}
}

func TestListTabsFailureDropsConnection(t *testing.T) {
	fa := &fakeAttach{}
	c := NewClient("http://127.0.0.1:1", 0)
	c.attach = fa.attach
	c.alive = func(context.Context, context.Context) error { return nil }

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	// The fake context carries no chromedp state, so enumeration fails.
	if _, err := c.ListTabs(context.Background()); err == nil {
		t.Fatal("ListTabs() error = nil")
	}
	if _, err := c.ListTabs(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ListTabs() error = %v; want ErrNotConnected after failure", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if fa.calls != 2 {
		t.Fatalf("attach calls = %d; want 2", fa.calls)
	}
}

func TestConnectReportsAttachError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 0)
	c.attach = func(context.Context) (context.Context, context.CancelFunc, context.CancelFunc, error) {
		return nil, nil, nil, errors.New("connection refused")
	}
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil")
	}
	if _, err := c.ListTabs(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ListTabs() error = %v; want ErrNotConnected", err)
	}
}
