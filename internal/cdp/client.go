package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/tabkondo/internal/types"
)

// ErrNotConnected is returned when a tab operation runs before Connect.
var ErrNotConnected = errors.New("cdp: browser not connected")

// Client attaches to a running Chromium over CDP and exposes its page
// targets as tabs. It implements types.TabHost.
type Client struct {
	cdpURL  string
	timeout time.Duration

	// attach and alive are swapped in tests.
	attach func(ctx context.Context) (browserCtx context.Context, browserCancel, allocCancel context.CancelFunc, err error)
	alive  func(ctx, browserCtx context.Context) error

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewClient(cdpURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{cdpURL: strings.TrimRight(cdpURL, "/"), timeout: timeout}
	c.attach = c.attachRemote
	c.alive = c.ping
	return c
}

// Connect attaches chromedp to the remote browser. While attached it only
// checks that the connection still answers; a browser that went away is
// detached and attached again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		if c.browserCtx.Err() == nil && c.alive(ctx, c.browserCtx) == nil {
			return nil
		}
		slog.Warn("Chromium connection lost, reattaching", "url", c.cdpURL)
		c.detachLocked()
	}
	if c.cdpURL == "" {
		return errors.New("cdp: missing CDP URL")
	}

	slog.Info("Connecting to Chromium", "url", c.cdpURL)
	browserCtx, browserCancel, allocCancel, err := c.attach(ctx)
	if err != nil {
		return err
	}

	c.allocCancel = allocCancel
	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	slog.Info("Connected to Chromium", "url", c.cdpURL)
	return nil
}

func (c *Client) attachRemote(ctx context.Context) (context.Context, context.CancelFunc, context.CancelFunc, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()

	select {
	case err := <-done:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("failed to connect to browser: %w", ctx.Err())
	}
	return browserCtx, browserCancel, allocCancel, nil
}

// ping lists targets on the cached connection.
func (c *Client) ping(ctx, browserCtx context.Context) error {
	pingCtx, cancel := c.scoped(ctx, browserCtx)
	defer cancel()
	_, err := chromedp.Targets(pingCtx)
	return err
}

// Close detaches from the browser. Tabs opened by the user stay open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
	return nil
}

func (c *Client) detachLocked() {
	if c.browserCancel != nil {
		c.browserCancel()
		c.browserCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.browserCtx = nil
}

// dropStale forgets browserCtx after a failed call so the next Connect
// attaches again. Failures caused by the caller's own ctx keep it.
func (c *Client) dropStale(ctx, browserCtx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx == browserCtx {
		c.detachLocked()
	}
}

// ListTabs returns every page target except the helper target chromedp
// opened for this client.
func (c *Client) ListTabs(ctx context.Context) ([]types.Tab, error) {
	browserCtx, err := c.browser()
	if err != nil {
		return nil, err
	}

	listCtx, cancel := c.scoped(ctx, browserCtx)
	defer cancel()

	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		c.dropStale(ctx, browserCtx)
		return nil, fmt.Errorf("failed to enumerate targets: %w", err)
	}

	var self target.ID
	if cc := chromedp.FromContext(browserCtx); cc != nil && cc.Target != nil {
		self = cc.Target.TargetID
	}

	tabs := tabsFromTargets(targets, self)
	slog.Debug("cdp tab list", "targets", len(targets), "tabs", len(tabs))
	return tabs, nil
}

// CloseTab closes the target with the given id. A target that no longer
// exists yields types.ErrTabGone.
func (c *Client) CloseTab(ctx context.Context, id string) error {
	browserCtx, err := c.browser()
	if err != nil {
		return err
	}

	closeCtx, cancel := c.scoped(ctx, browserCtx)
	defer cancel()

	cc := chromedp.FromContext(browserCtx)
	if cc == nil || cc.Browser == nil {
		return ErrNotConnected
	}
	if err := target.CloseTarget(target.ID(id)).Do(cdproto.WithExecutor(closeCtx, cc.Browser)); err != nil {
		if isMissingTarget(err) {
			return types.ErrTabGone
		}
		return fmt.Errorf("close target %s: %w", id, err)
	}
	slog.Debug("cdp tab closed", "target_id", id)
	return nil
}

func (c *Client) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx == nil {
		return nil, ErrNotConnected
	}
	return c.browserCtx, nil
}

// scoped derives a chromedp-capable context from the browser context that
// also ends when the caller's ctx does.
func (c *Client) scoped(ctx, browserCtx context.Context) (context.Context, context.CancelFunc) {
	scopedCtx, cancel := context.WithTimeout(browserCtx, c.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return scopedCtx, func() {
		stop()
		cancel()
	}
}

func tabsFromTargets(targets []*target.Info, self target.ID) []types.Tab {
	tabs := make([]types.Tab, 0, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if self != "" && t.TargetID == self {
			continue
		}
		tabs = append(tabs, types.Tab{
			ID:    string(t.TargetID),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return tabs
}

func isMissingTarget(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no target with given id") || strings.Contains(msg, "target closed")
}
