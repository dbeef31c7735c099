package types

import (
	"context"
	"errors"
)

// ErrTabGone is returned by a TabHost when the tab no longer exists.
var ErrTabGone = errors.New("tab already closed")

// Tab is an open browser tab as reported by the host browser.
type Tab struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// TabHost enumerates and closes browser tabs.
// This breaks the import cycle between the batch and cdp packages.
type TabHost interface {
	ListTabs(ctx context.Context) ([]Tab, error)
	CloseTab(ctx context.Context, id string) error
}
