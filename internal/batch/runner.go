// Package batch saves every open tab in sequential, paced batches and closes
// the tabs that were saved.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/tabkondo/internal/notify"
	"github.com/dgnsrekt/tabkondo/internal/readwise"
	"github.com/dgnsrekt/tabkondo/internal/types"
	"github.com/dgnsrekt/tabkondo/internal/urlfilter"
)

// Saver submits one URL to the read-later service.
type Saver interface {
	Save(ctx context.Context, token, pageURL string) error
}

// Reporter receives run progress.
type Reporter interface {
	Progress(percent int)
	Complete(successCount, failCount int)
	Error(err string)
}

type nopReporter struct{}

func (nopReporter) Progress(int)      {}
func (nopReporter) Complete(int, int) {}
func (nopReporter) Error(string)      {}

// Settings controls batch size, retries and pacing.
type Settings struct {
	BatchSize         int
	RetryLimit        int
	BatchDelay        time.Duration
	DefaultRetryAfter time.Duration
}

// DefaultSettings are two tabs per batch, two attempts per tab, 1.5s between
// batches and a 2s backoff when a 429 carries no Retry-After.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:         2,
		RetryLimit:        2,
		BatchDelay:        1500 * time.Millisecond,
		DefaultRetryAfter: 2 * time.Second,
	}
}

// Runner executes save-all-tabs runs. A Runner must not execute two runs at
// once; the status map is shared by the run in flight.
type Runner struct {
	host       types.TabHost
	saver      Saver
	normalizer *urlfilter.Normalizer
	reporter   Reporter
	notifier   notify.Notifier
	settings   Settings
	status     *StatusMap
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRunner(host types.TabHost, saver Saver, normalizer *urlfilter.Normalizer, reporter Reporter, notifier notify.Notifier, settings Settings) *Runner {
	defaults := DefaultSettings()
	if settings.BatchSize < 1 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.RetryLimit < 1 {
		settings.RetryLimit = defaults.RetryLimit
	}
	if normalizer == nil {
		normalizer = urlfilter.New()
	}
	if notifier == nil {
		notifier = notify.Log{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Runner{
		host:       host,
		saver:      saver,
		normalizer: normalizer,
		reporter:   reporter,
		notifier:   notifier,
		settings:   settings,
		status:     NewStatusMap(),
		sleep:      sleepContext,
	}
}

// Run enumerates all tabs and saves them batch by batch. Per-tab failures
// only show up in the summary; the returned error is reserved for failures
// of the run itself, which are also sent to the reporter.
func (r *Runner) Run(ctx context.Context, token string) (summary Summary, err error) {
	defer r.status.Clear()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected panic: %v", rec)
		}
		if err != nil {
			slog.Error("batch run failed", "error", err, "processed", summary.Processed)
			r.reporter.Error(err.Error())
		}
	}()

	tabs, err := r.host.ListTabs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list tabs: %w", err)
	}

	total := len(tabs)
	slog.Info("Processing tabs", "count", total, "batch_size", r.settings.BatchSize)
	r.reporter.Progress(0)

	for start := 0; start < total; start += r.settings.BatchSize {
		end := min(start+r.settings.BatchSize, total)
		summary.add(r.processBatch(ctx, token, tabs[start:end])...)

		percent := start * 100 / total
		r.reporter.Progress(percent)
		slog.Debug("batch done", "start", start, "end", end, "percent", percent)

		if end < total {
			if err := r.sleep(ctx, r.settings.BatchDelay); err != nil {
				return summary, fmt.Errorf("batch delay: %w", err)
			}
		}
	}

	r.reporter.Complete(summary.Success, summary.Failed)
	slog.Info("Run complete",
		"processed", summary.Processed,
		"success", summary.Success,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"blocked", summary.Blocked,
	)
	for _, res := range summary.Results {
		if res.Outcome == OutcomeFailed {
			slog.Warn("tab not saved", "tab_id", res.TabID, "url", res.URL, "error", res.Error)
		}
	}

	msg := fmt.Sprintf("Saved %d tabs, %d failures", summary.Success, summary.Failed)
	if nerr := r.notifier.Notify(ctx, "TabKondo Complete", msg); nerr != nil {
		slog.Warn("completion notification failed", "error", nerr)
	}
	return summary, nil
}

// processBatch submits every eligible tab concurrently and waits for all of
// them, whatever their outcome.
func (r *Runner) processBatch(ctx context.Context, token string, tabs []types.Tab) []Result {
	eligible := make([]types.Tab, 0, len(tabs))
	seen := make(map[string]bool, len(tabs))
	for _, tab := range tabs {
		if tab.ID == "" || tab.Closed || seen[tab.ID] || r.status.Has(tab.ID) {
			slog.Debug("tab not eligible", "tab_id", tab.ID, "closed", tab.Closed)
			continue
		}
		seen[tab.ID] = true
		eligible = append(eligible, tab)
	}

	results := make([]Result, len(eligible))
	var wg sync.WaitGroup
	for i, tab := range eligible {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.status.Remove(tab.ID)
					results[i] = Result{TabID: tab.ID, URL: tab.URL, Outcome: OutcomeFailed, Error: fmt.Sprintf("panic: %v", rec)}
				}
			}()
			results[i] = r.processTab(ctx, token, tab)
		}()
	}
	wg.Wait()
	return results
}

func (r *Runner) processTab(ctx context.Context, token string, tab types.Tab) Result {
	finalURL, verdict := r.normalizer.Normalize(tab.URL)
	switch verdict {
	case urlfilter.Blocked:
		slog.Info("Blocked internal URL", "tab_id", tab.ID, "url", finalURL)
		return Result{TabID: tab.ID, URL: finalURL, Outcome: OutcomeBlocked}
	case urlfilter.Skipped:
		slog.Warn("Skipping invalid URL", "tab_id", tab.ID, "url", finalURL)
		return Result{TabID: tab.ID, URL: finalURL, Outcome: OutcomeSkipped}
	}

	r.status.Set(tab.ID, StatusProcessing)

	var lastErr error
	for attempt := 1; attempt <= r.settings.RetryLimit; attempt++ {
		err := r.saver.Save(ctx, token, finalURL)
		if err == nil {
			r.closeTab(ctx, tab.ID)
			r.status.Set(tab.ID, StatusCompleted)
			return Result{TabID: tab.ID, URL: finalURL, Outcome: OutcomeSuccess}
		}

		lastErr = err
		slog.Warn("save attempt failed", "tab_id", tab.ID, "url", finalURL, "attempt", attempt, "error", err)

		if readwise.IsPermanent(err) || ctx.Err() != nil {
			break
		}

		var rateLimited *readwise.RateLimitError
		if errors.As(err, &rateLimited) && attempt < r.settings.RetryLimit {
			wait := rateLimited.RetryAfter
			if wait <= 0 {
				wait = r.settings.DefaultRetryAfter
			}
			if serr := r.sleep(ctx, wait); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	r.status.Remove(tab.ID)
	return Result{TabID: tab.ID, URL: finalURL, Outcome: OutcomeFailed, Error: lastErr.Error()}
}

// closeTab is best effort; a save is not undone because the tab could not
// be closed.
func (r *Runner) closeTab(ctx context.Context, tabID string) {
	err := r.host.CloseTab(ctx, tabID)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrTabGone):
		slog.Info("Tab already closed", "tab_id", tabID)
	default:
		slog.Warn("Tab close failed", "tab_id", tabID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
