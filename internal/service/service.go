// Package service receives the save-tabs command and the options surface.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabkondo/internal/batch"
	"github.com/dgnsrekt/tabkondo/internal/notify"
	"github.com/dgnsrekt/tabkondo/internal/options"
	"github.com/google/uuid"
)

const (
	missingKeyTitle   = "Missing API Key"
	missingKeyMessage = "No Readwise API key found. Set one with `tabkondo token set <key>` or PUT /api/v1/options/token."
	errorTitle        = "Processing Error"
	maxErrorRunes     = 150
)

// Runner executes one save-all-tabs run.
type Runner interface {
	Run(ctx context.Context, token string) (batch.Summary, error)
}

// Browser attaches to the tab host. Connect is a no-op once attached.
type Browser interface {
	Connect(ctx context.Context) error
}

// OptionsStore persists the API token and the last run error.
type OptionsStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// RunInfo identifies a started run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// Counts is a run summary without per-tab results.
type Counts struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Blocked   int `json:"blocked"`
}

// Status describes the active run, or the last one when none is active.
type Status struct {
	Running    bool       `json:"running"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Counts     *Counts    `json:"counts,omitempty"`
}

// Options is the user-facing view of the stored settings.
type Options struct {
	TokenSet  bool   `json:"token_set"`
	LastError string `json:"last_error,omitempty"`
}

// Service wraps the batch runner with the command preconditions.
type Service struct {
	runner   Runner
	store    OptionsStore
	notifier notify.Notifier
	browser  Browser
	baseCtx  context.Context

	mu     sync.Mutex
	status Status
	wg     sync.WaitGroup
}

// NewService returns a Service. Background runs started by SaveTabs use
// baseCtx, so they outlive the request that started them.
func NewService(baseCtx context.Context, runner Runner, store OptionsStore, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Service{runner: runner, store: store, notifier: notifier, baseCtx: baseCtx}
}

// WithBrowser makes every run attach to the browser first, so a missing
// browser is reported before the run starts.
func (s *Service) WithBrowser(b Browser) *Service {
	s.browser = b
	return s
}

// SaveTabs starts a run in the background.
func (s *Service) SaveTabs(ctx context.Context) (RunInfo, error) {
	token, info, err := s.begin(ctx)
	if err != nil {
		return RunInfo{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(s.baseCtx, info, token); err != nil {
			slog.Debug("background run ended with error", "run_id", info.RunID, "error", err)
		}
	}()
	return info, nil
}

// RunOnce runs in the foreground and returns the summary.
func (s *Service) RunOnce(ctx context.Context) (batch.Summary, error) {
	token, info, err := s.begin(ctx)
	if err != nil {
		return batch.Summary{}, err
	}
	return s.execute(ctx, info, token)
}

// Wait blocks until background runs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) begin(ctx context.Context) (string, RunInfo, error) {
	token, _, err := s.store.Get(options.TokenKey)
	if err != nil {
		return "", RunInfo{}, newError(CodeStorage, "read API token failed", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		slog.Error("No Readwise API token found in storage")
		if nerr := s.notifier.Notify(ctx, missingKeyTitle, missingKeyMessage); nerr != nil {
			slog.Warn("missing key notification failed", "error", nerr)
		}
		return "", RunInfo{}, newError(CodeMissingToken, "missing Readwise API key", nil)
	}

	if s.browser != nil {
		if err := s.browser.Connect(ctx); err != nil {
			return "", RunInfo{}, newError(CodeBrowser, "browser is not reachable over CDP", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return "", RunInfo{}, newError(CodeRunInProgress, "a save run is already in progress: "+s.status.RunID, nil)
	}

	info := RunInfo{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	started := info.StartedAt
	s.status = Status{Running: true, RunID: info.RunID, StartedAt: &started}
	slog.Info("save run started", "run_id", info.RunID)
	return token, info, nil
}

func (s *Service) execute(ctx context.Context, info RunInfo, token string) (batch.Summary, error) {
	summary, runErr := s.runner.Run(ctx, token)

	finished := time.Now().UTC()
	s.mu.Lock()
	s.status.Running = false
	s.status.FinishedAt = &finished
	s.status.Counts = &Counts{
		Processed: summary.Processed,
		Success:   summary.Success,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Blocked:   summary.Blocked,
	}
	if runErr != nil {
		s.status.Error = runErr.Error()
	}
	s.mu.Unlock()

	if runErr != nil {
		if err := s.store.Set(options.LastErrorKey, runErr.Error()); err != nil {
			slog.Warn("persist last error failed", "error", err)
		}
		if err := s.notifier.Notify(ctx, errorTitle, notify.Truncate(runErr.Error(), maxErrorRunes)); err != nil {
			slog.Warn("error notification failed", "error", err)
		}
		slog.Error("save run failed", "run_id", info.RunID, "error", runErr)
		return summary, runErr
	}

	if err := s.store.Delete(options.LastErrorKey); err != nil {
		slog.Warn("clear last error failed", "error", err)
	}
	slog.Info("save run finished", "run_id", info.RunID, "duration_ms", finished.Sub(info.StartedAt).Milliseconds())
	return summary, nil
}

// Options reports whether a token is stored and the last run error.
func (s *Service) Options() (Options, error) {
	token, _, err := s.store.Get(options.TokenKey)
	if err != nil {
		return Options{}, newError(CodeStorage, "read options failed", err)
	}
	lastErr, _, err := s.store.Get(options.LastErrorKey)
	if err != nil {
		return Options{}, newError(CodeStorage, "read options failed", err)
	}
	return Options{TokenSet: strings.TrimSpace(token) != "", LastError: lastErr}, nil
}

func (s *Service) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return newError(CodeValidation, "token is required", nil)
	}
	if err := s.store.Set(options.TokenKey, token); err != nil {
		return newError(CodeStorage, "save token failed", err)
	}
	slog.Info("Readwise API token saved")
	return nil
}

func (s *Service) ClearToken() error {
	if err := s.store.Delete(options.TokenKey); err != nil {
		return newError(CodeStorage, "clear token failed", err)
	}
	slog.Info("Readwise API token cleared")
	return nil
}
