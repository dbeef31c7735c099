package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/tabkondo/internal/batch"
	"github.com/dgnsrekt/tabkondo/internal/browser"
	"github.com/dgnsrekt/tabkondo/internal/cdp"
	"github.com/dgnsrekt/tabkondo/internal/config"
	"github.com/dgnsrekt/tabkondo/internal/notify"
	"github.com/dgnsrekt/tabkondo/internal/options"
	"github.com/dgnsrekt/tabkondo/internal/progress"
	"github.com/dgnsrekt/tabkondo/internal/readwise"
	"github.com/dgnsrekt/tabkondo/internal/service"
	"github.com/dgnsrekt/tabkondo/internal/urlfilter"
)

// app is the wired object graph shared by serve and save.
type app struct {
	cfg      *config.Config
	cdp      *cdp.Client
	launcher *browser.Launcher
	broker   *progress.Broker
	svc      *service.Service
}

func loadConfig(logLevel string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("logger setup failed: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, launch bool) (*app, error) {
	a := &app{cfg: cfg, broker: progress.NewBroker()}

	if launch || cfg.BrowserLaunch {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			Binary:     cfg.BrowserBinary,
			ProfileDir: cfg.BrowserProfileDir,
		})
		if _, err := a.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	store, err := options.NewStore(cfg.OptionsFile)
	if err != nil {
		a.close()
		return nil, err
	}

	var extra []urlfilter.Suspender
	if cfg.SuspendersFile != "" {
		extra, err = urlfilter.LoadSuspenders(cfg.SuspendersFile)
		if err != nil {
			a.close()
			return nil, err
		}
		slog.Info("loaded tab suspenders", "file", cfg.SuspendersFile, "count", len(extra))
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	notifier := notify.New(httpClient, cfg.NTFYEndpoint)
	saver := readwise.NewClient(cfg.SaveURL, cfg.SourceTag, httpClient)

	a.cdp = cdp.NewClient(cfg.CDPURL(), cfg.RequestTimeout())
	runner := batch.NewRunner(a.cdp, saver, urlfilter.New(extra...), progress.NewReporter(a.broker), notifier, batch.Settings{
		BatchSize:         cfg.BatchSize,
		RetryLimit:        cfg.RetryLimit,
		BatchDelay:        cfg.BatchDelay(),
		DefaultRetryAfter: cfg.DefaultRetryAfter(),
	})
	a.svc = service.NewService(ctx, runner, store, notifier).WithBrowser(a.cdp)
	return a, nil
}

// close detaches from the browser and stops it if this process launched it.
func (a *app) close() {
	if a.cdp != nil {
		if err := a.cdp.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}
	if a.launcher != nil {
		a.launcher.Stop()
	}
}
