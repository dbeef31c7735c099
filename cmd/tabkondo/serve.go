package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/tabkondo/internal/api"
	"github.com/dgnsrekt/tabkondo/internal/netutil"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var logLevel string
	var launch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and progress stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(logLevel)
			if err != nil {
				return err
			}
			slog.Info("tabkondo config loaded",
				"bind_addr", cfg.BindAddr,
				"cdp_url", cfg.CDPURL(),
				"save_url", cfg.SaveURL,
				"batch_size", cfg.BatchSize,
				"retry_limit", cfg.RetryLimit,
				"batch_delay_ms", cfg.BatchDelayMS,
				"options_file", cfg.OptionsFile,
				"log_level", cfg.LogLevel,
				"log_file", cfg.LogFile,
			)

			ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
			if err != nil {
				return err
			}
			bindAddr := ln.Addr().String()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, launch)
			if err != nil {
				_ = ln.Close()
				return err
			}
			defer a.close()

			// A browser that is not up yet is retried on the first save command.
			if err := a.cdp.Connect(ctx); err != nil {
				slog.Warn("browser not reachable yet", "cdp_url", cfg.CDPURL(), "error", err)
			}

			srv := &http.Server{
				Handler:           api.NewServer(a.svc, a.broker),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("tabkondo listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("tabkondo shutdown failed", "error", err)
			}
			a.svc.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override TABKONDO_LOG_LEVEL")
	cmd.Flags().BoolVar(&launch, "launch", false, "start a local Chromium when nothing listens on the CDP port")
	return cmd
}
