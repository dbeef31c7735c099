package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgnsrekt/tabkondo/internal/progress"
	"github.com/spf13/cobra"
)

func newSaveCmd() *cobra.Command {
	var logLevel string
	var launch bool
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save all open tabs once and print progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, launch)
			if err != nil {
				return err
			}
			defer a.close()

			id, events := a.broker.Subscribe()
			done := make(chan struct{})
			go func() {
				defer close(done)
				printProgress(cmd.OutOrStdout(), events)
			}()

			summary, runErr := a.svc.RunOnce(cmd.Context())
			a.broker.Unsubscribe(id)
			<-done
			if runErr != nil {
				return runErr
			}

			slog.Info("save finished",
				"processed", summary.Processed,
				"success", summary.Success,
				"failed", summary.Failed,
				"skipped", summary.Skipped,
				"blocked", summary.Blocked,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override TABKONDO_LOG_LEVEL")
	cmd.Flags().BoolVar(&launch, "launch", false, "start a local Chromium when nothing listens on the CDP port")
	return cmd
}

// printProgress renders broker events until the channel closes.
func printProgress(out io.Writer, events <-chan progress.Event) {
	for evt := range events {
		var msg progress.Message
		if err := json.Unmarshal(evt.Payload, &msg); err != nil {
			slog.Debug("undecodable progress event", "error", err)
			continue
		}
		_, _ = fmt.Fprintln(out, formatMessage(msg))
	}
}

func formatMessage(msg progress.Message) string {
	switch msg.Type {
	case progress.TypeProgress:
		if msg.Percent != nil {
			return fmt.Sprintf("progress: %d%%", *msg.Percent)
		}
	case progress.TypeComplete:
		if msg.SuccessCount != nil && msg.FailCount != nil {
			return fmt.Sprintf("complete: %d saved, %d failed", *msg.SuccessCount, *msg.FailCount)
		}
	case progress.TypeError:
		return "error: " + msg.Error
	}
	return string(msg.Type)
}
