package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/tabkondo/internal/progress"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommands(t *testing.T) {
	t.Setenv("TABKONDO_OPTIONS_FILE", filepath.Join(t.TempDir(), "options.json"))

	out, err := runRoot(t, "token", "status")
	if err != nil {
		t.Fatalf("token status error = %v", err)
	}
	if !strings.Contains(out, "token: not set") {
		t.Fatalf("status output = %q", out)
	}

	if _, err := runRoot(t, "token", "set", "abc123"); err != nil {
		t.Fatalf("token set error = %v", err)
	}
	out, err = runRoot(t, "token", "status")
	if err != nil {
		t.Fatalf("token status error = %v", err)
	}
	if !strings.Contains(out, "token: set") {
		t.Fatalf("status output = %q", out)
	}

	if _, err := runRoot(t, "token", "clear"); err != nil {
		t.Fatalf("token clear error = %v", err)
	}
	out, _ = runRoot(t, "token", "status")
	if !strings.Contains(out, "token: not set") {
		t.Fatalf("status output after clear = %q", out)
	}
}

func TestTokenSetRejectsBlank(t *testing.T) {
	t.Setenv("TABKONDO_OPTIONS_FILE", filepath.Join(t.TempDir(), "options.json"))
	if _, err := runRoot(t, "token", "set", "   "); err == nil {
		t.Fatal("token set blank error = nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		msg  progress.Message
		want string
	}{
		{progress.ProgressMessage(40), "progress: 40%"},
		{progress.CompleteMessage(3, 1), "complete: 3 saved, 1 failed"},
		{progress.ErrorMessage("boom"), "error: boom"},
	}
	for _, tt := range tests {
		if got := formatMessage(tt.msg); got != tt.want {
			t.Errorf("formatMessage() = %q; want %q", got, tt.want)
		}
	}
}

func TestPrintProgressStopsOnClose(t *testing.T) {
	broker := progress.NewBroker()
	id, events := broker.Subscribe()
	progress.NewReporter(broker).Progress(50)
	broker.Unsubscribe(id)

	var out bytes.Buffer
	printProgress(&out, events)
	if got := strings.TrimSpace(out.String()); got != "progress: 50%" {
		t.Fatalf("output = %q", got)
	}
}
