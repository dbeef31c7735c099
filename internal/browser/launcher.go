package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

const readyTimeout = 15 * time.Second

// Config describes the Chromium instance that hosts the tabs.
type Config struct {
	CDPAddress string
	CDPPort    int
	// Binary overrides browser detection when set.
	Binary     string
	ProfileDir string
}

// Launcher starts a local Chromium with remote debugging enabled so the
// tab host has something to attach to.
type Launcher struct {
	cfg Config
	cmd *exec.Cmd
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.CDPAddress == "" {
		cfg.CDPAddress = "127.0.0.1"
	}
	return &Launcher{cfg: cfg}
}

func (l *Launcher) addr() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

// detectBrowser finds a Chrome/Chromium binary.
func detectBrowser(override string) (string, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return "", fmt.Errorf("browser binary %q: %w", override, err)
		}
		return path, nil
	}
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", candidates)
}

func isListening(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Launch starts the browser unless something already listens on the CDP
// port. It reports whether a process was spawned.
func (l *Launcher) Launch(ctx context.Context) (bool, error) {
	if isListening(l.addr()) {
		slog.Info("browser already listening, skipping launch", "addr", l.addr())
		return false, nil
	}

	browserPath, err := detectBrowser(l.cfg.Binary)
	if err != nil {
		return false, err
	}
	if l.cfg.ProfileDir != "" {
		if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
			return false, fmt.Errorf("create profile dir: %w", err)
		}
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", l.cfg.CDPPort),
		fmt.Sprintf("--remote-debugging-address=%s", l.cfg.CDPAddress),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-breakpad",
	}
	if l.cfg.ProfileDir != "" {
		args = append(args, fmt.Sprintf("--user-data-dir=%s", l.cfg.ProfileDir))
	}

	l.cmd = exec.Command(browserPath, args...)
	if err := l.cmd.Start(); err != nil {
		return false, fmt.Errorf("start browser: %w", err)
	}
	slog.Info("browser process started", "path", browserPath, "pid", l.cmd.Process.Pid)

	if err := l.waitReady(ctx); err != nil {
		l.Stop()
		return false, fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "addr", l.addr())
	return true, nil
}

// waitReady polls /json/version until the browser answers.
func (l *Launcher) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	url := "http://" + l.addr() + "/json/version"
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("CDP not ready at %s: %w", url, ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Stop terminates a spawned browser with SIGTERM, falling back to SIGKILL.
// Browsers the launcher did not start are left alone.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped")
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.cmd = nil
}
