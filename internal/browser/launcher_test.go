package browser

import (
	"context"
	"net"
	"strconv"
	"testing"
)

func TestLaunchSkipsWhenPortListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	l := NewLauncher(Config{CDPPort: port, Binary: "definitely-not-a-browser-binary"})
	spawned, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if spawned {
		t.Fatal("Launch() spawned a browser while the port was taken")
	}
}

func TestDetectBrowserOverrideMissing(t *testing.T) {
	if _, err := detectBrowser("definitely-not-a-browser-binary"); err == nil {
		t.Fatal("detectBrowser() error = nil; want lookup failure")
	}
}

func TestStopWithoutProcess(t *testing.T) {
	NewLauncher(Config{}).Stop()
}
