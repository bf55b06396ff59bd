package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
)

// FindFreePort returns an unused TCP port on 127.0.0.1.
func FindFreePort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return fmt.Sprintf("%d", l.Addr().(*net.TCPAddr).Port), nil
}

// Logger returns a debug logger on stderr under `go test -v` and a
// discarding one otherwise. It never writes through t.Log because
// background workers may log after the test returns.
func Logger() *slog.Logger {
	var w io.Writer = io.Discard
	if testing.Verbose() {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
