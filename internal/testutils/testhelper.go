package testutils

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// SocketPath returns a unix socket path inside a per-test temp dir. Socket
// paths are length limited, so the dir is created under os.TempDir directly.
func (h *TestHelper) SocketPath() string {
	h.T.Helper()
	dir, err := os.MkdirTemp("", "inoli")
	if err != nil {
		h.T.Fatalf("failed to create temp dir: %v", err)
	}
	h.T.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// Listen opens a unix listener on a fresh socket path.
func (h *TestHelper) Listen() (net.Listener, string) {
	h.T.Helper()
	path := h.SocketPath()
	l, err := net.Listen("unix", path)
	if err != nil {
		h.T.Fatalf("failed to listen on %s: %v", path, err)
	}
	h.T.Cleanup(func() { _ = l.Close() })
	return l, path
}
