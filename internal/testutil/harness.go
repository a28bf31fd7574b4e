package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a context carrying a debug logger. Output is discarded
// unless HYDROSHARD_TEST_LOGS=true, in which case it goes to stderr.
func Context(t testing.TB) context.Context {
	t.Helper()
	var w io.Writer = io.Discard
	if os.Getenv("HYDROSHARD_TEST_LOGS") == "true" {
		w = os.Stderr
	}
	return ContextWithLog(context.Background(), w)
}

// ContextWithLog returns a child of ctx whose logger writes text lines to w.
func ContextWithLog(ctx context.Context, w io.Writer) context.Context {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(ctx, logger)
}
