package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"sync"

	"alphapack/internal/services"
)

const stderrTailLimit = 8 << 10

// tailBuffer keeps the last stderrTailLimit bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTailLimit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// classify turns a process failure into a marked error. A cancelled context
// wins over the exit status since ffmpeg is killed in that case.
func classify(ctx context.Context, stage, operation string, stderr *tailBuffer, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		marker := services.ErrUserCancelled
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, stage, operation, "ffmpeg interrupted", ctxErr)
	}
	msg := "ffmpeg failed"
	if stderr != nil {
		if tail := stderr.String(); tail != "" {
			msg = tail
		}
	}
	return services.Wrap(services.ErrExternalTool, stage, operation, msg, err)
}

func binaryOrDefault(binary string) string {
	if b := strings.TrimSpace(binary); b != "" {
		return b
	}
	return "ffmpeg"
}
