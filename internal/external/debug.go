package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"emailer/internal/types"
)

// DebugProvider writes each message as a MIME file into a directory instead
// of sending it. File names are "<unix-nanos>-<message id>.msg".
type DebugProvider struct {
	dir   string
	clock types.Clock

	mu sync.Mutex
}

// NewDebugProvider creates a DebugProvider writing into dir. The directory is
// created on first send.
func NewDebugProvider(dir string) *DebugProvider {
	return &DebugProvider{dir: dir, clock: types.RealClock{}}
}

func (d *DebugProvider) Name() string { return "debug" }

// Send renders msg and stores it.
func (d *DebugProvider) Send(_ context.Context, msg types.Message) (string, error) {
	now := d.clock.Now()
	raw, err := BuildMIME(msg, now)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create debug mail directory", err)
	}
	name := fmt.Sprintf("%d-%s.msg", now.UnixNano(), msg.ID)
	if err := os.WriteFile(filepath.Join(d.dir, name), raw, 0o644); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to write debug mail", err)
	}
	return name, nil
}

var _ EmailProvider = (*DebugProvider)(nil)
