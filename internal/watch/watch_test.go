package watch

import (
	"context"
	"testing"
	"time"

	"github.com/vaultcodec/filevault/internal/vlog"
)

func TestMaxInt(t *testing.T) {
	if maxInt(1, 3) != 3 {
		t.Error("maxInt(1,3) != 3")
	}
	if maxInt(5, 2) != 5 {
		t.Error("maxInt(5,2) != 5")
	}
}

func TestRunRejectsMissingDirectory(t *testing.T) {
	c := &Config{
		Dir:    "/path/does/not/exist/at/all",
		Log:    vlog.Discard,
		Width:  320,
		Height: 240,
		FPS:    10,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, c); err == nil {
		t.Error("expected error watching a nonexistent directory")
	}
}
