package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/luki/sensorstream/internal/protocol"
)

// EmitFrames writes one encoded reading frame from g to w every g.Interval
// until ctx is cancelled or a write fails. It lets the binary act as its
// own external source.
func EmitFrames(ctx context.Context, w io.Writer, g *Synthetic) error {
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r := g.Next()
			frame := protocol.EncodeReading(r.ID, r.Temperature)
			if _, err := w.Write(frame[:]); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}
