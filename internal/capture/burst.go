package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultBurstFrames    = 30
	DefaultBurstMinFrames = 15
	DefaultBurstInterval  = 100 * time.Millisecond
)

// ErrInsufficientFrames is returned when a burst captured fewer frames than
// the minimum viable count, e.g. because the camera stalled or permission was
// revoked mid-sequence. The burst must not be submitted; the caller should
// prompt the user to retry.
type ErrInsufficientFrames struct {
	Captured int
	Required int
}

func (e *ErrInsufficientFrames) Error() string {
	return fmt.Sprintf("only %d of %d required frames captured, please retry", e.Captured, e.Required)
}

// BurstConfig controls a fixed-cadence burst capture.
type BurstConfig struct {
	TotalFrames int
	MinFrames   int
	Interval    time.Duration

	// MinBrightness rejects frames below this mean luma (0..1); zero disables.
	MinBrightness float64
}

func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		TotalFrames: DefaultBurstFrames,
		MinFrames:   DefaultBurstMinFrames,
		Interval:    DefaultBurstInterval,
	}
}

// CaptureBurst captures cfg.TotalFrames frames at a steady cadence, skipping
// the trailing delay after the last attempt. Individual capture failures and
// frames failing the brightness gate are skipped, not retried. If fewer than
// cfg.MinFrames frames succeed the whole burst is rejected locally with
// ErrInsufficientFrames. The frame source is closed on every exit path.
func CaptureBurst(ctx context.Context, clock Clock, src FrameSource, cfg BurstConfig) ([][]byte, error) {
	if clock == nil {
		clock = SystemClock()
	}

	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("error closing frame source", "error", err)
		}
	}()

	frames := make([][]byte, 0, cfg.TotalFrames)
	for i := 0; i < cfg.TotalFrames; i++ {
		img, err := src.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("burst frame capture failed", "frame", i, "error", err)
		} else if acceptBrightness(img, cfg.MinBrightness) {
			frames = append(frames, img)
		}

		if i < cfg.TotalFrames-1 {
			if err := clock.Sleep(ctx, cfg.Interval); err != nil {
				return nil, err
			}
		}
	}

	if len(frames) < cfg.MinFrames {
		return nil, &ErrInsufficientFrames{Captured: len(frames), Required: cfg.MinFrames}
	}

	return frames, nil
}

func acceptBrightness(img []byte, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	b, err := Brightness(img)
	if err != nil {
		slog.Warn("could not measure frame brightness, discarding frame", "error", err)
		return false
	}
	return b >= threshold
}
