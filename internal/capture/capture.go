package capture

import (
	"context"
	"time"
)

// Angle tags a captured frame with the head orientation it was captured under.
type Angle string

const (
	AngleFrontal Angle = "frontal"
	AngleLeft    Angle = "left"
	AngleRight   Angle = "right"
	AngleUp      Angle = "up"
	AngleDown    Angle = "down"
)

// Frame is one captured image. Immutable once captured; the image bytes are
// an encoded bitmap (jpeg/png) and are treated as opaque until submission.
type Frame struct {
	Image []byte
	Angle Angle
}

// Phase is one step of a guided multi-angle enrollment sequence.
type Phase struct {
	Label          string
	Instruction    string
	RequiredFrames int
	Angle          Angle
}

// DefaultPhases is the standard five-pose enrollment sequence.
func DefaultPhases() []Phase {
	return []Phase{
		{Label: "Front", Instruction: "Look straight at the camera", RequiredFrames: 5, Angle: AngleFrontal},
		{Label: "Left", Instruction: "Turn your head slightly left", RequiredFrames: 3, Angle: AngleLeft},
		{Label: "Right", Instruction: "Turn your head slightly right", RequiredFrames: 3, Angle: AngleRight},
		{Label: "Up", Instruction: "Tilt your head up", RequiredFrames: 2, Angle: AngleUp},
		{Label: "Down", Instruction: "Tilt your head down", RequiredFrames: 2, Angle: AngleDown},
	}
}

// FrameSource produces encoded frames from a camera or equivalent device.
// Capture blocks until a frame is available or ctx is done. Sources are not
// safe for concurrent Capture calls.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)

	Close() error
}

// Clock abstracts time for the capture loops so they can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock { return realClock{} }
