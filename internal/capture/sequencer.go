package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the sequencer lifecycle state.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrPhaseTimeout is returned when a phase fails to reach its frame quota
// within the configured hard timeout, e.g. because the frame source stalled.
type ErrPhaseTimeout struct {
	Phase    Phase
	Captured int
}

func (e *ErrPhaseTimeout) Error() string {
	return fmt.Sprintf("phase %q timed out with %d of %d frames captured",
		e.Phase.Label, e.Captured, e.Phase.RequiredFrames)
}

// SequencerConfig controls the capture loop timing and quality gate.
type SequencerConfig struct {
	Phases []Phase

	// TickInterval is the delay between capture attempts within a phase.
	TickInterval time.Duration
	// SettleDelay is the pause after a phase completes before the next starts.
	SettleDelay time.Duration
	// PhaseTimeout bounds how long a single phase may run before aborting.
	PhaseTimeout time.Duration

	// MinBrightness rejects frames whose mean luma is below this value
	// (0..1). Zero disables the gate.
	MinBrightness float64

	// OnPhaseStart, if set, is called before each phase begins capturing,
	// e.g. to show the pose instruction to the user.
	OnPhaseStart func(Phase)
}

// Sequencer drives a frame source through an ordered list of pose phases,
// capturing a fixed quota of frames per phase and accumulating a flat tagged
// frame list.
//
// A sequencer may be run more than once: if a run is interrupted before all
// phases complete, the frames captured so far are retained and the next Run
// resumes at the first phase whose quota is not yet met. Completed phases are
// never re-captured, so resuming cannot duplicate frames.
type Sequencer struct {
	cfg   SequencerConfig
	clock Clock

	mu      sync.Mutex
	running bool
	state   State
	phase   int
	counts  []int
	frames  []Frame
}

func NewSequencer(cfg SequencerConfig, clock Clock) *Sequencer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Sequencer{
		cfg:    cfg,
		clock:  clock,
		state:  StateIdle,
		counts: make([]int, len(cfg.Phases)),
	}
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames returns a copy of the frames captured so far, across all runs.
func (s *Sequencer) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Progress returns the number of frames captured per phase.
func (s *Sequencer) Progress() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

// Run captures frames until every phase has met its quota, then returns the
// full accumulated frame list. The frame source is closed on every exit path:
// completion, phase timeout, and cancellation. Run is not reentrant; starting
// a run while one is active is an error, the caller must cancel the previous
// run first.
func (s *Sequencer) Run(ctx context.Context, src FrameSource) ([]Frame, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("capture sequence already running")
	}
	if s.state == StateComplete {
		frames := make([]Frame, len(s.frames))
		copy(frames, s.frames)
		s.mu.Unlock()
		// The source is released even though no capturing happens.
		if err := src.Close(); err != nil {
			slog.Warn("error closing frame source", "error", err)
		}
		return frames, nil
	}
	s.running = true
	s.state = StateCapturing
	s.mu.Unlock()

	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("error closing frame source", "error", err)
		}
		s.mu.Lock()
		s.running = false
		if s.state != StateComplete {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()

	for i, phase := range s.cfg.Phases {
		if s.count(i) >= phase.RequiredFrames {
			continue // quota already met on a previous run
		}

		s.setPhase(i)
		if s.cfg.OnPhaseStart != nil {
			s.cfg.OnPhaseStart(phase)
		}

		if err := s.runPhase(ctx, src, i, phase); err != nil {
			return nil, err
		}

		if i < len(s.cfg.Phases)-1 && s.cfg.SettleDelay > 0 {
			if err := s.clock.Sleep(ctx, s.cfg.SettleDelay); err != nil {
				return nil, err
			}
		}
	}

	s.mu.Lock()
	s.state = StateComplete
	frames := make([]Frame, len(s.frames))
	copy(frames, s.frames)
	s.mu.Unlock()

	return frames, nil
}

func (s *Sequencer) runPhase(ctx context.Context, src FrameSource, i int, phase Phase) error {
	deadline := s.clock.Now().Add(s.cfg.PhaseTimeout)

	for s.count(i) < phase.RequiredFrames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.PhaseTimeout > 0 && !s.clock.Now().Before(deadline) {
			return &ErrPhaseTimeout{Phase: phase, Captured: s.count(i)}
		}

		img, err := src.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("frame capture failed", "phase", phase.Label, "error", err)
		} else if s.accept(img) {
			s.append(i, Frame{Image: img, Angle: phase.Angle})
		}

		if s.count(i) >= phase.RequiredFrames {
			break // skip the trailing tick delay once the quota is met
		}
		if err := s.clock.Sleep(ctx, s.cfg.TickInterval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) accept(img []byte) bool {
	if s.cfg.MinBrightness <= 0 {
		return true
	}
	b, err := Brightness(img)
	if err != nil {
		slog.Warn("could not measure frame brightness, discarding frame", "error", err)
		return false
	}
	if b < s.cfg.MinBrightness {
		slog.Debug("frame below brightness threshold", "brightness", b, "threshold", s.cfg.MinBrightness)
		return false
	}
	return true
}

func (s *Sequencer) count(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[i]
}

func (s *Sequencer) setPhase(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = i
}

func (s *Sequencer) append(i int, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[i]++
	s.frames = append(s.frames, f)
}
