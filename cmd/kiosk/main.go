package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eduface-backend/cmd"
	"eduface-backend/internal/capture"
	"eduface-backend/pkg/api"

	"github.com/caarlos0/env/v11"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// The kiosk reads JPEG frames from a spool directory that the camera daemon
// writes into, runs them through the capture pipeline, and submits the result
// to the backend API.
type KioskConfig struct {
	APIURL        string  `env:"API_URL" envDefault:"http://localhost:8000"`
	SpoolDir      string  `env:"SPOOL_DIR" envDefault:"./frames"`
	MinBrightness float64 `env:"MIN_BRIGHTNESS" envDefault:"0.15"`
	PhaseTimeout  int     `env:"PHASE_TIMEOUT_SECONDS" envDefault:"60"`
}

func main() {
	var (
		mode    = flag.String("mode", "checkin", "capture mode: enroll or checkin")
		subject = flag.String("subject", "", "subject id of the person in front of the camera")
		unit    = flag.String("unit", "", "unit id whose open session to check in to (checkin mode)")
		session = flag.String("session", "", "explicit attendance session id (checkin mode, optional)")
	)

	cmd.LoadEnvFile()

	var cfg KioskConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	subjectId, err := uuid.Parse(*subject)
	if err != nil {
		log.Fatalf("invalid -subject id %q: %v", *subject, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := resty.New().SetBaseURL(cfg.APIURL)

	switch *mode {
	case "enroll":
		err = runEnrollment(ctx, client, cfg, subjectId)
	case "checkin":
		err = runCheckIn(ctx, client, cfg, subjectId, *unit, *session)
	default:
		log.Fatalf("unknown mode %q, expected enroll or checkin", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

func runEnrollment(ctx context.Context, client *resty.Client, cfg KioskConfig, subjectId uuid.UUID) error {
	src, err := capture.NewSpoolSource(cfg.SpoolDir)
	if err != nil {
		return fmt.Errorf("error opening frame spool: %w", err)
	}

	seq := capture.NewSequencer(capture.SequencerConfig{
		Phases:        capture.DefaultPhases(),
		TickInterval:  200 * time.Millisecond,
		SettleDelay:   2 * time.Second,
		PhaseTimeout:  time.Duration(cfg.PhaseTimeout) * time.Second,
		MinBrightness: cfg.MinBrightness,
		OnPhaseStart: func(p capture.Phase) {
			fmt.Fprintf(os.Stderr, "\n>>> %s\n", p.Instruction)
		},
	}, nil)

	frames, err := seq.Run(ctx, src)
	if err != nil {
		return fmt.Errorf("capture sequence failed: %w", err)
	}
	log.Printf("captured %d frames across %d phases", len(frames), len(capture.DefaultPhases()))

	req := api.SubmitEnrollmentRequest{Frames: make([]api.CapturedFrame, 0, len(frames))}
	for _, f := range frames {
		req.Frames = append(req.Frames, api.CapturedFrame{
			ImageData: base64.StdEncoding.EncodeToString(f.Image),
			Angle:     string(f.Angle),
		})
	}

	var res api.SubmitEnrollmentResponse
	httpRes, err := client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		Post(fmt.Sprintf("/profiles/%s/enroll", subjectId))
	if err != nil {
		return fmt.Errorf("error submitting enrollment: %w", err)
	}
	if httpRes.IsError() {
		return fmt.Errorf("enrollment rejected: %d %s", httpRes.StatusCode(), httpRes.String())
	}

	log.Printf("enrollment submitted for subject %s, status %s", res.SubjectId, res.Status)
	return nil
}

func runCheckIn(ctx context.Context, client *resty.Client, cfg KioskConfig, subjectId uuid.UUID, unit, session string) error {
	req := api.SubmitCheckInRequest{SubjectId: subjectId}
	switch {
	case session != "":
		id, err := uuid.Parse(session)
		if err != nil {
			return fmt.Errorf("invalid -session id %q: %w", session, err)
		}
		req.SessionId = id
	case unit != "":
		id, err := uuid.Parse(unit)
		if err != nil {
			return fmt.Errorf("invalid -unit id %q: %w", unit, err)
		}
		req.UnitId = id
	default:
		return fmt.Errorf("checkin mode requires -unit or -session")
	}

	src, err := capture.NewSpoolSource(cfg.SpoolDir)
	if err != nil {
		return fmt.Errorf("error opening frame spool: %w", err)
	}

	burstCfg := capture.DefaultBurstConfig()
	burstCfg.MinBrightness = cfg.MinBrightness

	frames, err := capture.CaptureBurst(ctx, nil, src, burstCfg)
	if err != nil {
		return fmt.Errorf("burst capture failed: %w", err)
	}
	log.Printf("captured burst of %d frames", len(frames))

	for _, img := range frames {
		req.Frames = append(req.Frames, base64.StdEncoding.EncodeToString(img))
	}

	var res api.SubmitCheckInResponse
	httpRes, err := client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		Post("/checkins")
	if err != nil {
		return fmt.Errorf("error submitting check-in: %w", err)
	}
	if httpRes.IsError() {
		return fmt.Errorf("check-in rejected: %d %s", httpRes.StatusCode(), httpRes.String())
	}

	log.Printf("check-in %s accepted for session %s, status %s", res.CheckInId, res.SessionId, res.Status)
	return nil
}
