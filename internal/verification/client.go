package verification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"eduface-backend/internal/capture"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const requestTimeout = 30 * time.Second

// Client talks to the remote face verification service. The service owns the
// actual matching and liveness algorithms; this client only packages frames
// and interprets the structured response.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	client := resty.New().SetBaseURL(baseURL)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Client{http: client}
}

// EncodeFrames base64-encodes raw frame bytes for the wire.
func EncodeFrames(frames [][]byte) []string {
	encoded := make([]string, len(frames))
	for i, f := range frames {
		encoded[i] = base64.StdEncoding.EncodeToString(f)
	}
	return encoded
}

type VerifyRequest struct {
	SubjectId uuid.UUID `json:"subjectId"`
	SessionId uuid.UUID `json:"sessionId"`
	Frames    []string  `json:"frames"`
}

type Liveness struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

type VerifyResult struct {
	Verified        bool     `json:"verified"`
	Confidence      float64  `json:"confidence"`
	Liveness        Liveness `json:"liveness"`
	FramesProcessed int      `json:"framesProcessed"`
	AttendanceRef   string   `json:"attendanceRef,omitempty"`
}

type remoteError struct {
	Error       string `json:"error"`
	ValidFrames int    `json:"validFrames"`
	Required    int    `json:"required"`
}

// Verify submits a burst frame batch for one subject and session. A
// well-formed response with Verified == false is a soft failure and is
// returned without error so the caller can show the diagnostic summary.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/v1/verify")
	if err != nil {
		slog.Error("verification request failed", "subject_id", req.SubjectId, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	if err := remoteErrorOf(res); err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		slog.Error("error parsing verification response", "error", err)
		return nil, fmt.Errorf("%w: malformed response", ErrRemoteUnavailable)
	}

	return &result, nil
}

type EnrollImage struct {
	ImageData string        `json:"imageData"`
	Angle     capture.Angle `json:"angle"`
}

type EnrollRequest struct {
	SubjectId uuid.UUID     `json:"subjectId"`
	Images    []EnrollImage `json:"images"`
}

type EnrollResult struct {
	Success      bool      `json:"success"`
	QualityScore float64   `json:"qualityScore"`
	Timestamp    time.Time `json:"timestamp"`
}

// Enroll submits a tagged multi-angle image set to create or replace the
// subject's face profile.
func (c *Client) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/v1/enroll")
	if err != nil {
		slog.Error("enrollment request failed", "subject_id", req.SubjectId, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	if err := remoteErrorOf(res); err != nil {
		return nil, err
	}

	var result EnrollResult
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		slog.Error("error parsing enrollment response", "error", err)
		return nil, fmt.Errorf("%w: malformed response", ErrRemoteUnavailable)
	}

	if !result.Success {
		return nil, fmt.Errorf("%w: enrollment rejected", ErrVerificationFailed)
	}

	return &result, nil
}

// remoteErrorOf extracts and classifies an upstream error, whether it arrived
// as a non-2xx status or as an error field in a 200 payload.
func remoteErrorOf(res *resty.Response) error {
	var remote remoteError
	if err := json.Unmarshal(res.Body(), &remote); err == nil && remote.Error != "" {
		return ClassifyRemoteError(remote.Error, remote.ValidFrames, remote.Required)
	}

	if !res.IsSuccess() {
		slog.Error("verification service returned error", "status_code", res.StatusCode(), "body", res.String())
		return fmt.Errorf("%w: status %d", ErrRemoteUnavailable, res.StatusCode())
	}

	return nil
}
