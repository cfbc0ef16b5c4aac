package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eduface-backend/internal/database"
	"eduface-backend/internal/messaging"
	"eduface-backend/internal/storage"
	"eduface-backend/internal/utils"
	"eduface-backend/internal/verification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const downloadWorkers = 8

// Verifier is the slice of the verification client the processor needs.
type Verifier interface {
	Verify(ctx context.Context, req verification.VerifyRequest) (*verification.VerifyResult, error)
	Enroll(ctx context.Context, req verification.EnrollRequest) (*verification.EnrollResult, error)
}

// TaskProcessor consumes enrollment and check-in tasks from the queue,
// downloads the stored frames, submits them to the verification service, and
// records the outcome.
type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.Provider
	verifier Verifier
	receiver messaging.Receiver

	frameBucket string
}

func NewTaskProcessor(db *gorm.DB, store storage.Provider, verifier Verifier, receiver messaging.Receiver, frameBucket string) *TaskProcessor {
	return &TaskProcessor{
		db:          db,
		storage:     store,
		verifier:    verifier,
		receiver:    receiver,
		frameBucket: frameBucket,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.receiver.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.receiver.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.VerifyQueue:
		var payload messaging.VerifyTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling verify task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processVerifyTask(ctx, payload)

	case messaging.EnrollQueue:
		var payload messaging.EnrollTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling enroll task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processEnrollTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

type frameDownload struct {
	index int
	key   string
}

type downloadedFrame struct {
	index int
	data  []byte
}

// downloadFrames fetches the stored frames in parallel, preserving submission
// order so pose angles stay paired with the right image.
func (proc *TaskProcessor) downloadFrames(ctx context.Context, keys []string) ([][]byte, error) {
	queue := make(chan frameDownload, len(keys))
	for i, key := range keys {
		queue <- frameDownload{index: i, key: key}
	}
	close(queue)

	completed := make(chan utils.CompletedTask[downloadedFrame], len(keys))

	utils.RunInPool(func(dl frameDownload) (downloadedFrame, error) {
		data, err := proc.storage.GetObject(ctx, proc.frameBucket, dl.key)
		if err != nil {
			return downloadedFrame{}, fmt.Errorf("error downloading frame %s: %w", dl.key, err)
		}
		return downloadedFrame{index: dl.index, data: data}, nil
	}, queue, completed, downloadWorkers)

	frames := make([][]byte, len(keys))
	for result := range completed {
		if result.Error != nil {
			return nil, result.Error
		}
		frames[result.Result.index] = result.Result.data
	}

	return frames, nil
}

func (proc *TaskProcessor) deleteFrames(ctx context.Context, prefix string) {
	if err := proc.storage.DeleteObjects(ctx, proc.frameBucket, prefix); err != nil {
		slog.Error("error deleting submitted frames", "prefix", prefix, "error", err)
	}
}

func (proc *TaskProcessor) processVerifyTask(ctx context.Context, payload messaging.VerifyTaskPayload) error {
	slog.Info("processing verify task", "check_in_id", payload.CheckInId, "subject_id", payload.SubjectId)

	var checkIn database.CheckIn
	if err := proc.db.WithContext(ctx).First(&checkIn, "id = ?", payload.CheckInId).Error; err != nil {
		slog.Error("error fetching check-in", "check_in_id", payload.CheckInId, "error", err)
		return fmt.Errorf("error getting check-in: %w", err)
	}

	if checkIn.Status != database.CheckInQueued && checkIn.Status != database.CheckInProcessing {
		slog.Info("check-in already settled, skipping", "check_in_id", payload.CheckInId, "status", checkIn.Status)
		return nil
	}

	if err := database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInProcessing); err != nil {
		slog.Error("error marking check-in as processing", "check_in_id", payload.CheckInId, "error", err)
	}

	frames, err := proc.downloadFrames(ctx, payload.FrameKeys)
	if err != nil {
		database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInFailed) //nolint:errcheck
		database.SaveCheckInError(ctx, proc.db, payload.CheckInId, err.Error())
		return err
	}

	result, err := proc.verifier.Verify(ctx, verification.VerifyRequest{
		SubjectId: payload.SubjectId,
		SessionId: payload.SessionId,
		Frames:    verification.EncodeFrames(frames),
	})
	if err != nil {
		return proc.settleVerifyError(ctx, payload, err)
	}

	liveness, _ := json.Marshal(result.Liveness)
	if err := proc.db.WithContext(ctx).
		Model(&database.CheckIn{Id: payload.CheckInId}).
		Updates(map[string]any{
			"confidence":       result.Confidence,
			"frames_processed": result.FramesProcessed,
			"liveness":         datatypes.JSON(liveness),
		}).Error; err != nil {
		slog.Error("error saving verification diagnostics", "check_in_id", payload.CheckInId, "error", err)
	}

	if result.Verified {
		record := database.AttendanceRecord{
			Id:         uuid.New(),
			SessionId:  payload.SessionId,
			SubjectId:  payload.SubjectId,
			CheckInId:  payload.CheckInId,
			Confidence: result.Confidence,
			RecordedAt: time.Now().UTC(),
		}

		// A subject verified twice in one session keeps the first record.
		if err := proc.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInFailed) //nolint:errcheck
			database.SaveCheckInError(ctx, proc.db, payload.CheckInId, fmt.Sprintf("error saving attendance record: %s", err.Error()))
			return fmt.Errorf("error saving attendance record: %w", err)
		}

		if err := database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInVerified); err != nil {
			return fmt.Errorf("error updating check-in status to verified: %w", err)
		}
	} else {
		database.SaveCheckInError(ctx, proc.db, payload.CheckInId, fmt.Sprintf("face match failed with confidence %.2f", result.Confidence))
		if err := database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInRejected); err != nil {
			return fmt.Errorf("error updating check-in status to rejected: %w", err)
		}
	}

	proc.deleteFrames(ctx, CheckInFramePrefix(payload.CheckInId))

	slog.Info("verify task completed", "check_in_id", payload.CheckInId, "verified", result.Verified)

	return nil
}

// settleVerifyError records a classified verification failure. Failures the
// service definitively reported (liveness, not enrolled, bad session) are
// settled and acked; transport errors leave the frames in place and surface
// the error so the task is retried or dead-lettered.
func (proc *TaskProcessor) settleVerifyError(ctx context.Context, payload messaging.VerifyTaskPayload, verifyErr error) error {
	database.SaveCheckInError(ctx, proc.db, payload.CheckInId, verifyErr.Error())

	var livenessErr *verification.LivenessError
	switch {
	case errors.As(verifyErr, &livenessErr):
		slog.Info("check-in rejected by liveness check", "check_in_id", payload.CheckInId,
			"passed", livenessErr.Passed, "required", livenessErr.Required)
		if err := database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInRejected); err != nil {
			return err
		}
		proc.deleteFrames(ctx, CheckInFramePrefix(payload.CheckInId))
		return nil

	case errors.Is(verifyErr, verification.ErrNotEnrolled),
		errors.Is(verifyErr, verification.ErrSessionInvalid),
		errors.Is(verifyErr, verification.ErrVerificationFailed):
		if err := database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInFailed); err != nil {
			return err
		}
		proc.deleteFrames(ctx, CheckInFramePrefix(payload.CheckInId))
		return nil

	default:
		database.UpdateCheckInStatus(ctx, proc.db, payload.CheckInId, database.CheckInFailed) //nolint:errcheck
		return verifyErr
	}
}

func (proc *TaskProcessor) processEnrollTask(ctx context.Context, payload messaging.EnrollTaskPayload) error {
	slog.Info("processing enroll task", "subject_id", payload.SubjectId, "frames", len(payload.Frames))

	if err := database.UpdateFaceProfileStatus(ctx, proc.db, payload.SubjectId, database.ProfileProcessing); err != nil {
		slog.Error("error marking face profile as processing", "subject_id", payload.SubjectId, "error", err)
	}

	keys := make([]string, len(payload.Frames))
	for i, frame := range payload.Frames {
		keys[i] = frame.Key
	}

	frames, err := proc.downloadFrames(ctx, keys)
	if err != nil {
		database.UpdateFaceProfileStatus(ctx, proc.db, payload.SubjectId, database.ProfileFailed) //nolint:errcheck
		return err
	}

	images := make([]verification.EnrollImage, len(frames))
	encoded := verification.EncodeFrames(frames)
	for i, frame := range payload.Frames {
		images[i] = verification.EnrollImage{ImageData: encoded[i], Angle: frame.Angle}
	}

	result, err := proc.verifier.Enroll(ctx, verification.EnrollRequest{
		SubjectId: payload.SubjectId,
		Images:    images,
	})
	if err != nil {
		database.UpdateFaceProfileStatus(ctx, proc.db, payload.SubjectId, database.ProfileFailed) //nolint:errcheck
		if errors.Is(err, verification.ErrRemoteUnavailable) {
			return err
		}
		slog.Error("enrollment rejected by verification service", "subject_id", payload.SubjectId, "error", err)
		proc.deleteFrames(ctx, EnrollFramePrefix(payload.SubjectId))
		return nil
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.FaceProfile{SubjectId: payload.SubjectId}).
		Updates(map[string]any{
			"status":          database.ProfileEnrolled,
			"image_count":     len(frames),
			"quality_score":   result.QualityScore,
			"completion_time": time.Now().UTC(),
		}).Error; err != nil {
		slog.Error("error updating face profile after enrollment", "subject_id", payload.SubjectId, "error", err)
		return fmt.Errorf("error updating face profile: %w", err)
	}

	proc.deleteFrames(ctx, EnrollFramePrefix(payload.SubjectId))

	slog.Info("enroll task completed", "subject_id", payload.SubjectId, "quality_score", result.QualityScore)

	return nil
}

// CheckInFramePrefix is the object key prefix under which a check-in's burst
// frames are stored.
func CheckInFramePrefix(checkInId uuid.UUID) string {
	return fmt.Sprintf("checkins/%s", checkInId)
}

// EnrollFramePrefix is the object key prefix for a subject's enrollment
// capture frames.
func EnrollFramePrefix(subjectId uuid.UUID) string {
	return fmt.Sprintf("enrollments/%s", subjectId)
}
