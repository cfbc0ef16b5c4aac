package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"eduface-backend/internal/capture"
	"eduface-backend/internal/database"
	"eduface-backend/internal/messaging"
	"eduface-backend/internal/pipeline"
	"eduface-backend/internal/sessioncache"
	"eduface-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultSessionMinutes = 15

func (s *BackendService) OpenSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.OpenSessionRequest](r)
	if err != nil {
		return nil, err
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultSessionMinutes
	}

	ctx := r.Context()

	var unit database.Unit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", req.UnitId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "unit not found")
		}
		slog.Error("error getting unit", "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving unit record")
	}

	var open int64
	if err := s.db.WithContext(ctx).Model(&database.AttendanceSession{}).
		Where("unit_id = ? AND status = ? AND expires_at > ?", req.UnitId, database.SessionOpen, time.Now().UTC()).
		Count(&open).Error; err != nil {
		slog.Error("error checking for open sessions", "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error checking for open sessions")
	}
	if open > 0 {
		return nil, CodedErrorf(http.StatusConflict, "unit already has an open attendance session")
	}

	now := time.Now().UTC()
	session := database.AttendanceSession{
		Id:        uuid.New(),
		UnitId:    req.UnitId,
		OpenedBy:  req.OpenedBy,
		Status:    database.SessionOpen,
		OpensAt:   now,
		ExpiresAt: now.Add(time.Duration(duration) * time.Minute),
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		slog.Error("error creating attendance session", "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to open attendance session")
	}

	if err := s.sessions.Set(ctx, sessioncache.ActiveSession{
		SessionId: session.Id,
		UnitId:    session.UnitId,
		ExpiresAt: session.ExpiresAt,
	}); err != nil {
		// Cache is an optimization; check-ins fall back to the database.
		slog.Warn("error caching active session", "session_id", session.Id, "error", err)
	}

	slog.Info("opened attendance session", "session_id", session.Id, "unit_id", req.UnitId, "expires_at", session.ExpiresAt)

	return api.OpenSessionResponse{SessionId: session.Id, ExpiresAt: session.ExpiresAt}, nil
}

func (s *BackendService) GetSession(r *http.Request) (any, error) {
	sessionId, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	var session database.AttendanceSession
	if err := s.db.WithContext(r.Context()).First(&session, "id = ?", sessionId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "session not found")
		}
		slog.Error("error getting session", "session_id", sessionId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session record")
	}

	return toSession(session), nil
}

func (s *BackendService) CloseSession(r *http.Request) (any, error) {
	sessionId, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var session database.AttendanceSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "session not found")
		}
		slog.Error("error getting session", "session_id", sessionId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session record")
	}

	if session.Status != database.SessionOpen {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "session is already closed")
	}

	if err := s.db.WithContext(ctx).Model(&database.AttendanceSession{Id: sessionId}).
		Update("status", database.SessionClosed).Error; err != nil {
		slog.Error("error closing session", "session_id", sessionId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to close session")
	}

	if err := s.sessions.Invalidate(ctx, session.UnitId); err != nil {
		slog.Warn("error invalidating session cache", "unit_id", session.UnitId, "error", err)
	}

	slog.Info("closed attendance session", "session_id", sessionId)

	return nil, nil
}

// decodeFrame validates one base64-encoded frame from a capture client.
func decodeFrame(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("frame is not valid base64: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("frame is empty")
	}
	return data, nil
}

func (s *BackendService) SubmitEnrollment(r *http.Request) (any, error) {
	subjectId, err := URLParamUUID(r, "subject_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SubmitEnrollmentRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var subject database.User
	if err := s.db.WithContext(ctx).First(&subject, "id = ?", subjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "subject not found")
		}
		slog.Error("error getting subject", "subject_id", subjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving subject record")
	}

	// Every capture phase must meet its frame quota before enrollment is
	// accepted.
	byAngle := make(map[capture.Angle]int)
	for _, frame := range req.Frames {
		byAngle[capture.Angle(frame.Angle)]++
	}
	for _, phase := range capture.DefaultPhases() {
		if byAngle[phase.Angle] < phase.RequiredFrames {
			return nil, CodedErrorf(http.StatusBadRequest, "phase %s requires %d frames, got %d",
				phase.Label, phase.RequiredFrames, byAngle[phase.Angle])
		}
	}

	var existing database.FaceProfile
	err = s.db.WithContext(ctx).First(&existing, "subject_id = ?", subjectId).Error
	switch {
	case err == nil:
		if existing.Status == database.ProfileProcessing {
			return nil, CodedErrorf(http.StatusConflict, "an enrollment for this subject is already being processed")
		}
		if err := s.db.WithContext(ctx).Model(&database.FaceProfile{SubjectId: subjectId}).
			Updates(map[string]any{"status": database.ProfileQueued, "image_count": 0, "quality_score": 0.0}).Error; err != nil {
			slog.Error("error resetting face profile", "subject_id", subjectId, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to update face profile")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(&database.FaceProfile{
			SubjectId:    subjectId,
			Status:       database.ProfileQueued,
			CreationTime: time.Now().UTC(),
		}).Error; err != nil {
			slog.Error("error creating face profile", "subject_id", subjectId, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to create face profile")
		}
	default:
		slog.Error("error getting face profile", "subject_id", subjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving face profile")
	}

	prefix := pipeline.EnrollFramePrefix(subjectId)
	refs := make([]messaging.FrameRef, len(req.Frames))
	for i, frame := range req.Frames {
		data, err := decodeFrame(frame.ImageData)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid frame %d: %v", i, err)
		}

		key := fmt.Sprintf("%s/frame_%03d.jpg", prefix, i)
		if err := s.storage.PutObject(ctx, s.frameBucket, key, bytes.NewReader(data)); err != nil {
			slog.Error("error storing enrollment frame", "subject_id", subjectId, "key", key, "error", err)
			database.UpdateFaceProfileStatus(ctx, s.db, subjectId, database.ProfileFailed) //nolint:errcheck
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to store enrollment frames")
		}
		refs[i] = messaging.FrameRef{Key: key, Angle: capture.Angle(frame.Angle)}
	}

	if err := s.publisher.PublishEnrollTask(ctx, messaging.EnrollTaskPayload{
		SubjectId: subjectId,
		Frames:    refs,
	}); err != nil {
		slog.Error("error publishing enroll task", "subject_id", subjectId, "error", err)
		database.UpdateFaceProfileStatus(ctx, s.db, subjectId, database.ProfileFailed) //nolint:errcheck
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue enrollment")
	}

	slog.Info("submitted enrollment", "subject_id", subjectId, "frames", len(req.Frames))

	return api.SubmitEnrollmentResponse{SubjectId: subjectId, Status: database.ProfileQueued}, nil
}

func (s *BackendService) GetFaceProfile(r *http.Request) (any, error) {
	subjectId, err := URLParamUUID(r, "subject_id")
	if err != nil {
		return nil, err
	}

	var profile database.FaceProfile
	if err := s.db.WithContext(r.Context()).First(&profile, "subject_id = ?", subjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "face profile not found")
		}
		slog.Error("error getting face profile", "subject_id", subjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving face profile")
	}

	return toFaceProfile(profile), nil
}

// resolveSession finds the attendance session a check-in targets, preferring
// the cache when only a unit is given.
func (s *BackendService) resolveSession(r *http.Request, req api.SubmitCheckInRequest) (database.AttendanceSession, error) {
	ctx := r.Context()

	if req.SessionId == uuid.Nil {
		if req.UnitId == uuid.Nil {
			return database.AttendanceSession{}, CodedErrorf(http.StatusBadRequest, "either sessionId or unitId is required")
		}

		if cached, found, err := s.sessions.Get(ctx, req.UnitId); err == nil && found {
			req.SessionId = cached.SessionId
		} else {
			if err != nil {
				slog.Warn("error reading session cache", "unit_id", req.UnitId, "error", err)
			}
			var session database.AttendanceSession
			if err := s.db.WithContext(ctx).
				Where("unit_id = ? AND status = ?", req.UnitId, database.SessionOpen).
				Order("opens_at DESC").
				First(&session).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return database.AttendanceSession{}, CodedErrorf(http.StatusNotFound, "no open attendance session for unit")
				}
				slog.Error("error finding open session", "unit_id", req.UnitId, "error", err)
				return database.AttendanceSession{}, CodedErrorf(http.StatusInternalServerError, "error finding open session")
			}
			return session, nil
		}
	}

	var session database.AttendanceSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", req.SessionId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.AttendanceSession{}, CodedErrorf(http.StatusNotFound, "session not found")
		}
		slog.Error("error getting session", "session_id", req.SessionId, "error", err)
		return database.AttendanceSession{}, CodedErrorf(http.StatusInternalServerError, "error retrieving session record")
	}
	return session, nil
}

func (s *BackendService) SubmitCheckIn(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SubmitCheckInRequest](r)
	if err != nil {
		return nil, err
	}

	if req.SubjectId == uuid.Nil {
		return nil, CodedErrorf(http.StatusBadRequest, "subjectId is required")
	}

	if len(req.Frames) < capture.DefaultBurstMinFrames {
		return nil, CodedErrorf(http.StatusBadRequest, "only %d of %d required frames captured, please retry",
			len(req.Frames), capture.DefaultBurstMinFrames)
	}

	if err := s.checkInLocks.Lock(req.SubjectId.String()); err != nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "too many concurrent check-ins, please retry")
	}
	defer s.checkInLocks.Unlock(req.SubjectId.String()) //nolint:errcheck

	ctx := r.Context()

	session, err := s.resolveSession(r, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.Status != database.SessionOpen || now.After(session.ExpiresAt) {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "attendance session is closed or expired")
	}

	var enrollment database.Enrollment
	if err := s.db.WithContext(ctx).First(&enrollment, "unit_id = ? AND student_id = ?", session.UnitId, req.SubjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "subject is not enrolled in this unit")
		}
		slog.Error("error checking enrollment", "subject_id", req.SubjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error checking enrollment")
	}

	var profile database.FaceProfile
	if err := s.db.WithContext(ctx).First(&profile, "subject_id = ?", req.SubjectId).Error; err != nil || profile.Status != database.ProfileEnrolled {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("error getting face profile", "subject_id", req.SubjectId, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving face profile")
		}
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "subject has no enrolled face profile")
	}

	var existing database.AttendanceRecord
	if err := s.db.WithContext(ctx).First(&existing, "session_id = ? AND subject_id = ?", session.Id, req.SubjectId).Error; err == nil {
		return nil, CodedErrorf(http.StatusConflict, "attendance already recorded for this session")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("error checking attendance record", "subject_id", req.SubjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error checking attendance record")
	}

	checkIn := database.CheckIn{
		Id:           uuid.New(),
		SessionId:    session.Id,
		SubjectId:    req.SubjectId,
		Status:       database.CheckInQueued,
		FrameCount:   len(req.Frames),
		CreationTime: now,
	}
	if err := s.db.WithContext(ctx).Create(&checkIn).Error; err != nil {
		slog.Error("error creating check-in", "subject_id", req.SubjectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create check-in")
	}

	prefix := pipeline.CheckInFramePrefix(checkIn.Id)
	keys := make([]string, len(req.Frames))
	for i, encoded := range req.Frames {
		data, err := decodeFrame(encoded)
		if err != nil {
			database.UpdateCheckInStatus(ctx, s.db, checkIn.Id, database.CheckInFailed) //nolint:errcheck
			return nil, CodedErrorf(http.StatusBadRequest, "invalid frame %d: %v", i, err)
		}

		keys[i] = fmt.Sprintf("%s/frame_%03d.jpg", prefix, i)
		if err := s.storage.PutObject(ctx, s.frameBucket, keys[i], bytes.NewReader(data)); err != nil {
			slog.Error("error storing check-in frame", "check_in_id", checkIn.Id, "key", keys[i], "error", err)
			database.UpdateCheckInStatus(ctx, s.db, checkIn.Id, database.CheckInFailed) //nolint:errcheck
			database.SaveCheckInError(ctx, s.db, checkIn.Id, "failed to store frames")
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to store check-in frames")
		}
	}

	if err := s.publisher.PublishVerifyTask(ctx, messaging.VerifyTaskPayload{
		CheckInId: checkIn.Id,
		SubjectId: req.SubjectId,
		SessionId: session.Id,
		FrameKeys: keys,
	}); err != nil {
		slog.Error("error publishing verify task", "check_in_id", checkIn.Id, "error", err)
		database.UpdateCheckInStatus(ctx, s.db, checkIn.Id, database.CheckInFailed) //nolint:errcheck
		database.SaveCheckInError(ctx, s.db, checkIn.Id, "failed to queue verification")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue verification")
	}

	slog.Info("submitted check-in", "check_in_id", checkIn.Id, "session_id", session.Id, "subject_id", req.SubjectId, "frames", len(keys))

	return api.SubmitCheckInResponse{CheckInId: checkIn.Id, SessionId: session.Id, Status: database.CheckInQueued}, nil
}

func (s *BackendService) GetCheckIn(r *http.Request) (any, error) {
	checkInId, err := URLParamUUID(r, "check_in_id")
	if err != nil {
		return nil, err
	}

	var checkIn database.CheckIn
	if err := s.db.WithContext(r.Context()).Preload("Errors").First(&checkIn, "id = ?", checkInId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "check-in not found")
		}
		slog.Error("error getting check-in", "check_in_id", checkInId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving check-in record")
	}

	return toCheckIn(checkIn), nil
}

func (s *BackendService) GetAttendanceReport(r *http.Request) (any, error) {
	sessionId, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var session database.AttendanceSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "session not found")
		}
		slog.Error("error getting session", "session_id", sessionId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session record")
	}

	var records []database.AttendanceRecord
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionId).Order("recorded_at ASC").Find(&records).Error; err != nil {
		slog.Error("error listing attendance records", "session_id", sessionId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving attendance records")
	}

	var enrolled int64
	if err := s.db.WithContext(ctx).Model(&database.Enrollment{}).Where("unit_id = ?", session.UnitId).Count(&enrolled).Error; err != nil {
		slog.Error("error counting enrollments", "unit_id", session.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error counting enrollments")
	}

	report := api.AttendanceReport{
		SessionId: session.Id,
		UnitId:    session.UnitId,
		Status:    session.Status,
		Enrolled:  int(enrolled),
		Present:   len(records),
		Records:   make([]api.AttendanceRecord, len(records)),
	}
	for i, record := range records {
		report.Records[i] = toAttendanceRecord(record)
	}

	return report, nil
}
