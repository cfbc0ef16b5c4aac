package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "eduface-backend/internal/api"
	"eduface-backend/internal/capture"
	"eduface-backend/internal/database"
	"eduface-backend/internal/messaging"
	"eduface-backend/internal/pipeline"
	"eduface-backend/internal/sessioncache"
	"eduface-backend/internal/storage"
	"eduface-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testBucket = "frames"

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type testBackend struct {
	router chi.Router
	queue  *messaging.InMemoryQueue
	store  storage.Provider
}

func newTestBackend(t *testing.T, db *gorm.DB) testBackend {
	store, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(context.Background(), testBucket))

	queue := messaging.NewInMemoryQueue()

	service := backend.NewBackendService(db, queue, store, sessioncache.NewInMemoryCache(), testBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testBackend{router: router, queue: queue, store: store}
}

func (b testBackend) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	b.router.ServeHTTP(rec, req)
	return rec
}

func parseResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var response T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response), "received response: "+rec.Body.String())
	return response
}

func burstFrames(n int) []string {
	frames := make([]string, n)
	for i := range frames {
		frames[i] = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("frame-%d", i)))
	}
	return frames
}

func enrollmentFrames() []api.CapturedFrame {
	var frames []api.CapturedFrame
	for _, phase := range capture.DefaultPhases() {
		for i := 0; i < phase.RequiredFrames; i++ {
			frames = append(frames, api.CapturedFrame{
				ImageData: base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s-%d", phase.Angle, i))),
				Angle:     string(phase.Angle),
			})
		}
	}
	return frames
}

func newTeacher(id uuid.UUID) *database.User {
	return &database.User{Id: id, Email: id.String() + "@school.edu", FullName: "A Teacher", Role: database.RoleTeacher, CreationTime: time.Now()}
}

func newStudent(id uuid.UUID) *database.User {
	return &database.User{Id: id, Email: id.String() + "@school.edu", FullName: "A Student", Role: database.RoleStudent, CreationTime: time.Now()}
}

func newUnit(id uuid.UUID) []any {
	courseId := uuid.New()
	return []any{
		&database.Course{Id: courseId, Code: "CS" + id.String()[:4], Name: "Computer Science"},
		&database.Unit{Id: id, CourseId: courseId, Code: "CS101", Name: "Intro"},
	}
}

func TestCreateAssignmentConflict(t *testing.T) {
	teacherId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newTeacher(teacherId))...)
	b := newTestBackend(t, db)

	create := func(days []string, start, end string) *httptest.ResponseRecorder {
		return b.do(t, http.MethodPost, "/assignments", api.CreateAssignmentRequest{
			TeacherId: teacherId, UnitId: unitId, Room: "B2-01",
			Days: days, StartTime: start, EndTime: end,
		})
	}

	rec := create([]string{"Monday", "Wednesday"}, "09:00", "10:30")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := parseResponse[api.CreateAssignmentResponse](t, rec)

	// Back-to-back with the first slot is not a conflict.
	rec = create([]string{"Monday"}, "10:30", "12:00")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Same day, overlapping window.
	rec = create([]string{"Wednesday", "Friday"}, "10:00", "11:00")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), first.AssignmentId.String())
	assert.Contains(t, rec.Body.String(), "Wednesday")

	// Overlapping window on disjoint days is fine.
	rec = create([]string{"Tuesday"}, "09:30", "10:00")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = b.do(t, http.MethodGet, "/assignments?teacher_id="+teacherId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assignments := parseResponse[[]api.Assignment](t, rec)
	assert.Len(t, assignments, 3)
}

func TestUpdateAssignmentConflict(t *testing.T) {
	teacherId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newTeacher(teacherId))...)
	b := newTestBackend(t, db)

	create := func(days []string, start, end string) api.CreateAssignmentResponse {
		rec := b.do(t, http.MethodPost, "/assignments", api.CreateAssignmentRequest{
			TeacherId: teacherId, UnitId: unitId, Room: "B2-01",
			Days: days, StartTime: start, EndTime: end,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return parseResponse[api.CreateAssignmentResponse](t, rec)
	}

	first := create([]string{"Monday"}, "09:00", "10:30")
	second := create([]string{"Tuesday"}, "09:00", "10:30")

	// Moving the second slot onto the first's window collides.
	rec := b.do(t, http.MethodPut, "/assignments/"+second.AssignmentId.String(), api.UpdateAssignmentRequest{
		Room: "B2-01", Days: []string{"Monday"}, StartTime: "10:00", EndTime: "11:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), first.AssignmentId.String())

	// The slot does not conflict with its own old schedule.
	rec = b.do(t, http.MethodPut, "/assignments/"+second.AssignmentId.String(), api.UpdateAssignmentRequest{
		Room: "B3-07", Days: []string{"Tuesday"}, StartTime: "09:30", EndTime: "11:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := parseResponse[api.Assignment](t, rec)
	assert.Equal(t, "B3-07", updated.Room)
	assert.Equal(t, "09:30", updated.StartTime)

	rec = b.do(t, http.MethodPut, "/assignments/"+uuid.NewString(), api.UpdateAssignmentRequest{
		Room: "B2-01", Days: []string{"Monday"}, StartTime: "09:00", EndTime: "10:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAssignmentValidation(t *testing.T) {
	teacherId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newTeacher(teacherId))...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/assignments", api.CreateAssignmentRequest{
		TeacherId: teacherId, UnitId: unitId,
		Days: []string{"Monday"}, StartTime: "10:00", EndTime: "09:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = b.do(t, http.MethodPost, "/assignments", api.CreateAssignmentRequest{
		TeacherId: teacherId, UnitId: unitId,
		Days: []string{"Funday"}, StartTime: "09:00", EndTime: "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = b.do(t, http.MethodPost, "/assignments", api.CreateAssignmentRequest{
		TeacherId: uuid.New(), UnitId: unitId,
		Days: []string{"Monday"}, StartTime: "09:00", EndTime: "10:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUserProvisionsEnrollments(t *testing.T) {
	unitId := uuid.New()
	db := createDB(t, newUnit(unitId)...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/users", api.CreateUserRequest{
		Email: "student@school.edu", FullName: "New Student", Role: database.RoleStudent,
		UnitIds: []uuid.UUID{unitId},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	response := parseResponse[api.CreateUserResponse](t, rec)

	var enrollments []database.Enrollment
	require.NoError(t, db.Find(&enrollments, "student_id = ?", response.UserId).Error)
	assert.Len(t, enrollments, 1)
}

func TestCreateUserRollsBackOnBadUnit(t *testing.T) {
	unitId := uuid.New()
	db := createDB(t, newUnit(unitId)...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/users", api.CreateUserRequest{
		Email: "student@school.edu", FullName: "New Student", Role: database.RoleStudent,
		UnitIds: []uuid.UUID{unitId, uuid.New()},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var users int64
	require.NoError(t, db.Model(&database.User{}).Count(&users).Error)
	assert.Zero(t, users)

	var enrollments int64
	require.NoError(t, db.Model(&database.Enrollment{}).Count(&enrollments).Error)
	assert.Zero(t, enrollments)
}

func TestSessionLifecycle(t *testing.T) {
	teacherId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newTeacher(teacherId))...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/sessions", api.OpenSessionRequest{
		UnitId: unitId, OpenedBy: teacherId, DurationMinutes: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	opened := parseResponse[api.OpenSessionResponse](t, rec)

	// A unit can only have one open session at a time.
	rec = b.do(t, http.MethodPost, "/sessions", api.OpenSessionRequest{UnitId: unitId, OpenedBy: teacherId})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = b.do(t, http.MethodPost, "/sessions/"+opened.SessionId.String()+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = b.do(t, http.MethodGet, "/sessions/"+opened.SessionId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := parseResponse[api.Session](t, rec)
	assert.Equal(t, database.SessionClosed, session.Status)

	rec = b.do(t, http.MethodPost, "/sessions/"+opened.SessionId.String()+"/close", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func checkInFixtures(t *testing.T, db *gorm.DB, studentId, unitId uuid.UUID, profileStatus string) uuid.UUID {
	require.NoError(t, db.Create(&database.Enrollment{UnitId: unitId, StudentId: studentId, CreationTime: time.Now()}).Error)
	require.NoError(t, db.Create(&database.FaceProfile{SubjectId: studentId, Status: profileStatus, CreationTime: time.Now()}).Error)

	sessionId := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&database.AttendanceSession{
		Id: sessionId, UnitId: unitId, OpenedBy: uuid.New(),
		Status: database.SessionOpen, OpensAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}).Error)
	return sessionId
}

func TestSubmitCheckIn(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	sessionId := checkInFixtures(t, db, studentId, unitId, database.ProfileEnrolled)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		SessionId: sessionId, SubjectId: studentId, Frames: burstFrames(30),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	response := parseResponse[api.SubmitCheckInResponse](t, rec)
	assert.Equal(t, sessionId, response.SessionId)
	assert.Equal(t, database.CheckInQueued, response.Status)

	var checkIn database.CheckIn
	require.NoError(t, db.First(&checkIn, "id = ?", response.CheckInId).Error)
	assert.Equal(t, 30, checkIn.FrameCount)

	objects, err := b.store.ListObjects(context.Background(), testBucket, pipeline.CheckInFramePrefix(response.CheckInId))
	require.NoError(t, err)
	assert.Len(t, objects, 30)

	select {
	case task := <-b.queue.Tasks():
		assert.Equal(t, messaging.VerifyQueue, task.Type())
		var payload messaging.VerifyTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, response.CheckInId, payload.CheckInId)
		assert.Equal(t, sessionId, payload.SessionId)
		assert.Len(t, payload.FrameKeys, 30)
	default:
		t.Fatal("expected a verify task to be published")
	}
}

func TestSubmitCheckInResolvesSessionByUnit(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	sessionId := checkInFixtures(t, db, studentId, unitId, database.ProfileEnrolled)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		UnitId: unitId, SubjectId: studentId, Frames: burstFrames(20),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	response := parseResponse[api.SubmitCheckInResponse](t, rec)
	assert.Equal(t, sessionId, response.SessionId)
}

func TestSubmitCheckInRejectsShortBurst(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	sessionId := checkInFixtures(t, db, studentId, unitId, database.ProfileEnrolled)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		SessionId: sessionId, SubjectId: studentId, Frames: burstFrames(10),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "10 of 15")

	var checkIns int64
	require.NoError(t, db.Model(&database.CheckIn{}).Count(&checkIns).Error)
	assert.Zero(t, checkIns)
}

func TestSubmitCheckInRequiresEnrolledProfile(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	sessionId := checkInFixtures(t, db, studentId, unitId, database.ProfileQueued)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		SessionId: sessionId, SubjectId: studentId, Frames: burstFrames(30),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "face profile")
}

func TestSubmitCheckInExpiredSession(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	require.NoError(t, db.Create(&database.Enrollment{UnitId: unitId, StudentId: studentId, CreationTime: time.Now()}).Error)
	require.NoError(t, db.Create(&database.FaceProfile{SubjectId: studentId, Status: database.ProfileEnrolled, CreationTime: time.Now()}).Error)

	sessionId := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&database.AttendanceSession{
		Id: sessionId, UnitId: unitId, OpenedBy: uuid.New(),
		Status: database.SessionOpen, OpensAt: now.Add(-20 * time.Minute), ExpiresAt: now.Add(-10 * time.Minute),
	}).Error)

	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		SessionId: sessionId, SubjectId: studentId, Frames: burstFrames(30),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestSubmitCheckInAlreadyRecorded(t *testing.T) {
	studentId, unitId := uuid.New(), uuid.New()
	db := createDB(t, append(newUnit(unitId), newStudent(studentId))...)
	sessionId := checkInFixtures(t, db, studentId, unitId, database.ProfileEnrolled)
	require.NoError(t, db.Create(&database.AttendanceRecord{
		Id: uuid.New(), SessionId: sessionId, SubjectId: studentId,
		CheckInId: uuid.New(), Confidence: 0.9, RecordedAt: time.Now().UTC(),
	}).Error)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/checkins", api.SubmitCheckInRequest{
		SessionId: sessionId, SubjectId: studentId, Frames: burstFrames(30),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already recorded")
}

func TestSubmitEnrollment(t *testing.T) {
	studentId := uuid.New()
	db := createDB(t, newStudent(studentId))
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodPost, "/profiles/"+studentId.String()+"/enroll", api.SubmitEnrollmentRequest{
		Frames: enrollmentFrames(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	response := parseResponse[api.SubmitEnrollmentResponse](t, rec)
	assert.Equal(t, database.ProfileQueued, response.Status)

	var profile database.FaceProfile
	require.NoError(t, db.First(&profile, "subject_id = ?", studentId).Error)
	assert.Equal(t, database.ProfileQueued, profile.Status)

	select {
	case task := <-b.queue.Tasks():
		assert.Equal(t, messaging.EnrollQueue, task.Type())
		var payload messaging.EnrollTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, studentId, payload.SubjectId)
		assert.Len(t, payload.Frames, 15)
		assert.Equal(t, capture.AngleFrontal, payload.Frames[0].Angle)
	default:
		t.Fatal("expected an enroll task to be published")
	}
}

func TestSubmitEnrollmentMissingPhase(t *testing.T) {
	studentId := uuid.New()
	db := createDB(t, newStudent(studentId))
	b := newTestBackend(t, db)

	// Drop all "down" frames from an otherwise complete capture set.
	var frames []api.CapturedFrame
	for _, frame := range enrollmentFrames() {
		if frame.Angle != string(capture.AngleDown) {
			frames = append(frames, frame)
		}
	}

	rec := b.do(t, http.MethodPost, "/profiles/"+studentId.String()+"/enroll", api.SubmitEnrollmentRequest{
		Frames: frames,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Down")

	var profiles int64
	require.NoError(t, db.Model(&database.FaceProfile{}).Count(&profiles).Error)
	assert.Zero(t, profiles)
}

func TestGetCheckInWithErrors(t *testing.T) {
	unitId := uuid.New()
	checkInId, sessionId, studentId := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	db := createDB(t, append(newUnit(unitId),
		&database.AttendanceSession{
			Id: sessionId, UnitId: unitId, OpenedBy: uuid.New(),
			Status: database.SessionOpen, OpensAt: now, ExpiresAt: now.Add(15 * time.Minute),
		},
		&database.CheckIn{
			Id: checkInId, SessionId: sessionId, SubjectId: studentId,
			Status: database.CheckInRejected, FrameCount: 30, CreationTime: now,
		},
		&database.CheckInError{
			CheckInId: checkInId, ErrorId: uuid.New(),
			Error: "liveness check failed: 9 of 24 required frames passed", Timestamp: now,
		},
	)...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodGet, "/checkins/"+checkInId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	checkIn := parseResponse[api.CheckIn](t, rec)
	assert.Equal(t, database.CheckInRejected, checkIn.Status)
	require.Len(t, checkIn.Errors, 1)
	assert.Contains(t, checkIn.Errors[0], "liveness")
}

func TestGetAttendanceReport(t *testing.T) {
	unitId := uuid.New()
	student1, student2, student3 := uuid.New(), uuid.New(), uuid.New()
	sessionId := uuid.New()
	now := time.Now().UTC()

	records := []any{
		&database.AttendanceSession{
			Id: sessionId, UnitId: unitId, OpenedBy: uuid.New(),
			Status: database.SessionClosed, OpensAt: now.Add(-time.Hour), ExpiresAt: now.Add(-50 * time.Minute),
		},
		&database.Enrollment{UnitId: unitId, StudentId: student1, CreationTime: now},
		&database.Enrollment{UnitId: unitId, StudentId: student2, CreationTime: now},
		&database.Enrollment{UnitId: unitId, StudentId: student3, CreationTime: now},
		&database.AttendanceRecord{Id: uuid.New(), SessionId: sessionId, SubjectId: student1, CheckInId: uuid.New(), Confidence: 0.95, RecordedAt: now.Add(-55 * time.Minute)},
		&database.AttendanceRecord{Id: uuid.New(), SessionId: sessionId, SubjectId: student2, CheckInId: uuid.New(), Confidence: 0.91, RecordedAt: now.Add(-54 * time.Minute)},
	}
	db := createDB(t, append(newUnit(unitId), records...)...)
	b := newTestBackend(t, db)

	rec := b.do(t, http.MethodGet, "/reports/attendance/"+sessionId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := parseResponse[api.AttendanceReport](t, rec)

	assert.Equal(t, 3, report.Enrolled)
	assert.Equal(t, 2, report.Present)
	require.Len(t, report.Records, 2)
	assert.Equal(t, student1, report.Records[0].SubjectId)
}
