package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`

	// Units the user (if a student) is enrolled in as part of provisioning.
	UnitIds []uuid.UUID `json:"unitIds,omitempty"`
}

type CreateUserResponse struct {
	UserId uuid.UUID `json:"userId"`
}

type User struct {
	Id           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Role         string    `json:"role"`
	CreationTime time.Time `json:"creationTime"`
}

type ListUsersQuery struct {
	Role string `schema:"role"`
}

type CreateCourseRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type CreateCourseResponse struct {
	CourseId uuid.UUID `json:"courseId"`
}

type Course struct {
	Id    uuid.UUID `json:"id"`
	Code  string    `json:"code"`
	Name  string    `json:"name"`
	Units []Unit    `json:"units,omitempty"`
}

type CreateUnitRequest struct {
	CourseId uuid.UUID `json:"courseId"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
}

type CreateUnitResponse struct {
	UnitId uuid.UUID `json:"unitId"`
}

type Unit struct {
	Id       uuid.UUID `json:"id"`
	CourseId uuid.UUID `json:"courseId"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
}

// CreateAssignmentRequest schedules a teacher for a unit. Days are full
// weekday names; times are "HH:MM" 24-hour clock.
type CreateAssignmentRequest struct {
	TeacherId uuid.UUID `json:"teacherId"`
	UnitId    uuid.UUID `json:"unitId"`
	Room      string    `json:"room"`
	Days      []string  `json:"days"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
}

// UpdateAssignmentRequest replaces an assignment's room and schedule. The
// teacher and unit binding is fixed; reassigning means delete and recreate.
type UpdateAssignmentRequest struct {
	Room      string   `json:"room"`
	Days      []string `json:"days"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
}

type CreateAssignmentResponse struct {
	AssignmentId uuid.UUID `json:"assignmentId"`
}

type Assignment struct {
	Id           uuid.UUID `json:"id"`
	TeacherId    uuid.UUID `json:"teacherId"`
	UnitId       uuid.UUID `json:"unitId"`
	Room         string    `json:"room"`
	Days         []string  `json:"days"`
	StartTime    string    `json:"startTime"`
	EndTime      string    `json:"endTime"`
	CreationTime time.Time `json:"creationTime"`
}

type ListAssignmentsQuery struct {
	TeacherId string `schema:"teacher_id"`
	UnitId    string `schema:"unit_id"`
}

type CreateEnrollmentRequest struct {
	UnitId    uuid.UUID `json:"unitId"`
	StudentId uuid.UUID `json:"studentId"`
}

type OpenSessionRequest struct {
	UnitId          uuid.UUID `json:"unitId"`
	OpenedBy        uuid.UUID `json:"openedBy"`
	DurationMinutes int       `json:"durationMinutes"`
}

type OpenSessionResponse struct {
	SessionId uuid.UUID `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Session struct {
	Id        uuid.UUID `json:"id"`
	UnitId    uuid.UUID `json:"unitId"`
	OpenedBy  uuid.UUID `json:"openedBy"`
	Status    string    `json:"status"`
	OpensAt   time.Time `json:"opensAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CapturedFrame is one base64-encoded image with the pose angle it was
// captured under.
type CapturedFrame struct {
	ImageData string `json:"imageData"`
	Angle     string `json:"angle"`
}

type SubmitEnrollmentRequest struct {
	Frames []CapturedFrame `json:"frames"`
}

type SubmitEnrollmentResponse struct {
	SubjectId uuid.UUID `json:"subjectId"`
	Status    string    `json:"status"`
}

type FaceProfile struct {
	SubjectId      uuid.UUID  `json:"subjectId"`
	Status         string     `json:"status"`
	ImageCount     int        `json:"imageCount"`
	QualityScore   float64    `json:"qualityScore"`
	CreationTime   time.Time  `json:"creationTime"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

// SubmitCheckInRequest carries a burst frame batch. SessionId may be omitted
// when UnitId is set; the API then resolves the open session for the unit.
type SubmitCheckInRequest struct {
	SessionId uuid.UUID `json:"sessionId,omitempty"`
	UnitId    uuid.UUID `json:"unitId,omitempty"`
	SubjectId uuid.UUID `json:"subjectId"`
	Frames    []string  `json:"frames"`
}

type SubmitCheckInResponse struct {
	CheckInId uuid.UUID `json:"checkInId"`
	SessionId uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
}

type Liveness struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

type CheckIn struct {
	Id              uuid.UUID  `json:"id"`
	SessionId       uuid.UUID  `json:"sessionId"`
	SubjectId       uuid.UUID  `json:"subjectId"`
	Status          string     `json:"status"`
	FrameCount      int        `json:"frameCount"`
	Confidence      float64    `json:"confidence"`
	FramesProcessed int        `json:"framesProcessed"`
	Liveness        *Liveness  `json:"liveness,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
	CreationTime    time.Time  `json:"creationTime"`
	CompletionTime  *time.Time `json:"completionTime,omitempty"`
}

type AttendanceRecord struct {
	SubjectId  uuid.UUID `json:"subjectId"`
	CheckInId  uuid.UUID `json:"checkInId"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recordedAt"`
}

type AttendanceReport struct {
	SessionId uuid.UUID          `json:"sessionId"`
	UnitId    uuid.UUID          `json:"unitId"`
	Status    string             `json:"status"`
	Enrolled  int                `json:"enrolled"`
	Present   int                `json:"present"`
	Records   []AttendanceRecord `json:"records"`
}
