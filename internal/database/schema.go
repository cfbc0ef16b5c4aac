package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleAdmin   string = "ADMIN"
	RoleTeacher string = "TEACHER"
	RoleStudent string = "STUDENT"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email        string `gorm:"uniqueIndex;not null"`
	FullName     string
	Role         string `gorm:"size:20;not null"`
	CreationTime time.Time
}

type Course struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Code string `gorm:"uniqueIndex;not null"`
	Name string `gorm:"not null"`

	Units []Unit `gorm:"foreignKey:CourseId;constraint:OnDelete:CASCADE"`
}

type Unit struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CourseId uuid.UUID `gorm:"type:uuid"`
	Course   *Course   `gorm:"foreignKey:CourseId"`

	Code string `gorm:"not null"`
	Name string `gorm:"not null"`
}

// ClassAssignment binds a teacher to a unit, room, and weekly schedule. Days
// is a weekday bitmask, Start/End are minutes since midnight; together they
// feed the conflict check.
type ClassAssignment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TeacherId uuid.UUID `gorm:"type:uuid;index"`
	Teacher   *User     `gorm:"foreignKey:TeacherId"`

	UnitId uuid.UUID `gorm:"type:uuid"`
	Unit   *Unit     `gorm:"foreignKey:UnitId"`

	Room         string
	Days         uint8 `gorm:"not null"`
	StartMinutes int   `gorm:"not null"`
	EndMinutes   int   `gorm:"not null"`
	CreationTime time.Time
}

type Enrollment struct {
	UnitId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentId uuid.UUID `gorm:"type:uuid;primaryKey"`

	CreationTime time.Time
}

const (
	ProfileQueued     string = "QUEUED"
	ProfileProcessing string = "PROCESSING"
	ProfileEnrolled   string = "ENROLLED"
	ProfileFailed     string = "FAILED"
)

// FaceProfile tracks the enrollment lifecycle of a subject's face images with
// the remote verification service.
type FaceProfile struct {
	SubjectId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status         string `gorm:"size:20;not null"`
	ImageCount     int    `gorm:"default:0"`
	QualityScore   float64
	CreationTime   time.Time
	CompletionTime sql.NullTime
}

const (
	SessionOpen   string = "OPEN"
	SessionClosed string = "CLOSED"
)

type AttendanceSession struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UnitId uuid.UUID `gorm:"type:uuid;index"`
	Unit   *Unit     `gorm:"foreignKey:UnitId"`

	OpenedBy  uuid.UUID `gorm:"type:uuid"`
	Status    string    `gorm:"size:20;not null"`
	OpensAt   time.Time
	ExpiresAt time.Time
}

const (
	CheckInQueued     string = "QUEUED"
	CheckInProcessing string = "PROCESSING"
	CheckInVerified   string = "VERIFIED"
	CheckInRejected   string = "REJECTED"
	CheckInFailed     string = "FAILED"
)

// CheckIn is one submitted burst of frames awaiting (or holding the result
// of) remote verification.
type CheckIn struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SessionId uuid.UUID          `gorm:"type:uuid;index"`
	Session   *AttendanceSession `gorm:"foreignKey:SessionId"`

	SubjectId uuid.UUID `gorm:"type:uuid;index"`

	Status          string `gorm:"size:20;not null"`
	FrameCount      int    `gorm:"not null"`
	Confidence      float64
	FramesProcessed int
	Liveness        datatypes.JSON `gorm:"type:jsonb"` // {"passed":…,"total":…}

	CreationTime   time.Time
	CompletionTime sql.NullTime

	Errors []CheckInError `gorm:"foreignKey:CheckInId;constraint:OnDelete:CASCADE"`
}

type CheckInError struct {
	CheckInId uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

type AttendanceRecord struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SessionId uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_session_subject"`
	SubjectId uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_session_subject"`

	CheckInId  uuid.UUID `gorm:"type:uuid"`
	Confidence float64
	RecordedAt time.Time
}
