package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the schema at migration 0. Kept independent of the live schema
// structs so later schema changes do not rewrite history.

type User struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	FullName     string
	Role         string `gorm:"size:20;not null"`
	CreationTime time.Time
}

type Course struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code string    `gorm:"uniqueIndex;not null"`
	Name string    `gorm:"not null"`

	Units []Unit `gorm:"foreignKey:CourseId;constraint:OnDelete:CASCADE"`
}

type Unit struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	CourseId uuid.UUID `gorm:"type:uuid"`
	Course   *Course   `gorm:"foreignKey:CourseId"`
	Code     string    `gorm:"not null"`
	Name     string    `gorm:"not null"`
}

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
	UnitId       uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreationTime time.Time
}

type FaceProfile struct {
	SubjectId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status         string `gorm:"size:20;not null"`
	ImageCount     int    `gorm:"default:0"`
	CreationTime   time.Time
	CompletionTime sql.NullTime
}

type AttendanceSession struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UnitId uuid.UUID `gorm:"type:uuid;index"`
	Unit   *Unit     `gorm:"foreignKey:UnitId"`

	OpenedBy  uuid.UUID `gorm:"type:uuid"`
	Status    string    `gorm:"size:20;not null"`
	OpensAt   time.Time
	ExpiresAt time.Time
}

type CheckIn struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SessionId uuid.UUID          `gorm:"type:uuid;index"`
	Session   *AttendanceSession `gorm:"foreignKey:SessionId"`

	SubjectId uuid.UUID `gorm:"type:uuid;index"`

	Status          string `gorm:"size:20;not null"`
	FrameCount      int    `gorm:"not null"`
	Confidence      float64
	FramesProcessed int
	Liveness        datatypes.JSON `gorm:"type:jsonb"`

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

func Migration(txn *gorm.DB) error {
	return txn.AutoMigrate(
		&User{}, &Course{}, &Unit{}, &ClassAssignment{}, &Enrollment{}, &FaceProfile{},
		&AttendanceSession{}, &CheckIn{}, &CheckInError{}, &AttendanceRecord{},
	)
}
