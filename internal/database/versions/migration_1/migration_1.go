package migration_1

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration 1 adds the enrollment quality score reported by the verification
// service to face profiles.

type FaceProfile struct {
	SubjectId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	QualityScore float64
}

func Migration(txn *gorm.DB) error {
	return txn.Migrator().AddColumn(&FaceProfile{}, "QualityScore")
}

func Rollback(txn *gorm.DB) error {
	return txn.Migrator().DropColumn(&FaceProfile{}, "QualityScore")
}
