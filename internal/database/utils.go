package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateCheckInStatus(ctx context.Context, txn *gorm.DB, checkInId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == CheckInVerified || status == CheckInRejected || status == CheckInFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&CheckIn{Id: checkInId}).Updates(updates).Error; err != nil {
		slog.Error("error updating check-in status", "check_in_id", checkInId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateFaceProfileStatus(ctx context.Context, txn *gorm.DB, subjectId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == ProfileEnrolled || status == ProfileFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&FaceProfile{SubjectId: subjectId}).Updates(updates).Error; err != nil {
		slog.Error("error updating face profile status", "subject_id", subjectId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveCheckInError(ctx context.Context, txn *gorm.DB, checkInId uuid.UUID, errorMessage string) {
	checkInError := CheckInError{
		CheckInId: checkInId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&checkInError).Error; err != nil {
		slog.Error("error saving check-in error", "check_in_id", checkInId, "error", err)
	}
}
