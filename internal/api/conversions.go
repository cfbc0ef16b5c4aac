package api

import (
	"database/sql"
	"encoding/json"
	"time"

	"eduface-backend/internal/database"
	"eduface-backend/internal/schedule"
	"eduface-backend/pkg/api"
)

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func toUser(user database.User) api.User {
	return api.User{
		Id:           user.Id,
		Email:        user.Email,
		FullName:     user.FullName,
		Role:         user.Role,
		CreationTime: user.CreationTime,
	}
}

func toUnit(unit database.Unit) api.Unit {
	return api.Unit{
		Id:       unit.Id,
		CourseId: unit.CourseId,
		Code:     unit.Code,
		Name:     unit.Name,
	}
}

func toCourse(course database.Course) api.Course {
	units := make([]api.Unit, len(course.Units))
	for i, unit := range course.Units {
		units[i] = toUnit(unit)
	}
	return api.Course{
		Id:    course.Id,
		Code:  course.Code,
		Name:  course.Name,
		Units: units,
	}
}

func toAssignment(assignment database.ClassAssignment) api.Assignment {
	return api.Assignment{
		Id:           assignment.Id,
		TeacherId:    assignment.TeacherId,
		UnitId:       assignment.UnitId,
		Room:         assignment.Room,
		Days:         schedule.DaySet(assignment.Days).Names(),
		StartTime:    schedule.Minutes(assignment.StartMinutes).String(),
		EndTime:      schedule.Minutes(assignment.EndMinutes).String(),
		CreationTime: assignment.CreationTime,
	}
}

func assignmentSchedule(assignment database.ClassAssignment) schedule.Schedule {
	return schedule.Schedule{
		Days:  schedule.DaySet(assignment.Days),
		Start: schedule.Minutes(assignment.StartMinutes),
		End:   schedule.Minutes(assignment.EndMinutes),
	}
}

func toSession(session database.AttendanceSession) api.Session {
	return api.Session{
		Id:        session.Id,
		UnitId:    session.UnitId,
		OpenedBy:  session.OpenedBy,
		Status:    session.Status,
		OpensAt:   session.OpensAt,
		ExpiresAt: session.ExpiresAt,
	}
}

func toFaceProfile(profile database.FaceProfile) api.FaceProfile {
	return api.FaceProfile{
		SubjectId:      profile.SubjectId,
		Status:         profile.Status,
		ImageCount:     profile.ImageCount,
		QualityScore:   profile.QualityScore,
		CreationTime:   profile.CreationTime,
		CompletionTime: nullTimePtr(profile.CompletionTime),
	}
}

func toCheckIn(checkIn database.CheckIn) api.CheckIn {
	result := api.CheckIn{
		Id:              checkIn.Id,
		SessionId:       checkIn.SessionId,
		SubjectId:       checkIn.SubjectId,
		Status:          checkIn.Status,
		FrameCount:      checkIn.FrameCount,
		Confidence:      checkIn.Confidence,
		FramesProcessed: checkIn.FramesProcessed,
		CreationTime:    checkIn.CreationTime,
		CompletionTime:  nullTimePtr(checkIn.CompletionTime),
	}

	if len(checkIn.Liveness) > 0 {
		var liveness api.Liveness
		if err := json.Unmarshal(checkIn.Liveness, &liveness); err == nil {
			result.Liveness = &liveness
		}
	}

	for _, e := range checkIn.Errors {
		result.Errors = append(result.Errors, e.Error)
	}

	return result
}

func toAttendanceRecord(record database.AttendanceRecord) api.AttendanceRecord {
	return api.AttendanceRecord{
		SubjectId:  record.SubjectId,
		CheckInId:  record.CheckInId,
		Confidence: record.Confidence,
		RecordedAt: record.RecordedAt,
	}
}
