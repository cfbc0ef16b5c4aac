package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"eduface-backend/internal/database"
	"eduface-backend/internal/saga"
	"eduface-backend/internal/schedule"
	"eduface-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var validRoles = []string{database.RoleAdmin, database.RoleTeacher, database.RoleStudent}

func (s *BackendService) CreateUser(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateUserRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Email == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "email is required")
	}
	if !slices.Contains(validRoles, req.Role) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid role '%s', must be one of %v", req.Role, validRoles)
	}
	if len(req.UnitIds) > 0 && req.Role != database.RoleStudent {
		return nil, CodedErrorf(http.StatusBadRequest, "only students can be enrolled in units")
	}

	ctx := r.Context()
	userId := uuid.New()

	// Provisioning spans the user row and its enrollments; if any step fails
	// the earlier ones are rolled back so no half-created user remains.
	provision := saga.New(saga.Step{
		Name: "create user",
		Run: func(ctx context.Context) error {
			return s.db.WithContext(ctx).Create(&database.User{
				Id:           userId,
				Email:        req.Email,
				FullName:     req.FullName,
				Role:         req.Role,
				CreationTime: time.Now().UTC(),
			}).Error
		},
		Undo: func(ctx context.Context) error {
			return s.db.WithContext(ctx).Delete(&database.User{Id: userId}).Error
		},
	})

	for _, unitId := range req.UnitIds {
		provision.Add(saga.Step{
			Name: fmt.Sprintf("enroll in unit %s", unitId),
			Run: func(ctx context.Context) error {
				var unit database.Unit
				if err := s.db.WithContext(ctx).First(&unit, "id = ?", unitId).Error; err != nil {
					return fmt.Errorf("unit %s not found: %w", unitId, err)
				}
				return s.db.WithContext(ctx).Create(&database.Enrollment{
					UnitId:       unitId,
					StudentId:    userId,
					CreationTime: time.Now().UTC(),
				}).Error
			},
			Undo: func(ctx context.Context) error {
				return s.db.WithContext(ctx).Delete(&database.Enrollment{UnitId: unitId, StudentId: userId}).Error
			},
		})
	}

	if err := provision.Execute(ctx); err != nil {
		slog.Error("error provisioning user", "email", req.Email, "error", err)
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "failed to provision user: %v", err)
	}

	slog.Info("provisioned user", "user_id", userId, "role", req.Role, "units", len(req.UnitIds))

	return api.CreateUserResponse{UserId: userId}, nil
}

func (s *BackendService) ListUsers(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.ListUsersQuery](r)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(r.Context())
	if query.Role != "" {
		db = db.Where("role = ?", query.Role)
	}

	var users []database.User
	if err := db.Find(&users).Error; err != nil {
		slog.Error("error listing users", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving users")
	}

	result := make([]api.User, len(users))
	for i, user := range users {
		result[i] = toUser(user)
	}
	return result, nil
}

func (s *BackendService) GetUser(r *http.Request) (any, error) {
	userId, err := URLParamUUID(r, "user_id")
	if err != nil {
		return nil, err
	}

	var user database.User
	if err := s.db.WithContext(r.Context()).First(&user, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "user not found")
		}
		slog.Error("error getting user", "user_id", userId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving user record")
	}

	return toUser(user), nil
}

func (s *BackendService) CreateCourse(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateCourseRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Code == "" || req.Name == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "course code and name are required")
	}

	course := database.Course{Id: uuid.New(), Code: req.Code, Name: req.Name}
	if err := s.db.WithContext(r.Context()).Create(&course).Error; err != nil {
		slog.Error("error creating course", "code", req.Code, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create course")
	}

	return api.CreateCourseResponse{CourseId: course.Id}, nil
}

func (s *BackendService) ListCourses(r *http.Request) (any, error) {
	var courses []database.Course
	if err := s.db.WithContext(r.Context()).Preload("Units").Find(&courses).Error; err != nil {
		slog.Error("error listing courses", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving courses")
	}

	result := make([]api.Course, len(courses))
	for i, course := range courses {
		result[i] = toCourse(course)
	}
	return result, nil
}

func (s *BackendService) GetCourse(r *http.Request) (any, error) {
	courseId, err := URLParamUUID(r, "course_id")
	if err != nil {
		return nil, err
	}

	var course database.Course
	if err := s.db.WithContext(r.Context()).Preload("Units").First(&course, "id = ?", courseId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "course not found")
		}
		slog.Error("error getting course", "course_id", courseId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving course record")
	}

	return toCourse(course), nil
}

func (s *BackendService) CreateUnit(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateUnitRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Code == "" || req.Name == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "unit code and name are required")
	}

	ctx := r.Context()

	var course database.Course
	if err := s.db.WithContext(ctx).First(&course, "id = ?", req.CourseId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "course not found")
		}
		slog.Error("error getting course", "course_id", req.CourseId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving course record")
	}

	unit := database.Unit{Id: uuid.New(), CourseId: req.CourseId, Code: req.Code, Name: req.Name}
	if err := s.db.WithContext(ctx).Create(&unit).Error; err != nil {
		slog.Error("error creating unit", "code", req.Code, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create unit")
	}

	return api.CreateUnitResponse{UnitId: unit.Id}, nil
}

func (s *BackendService) GetRoster(r *http.Request) (any, error) {
	unitId, err := URLParamUUID(r, "unit_id")
	if err != nil {
		return nil, err
	}

	var students []database.User
	if err := s.db.WithContext(r.Context()).
		Joins("JOIN enrollments ON enrollments.student_id = users.id").
		Where("enrollments.unit_id = ?", unitId).
		Find(&students).Error; err != nil {
		slog.Error("error listing roster", "unit_id", unitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving roster")
	}

	result := make([]api.User, len(students))
	for i, student := range students {
		result[i] = toUser(student)
	}
	return result, nil
}

// parseScheduleRequest converts the wire representation (weekday names,
// "HH:MM" strings) into a validated schedule.
func parseScheduleRequest(days []string, startTime, endTime string) (schedule.Schedule, error) {
	daySet, err := schedule.ParseDays(days)
	if err != nil {
		return schedule.Schedule{}, CodedErrorf(http.StatusBadRequest, "invalid days: %v", err)
	}

	start, err := schedule.ParseClock(startTime)
	if err != nil {
		return schedule.Schedule{}, CodedErrorf(http.StatusBadRequest, "invalid start time: %v", err)
	}

	end, err := schedule.ParseClock(endTime)
	if err != nil {
		return schedule.Schedule{}, CodedErrorf(http.StatusBadRequest, "invalid end time: %v", err)
	}

	sched := schedule.Schedule{Days: daySet, Start: start, End: end}
	if err := sched.Validate(); err != nil {
		return schedule.Schedule{}, CodedErrorf(http.StatusBadRequest, "invalid schedule: %v", err)
	}

	return sched, nil
}

func (s *BackendService) CreateAssignment(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateAssignmentRequest](r)
	if err != nil {
		return nil, err
	}

	sched, err := parseScheduleRequest(req.Days, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var teacher database.User
	if err := s.db.WithContext(ctx).First(&teacher, "id = ?", req.TeacherId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "teacher not found")
		}
		slog.Error("error getting teacher", "teacher_id", req.TeacherId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving teacher record")
	}
	if teacher.Role != database.RoleTeacher {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "user %s is not a teacher", req.TeacherId)
	}

	var unit database.Unit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", req.UnitId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "unit not found")
		}
		slog.Error("error getting unit", "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving unit record")
	}

	var existing []database.ClassAssignment
	if err := s.db.WithContext(ctx).Where("teacher_id = ?", req.TeacherId).Find(&existing).Error; err != nil {
		slog.Error("error listing teacher assignments", "teacher_id", req.TeacherId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving existing assignments")
	}

	assignments := make([]schedule.Assignment, len(existing))
	for i, a := range existing {
		assignments[i] = schedule.Assignment{Id: a.Id, Schedule: assignmentSchedule(a)}
	}

	if conflict := schedule.FindConflict(sched, assignments); conflict != nil {
		return nil, CodedErrorf(http.StatusConflict, "schedule %s", conflict.Error())
	}

	assignment := database.ClassAssignment{
		Id:           uuid.New(),
		TeacherId:    req.TeacherId,
		UnitId:       req.UnitId,
		Room:         req.Room,
		Days:         uint8(sched.Days),
		StartMinutes: int(sched.Start),
		EndMinutes:   int(sched.End),
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		slog.Error("error creating assignment", "teacher_id", req.TeacherId, "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create assignment")
	}

	slog.Info("created class assignment", "assignment_id", assignment.Id, "teacher_id", req.TeacherId, "unit_id", req.UnitId)

	return api.CreateAssignmentResponse{AssignmentId: assignment.Id}, nil
}

func (s *BackendService) UpdateAssignment(r *http.Request) (any, error) {
	assignmentId, err := URLParamUUID(r, "assignment_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdateAssignmentRequest](r)
	if err != nil {
		return nil, err
	}

	sched, err := parseScheduleRequest(req.Days, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var assignment database.ClassAssignment
	if err := s.db.WithContext(ctx).First(&assignment, "id = ?", assignmentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "assignment not found")
		}
		slog.Error("error getting assignment", "assignment_id", assignmentId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving assignment record")
	}

	// The new schedule is checked against the teacher's other assignments,
	// not against the slot being replaced.
	var existing []database.ClassAssignment
	if err := s.db.WithContext(ctx).
		Where("teacher_id = ? AND id <> ?", assignment.TeacherId, assignmentId).
		Find(&existing).Error; err != nil {
		slog.Error("error listing teacher assignments", "teacher_id", assignment.TeacherId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving existing assignments")
	}

	assignments := make([]schedule.Assignment, len(existing))
	for i, a := range existing {
		assignments[i] = schedule.Assignment{Id: a.Id, Schedule: assignmentSchedule(a)}
	}

	if conflict := schedule.FindConflict(sched, assignments); conflict != nil {
		return nil, CodedErrorf(http.StatusConflict, "schedule %s", conflict.Error())
	}

	if err := s.db.WithContext(ctx).Model(&database.ClassAssignment{Id: assignmentId}).
		Updates(map[string]any{
			"room":          req.Room,
			"days":          uint8(sched.Days),
			"start_minutes": int(sched.Start),
			"end_minutes":   int(sched.End),
		}).Error; err != nil {
		slog.Error("error updating assignment", "assignment_id", assignmentId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to update assignment")
	}

	slog.Info("updated class assignment", "assignment_id", assignmentId)

	assignment.Room = req.Room
	assignment.Days = uint8(sched.Days)
	assignment.StartMinutes = int(sched.Start)
	assignment.EndMinutes = int(sched.End)

	return toAssignment(assignment), nil
}

func (s *BackendService) ListAssignments(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.ListAssignmentsQuery](r)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(r.Context())
	if query.TeacherId != "" {
		teacherId, err := uuid.Parse(query.TeacherId)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid teacher_id query param")
		}
		db = db.Where("teacher_id = ?", teacherId)
	}
	if query.UnitId != "" {
		unitId, err := uuid.Parse(query.UnitId)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid unit_id query param")
		}
		db = db.Where("unit_id = ?", unitId)
	}

	var assignments []database.ClassAssignment
	if err := db.Find(&assignments).Error; err != nil {
		slog.Error("error listing assignments", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving assignments")
	}

	result := make([]api.Assignment, len(assignments))
	for i, assignment := range assignments {
		result[i] = toAssignment(assignment)
	}
	return result, nil
}

func (s *BackendService) DeleteAssignment(r *http.Request) (any, error) {
	assignmentId, err := URLParamUUID(r, "assignment_id")
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(r.Context()).Delete(&database.ClassAssignment{Id: assignmentId})
	if result.Error != nil {
		slog.Error("error deleting assignment", "assignment_id", assignmentId, "error", result.Error)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete assignment")
	}
	if result.RowsAffected == 0 {
		return nil, CodedErrorf(http.StatusNotFound, "assignment not found")
	}

	return nil, nil
}

func (s *BackendService) CreateEnrollment(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateEnrollmentRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var student database.User
	if err := s.db.WithContext(ctx).First(&student, "id = ?", req.StudentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "student not found")
		}
		slog.Error("error getting student", "student_id", req.StudentId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving student record")
	}
	if student.Role != database.RoleStudent {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "user %s is not a student", req.StudentId)
	}

	var unit database.Unit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", req.UnitId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "unit not found")
		}
		slog.Error("error getting unit", "unit_id", req.UnitId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving unit record")
	}

	enrollment := database.Enrollment{
		UnitId:       req.UnitId,
		StudentId:    req.StudentId,
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		slog.Error("error creating enrollment", "unit_id", req.UnitId, "student_id", req.StudentId, "error", err)
		return nil, CodedErrorf(http.StatusConflict, "student is already enrolled in this unit")
	}

	return nil, nil
}
