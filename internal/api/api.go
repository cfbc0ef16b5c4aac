package api

import (
	"net/http"

	"eduface-backend/internal/messaging"
	"eduface-backend/internal/sessioncache"
	"eduface-backend/internal/storage"
	"eduface-backend/internal/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const maxConcurrentSubjects = 10000

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	storage   storage.Provider
	sessions  sessioncache.Cache

	frameBucket string

	// Serializes check-in submissions per subject so a kiosk retry cannot
	// race its own first attempt.
	checkInLocks utils.MutexMap
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher, store storage.Provider, sessions sessioncache.Cache, frameBucket string) *BackendService {
	return &BackendService{
		db:           db,
		publisher:    publisher,
		storage:      store,
		sessions:     sessions,
		frameBucket:  frameBucket,
		checkInLocks: utils.NewMutexMap(maxConcurrentSubjects),
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/users", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateUser))
		r.Get("/", RestHandler(s.ListUsers))
		r.Get("/{user_id}", RestHandler(s.GetUser))
	})

	r.Route("/courses", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateCourse))
		r.Get("/", RestHandler(s.ListCourses))
		r.Get("/{course_id}", RestHandler(s.GetCourse))
	})

	r.Route("/units", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateUnit))
		r.Get("/{unit_id}/roster", RestHandler(s.GetRoster))
	})

	r.Route("/assignments", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateAssignment))
		r.Get("/", RestHandler(s.ListAssignments))
		r.Put("/{assignment_id}", RestHandler(s.UpdateAssignment))
		r.Delete("/{assignment_id}", RestHandler(s.DeleteAssignment))
	})

	r.Post("/enrollments", RestHandler(s.CreateEnrollment))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", RestHandler(s.OpenSession))
		r.Get("/{session_id}", RestHandler(s.GetSession))
		r.Post("/{session_id}/close", RestHandler(s.CloseSession))
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Post("/{subject_id}/enroll", RestHandler(s.SubmitEnrollment))
		r.Get("/{subject_id}", RestHandler(s.GetFaceProfile))
	})

	r.Route("/checkins", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitCheckIn))
		r.Get("/{check_in_id}", RestHandler(s.GetCheckIn))
	})

	r.Get("/reports/attendance/{session_id}", RestHandler(s.GetAttendanceReport))
}
