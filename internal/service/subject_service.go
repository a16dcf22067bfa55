package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
)

type subjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	GetByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	Enroll(ctx context.Context, subjectID, studentID string) error
	Unenroll(ctx context.Context, subjectID, studentID string) error
	Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error)
	IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error)
}

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateSubjectRequest is the payload for registering a subject.
type CreateSubjectRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

// SubjectService manages subjects and their enrollment rosters. Rosters are
// cached; any enrollment change invalidates the subject's entries.
type SubjectService struct {
	repo      subjectRepository
	users     userStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo subjectRepository, users userStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, users: users, cache: cache, validator: validate, logger: logger}
}

// Create registers a subject owned by the given teacher.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject owner must have the TEACHER role")
	}

	subject := &models.Subject{Code: req.Code, Name: req.Name, TeacherID: req.TeacherID}
	if err := s.repo.Create(ctx, subject); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// GetByID returns a single subject with its teacher's name.
func (s *SubjectService) GetByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// List returns a filtered page of subjects.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return rows, total, nil
}

// Enroll adds a student to the subject roster. Re-enrolling is a no-op.
func (s *SubjectService) Enroll(ctx context.Context, subjectID, studentID string) error {
	if _, err := s.GetByID(ctx, subjectID); err != nil {
		return err
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "only students can be enrolled")
	}

	if err := s.repo.Enroll(ctx, subjectID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	s.cache.Invalidate(ctx, rosterCachePattern(subjectID))
	return nil
}

// Unenroll removes a student from the subject roster.
func (s *SubjectService) Unenroll(ctx context.Context, subjectID, studentID string) error {
	if err := s.repo.Unenroll(ctx, subjectID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll student")
	}
	s.cache.Invalidate(ctx, rosterCachePattern(subjectID))
	return nil
}

// Roster returns the enrolled students in enrollment order, served from
// cache when possible.
func (s *SubjectService) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	if _, err := s.GetByID(ctx, subjectID); err != nil {
		return nil, err
	}

	key := rosterCacheKey(subjectID)
	var cached []models.RosterEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	roster, err := s.repo.Roster(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	s.cache.Set(ctx, key, roster, 0)
	return roster, nil
}

// IsEnrolled reports roster membership.
func (s *SubjectService) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	return s.repo.IsEnrolled(ctx, subjectID, studentID)
}

func rosterCacheKey(subjectID string) string {
	return fmt.Sprintf("subjects:%s:roster", subjectID)
}

func rosterCachePattern(subjectID string) string {
	return fmt.Sprintf("subjects:%s:*", subjectID)
}
