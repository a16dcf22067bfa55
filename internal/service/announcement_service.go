package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementRequest is the payload for creating or updating an
// announcement.
type AnnouncementRequest struct {
	Title     string     `json:"title" validate:"required"`
	Content   string     `json:"content" validate:"required"`
	Audience  string     `json:"audience" validate:"required,announcement_audience"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type announcementPage struct {
	Rows  []models.Announcement
	Total int
}

// AnnouncementService manages broadcast messages. First-page listings per
// audience are cached; any write invalidates the whole announcement
// keyspace.
type AnnouncementService struct {
	repo      announcementRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the announcement service.
func NewAnnouncementService(repo announcementRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validate.RegisterValidation("announcement_audience", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementAudience(strings.ToUpper(fl.Field().String())) {
		case models.AnnouncementAudienceAll, models.AnnouncementAudienceTeachers, models.AnnouncementAudienceStudents:
			return true
		default:
			return false
		}
	})
	return &AnnouncementService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// ListForRole returns announcements visible to the given role, newest first.
func (s *AnnouncementService) ListForRole(ctx context.Context, role models.UserRole, page, pageSize int) ([]models.Announcement, int, error) {
	filter := models.AnnouncementFilter{
		Audiences: audiencesForRole(role),
		Page:      page,
		PageSize:  pageSize,
	}

	key := announcementCacheKey(role, page, pageSize)
	var cached announcementPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Rows, cached.Total, nil
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	s.cache.Set(ctx, key, announcementPage{Rows: rows, Total: total}, 0)
	return rows, total, nil
}

// GetByID returns one announcement, enforcing audience visibility.
func (s *AnnouncementService) GetByID(ctx context.Context, id string, role models.UserRole) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	for _, audience := range audiencesForRole(role) {
		if announcement.Audience == audience {
			return announcement, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "announcement is not visible to this role")
}

// Create publishes a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, req AnnouncementRequest, createdBy string) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement := &models.Announcement{
		Title:       req.Title,
		Content:     req.Content,
		Audience:    models.AnnouncementAudience(strings.ToUpper(req.Audience)),
		CreatedBy:   createdBy,
		PublishedAt: time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.cache.Invalidate(ctx, "announcements:*")
	return announcement, nil
}

// Update replaces an announcement's content. Only the author or an admin may
// update; the handler enforces the role, the author check lives here.
func (s *AnnouncementService) Update(ctx context.Context, id string, req AnnouncementRequest, actorID string, actorRole models.UserRole) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if announcement.CreatedBy != actorID && actorRole != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may modify this announcement")
	}

	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = models.AnnouncementAudience(strings.ToUpper(req.Audience))
	announcement.ExpiresAt = req.ExpiresAt
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.cache.Invalidate(ctx, "announcements:*")
	return announcement, nil
}

// Delete removes an announcement with the same authorship rule as Update.
func (s *AnnouncementService) Delete(ctx context.Context, id, actorID string, actorRole models.UserRole) error {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if announcement.CreatedBy != actorID && actorRole != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author may delete this announcement")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.cache.Invalidate(ctx, "announcements:*")
	return nil
}

func audiencesForRole(role models.UserRole) []models.AnnouncementAudience {
	switch role {
	case models.RoleTeacher:
		return []models.AnnouncementAudience{models.AnnouncementAudienceAll, models.AnnouncementAudienceTeachers}
	case models.RoleStudent:
		return []models.AnnouncementAudience{models.AnnouncementAudienceAll, models.AnnouncementAudienceStudents}
	default:
		// Admins see everything.
		return []models.AnnouncementAudience{models.AnnouncementAudienceAll, models.AnnouncementAudienceTeachers, models.AnnouncementAudienceStudents}
	}
}

func announcementCacheKey(role models.UserRole, page, pageSize int) string {
	return fmt.Sprintf("announcements:%s:p%d:s%d", role, page, pageSize)
}
