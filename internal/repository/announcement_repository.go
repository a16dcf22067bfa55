package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink/edulink-api/internal/models"
)

// AnnouncementRepository persists announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements visible to the given audiences, newest first.
// Expired announcements are excluded.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	where := []string{"(expires_at IS NULL OR expires_at > NOW())", "published_at <= NOW()"}
	args := []interface{}{}
	if len(filter.Audiences) > 0 {
		placeholders := make([]string, len(filter.Audiences))
		for i, audience := range filter.Audiences {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, audience)
		}
		where = append(where, fmt.Sprintf("audience IN (%s)", strings.Join(placeholders, ", ")))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, title, content, audience, created_by, published_at, expires_at, created_at, updated_at
FROM announcements WHERE %s ORDER BY published_at DESC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var rows []models.Announcement
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return rows, total, nil
}

// GetByID returns one announcement.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := `SELECT id, title, content, audience, created_by, published_at, expires_at, created_at, updated_at
FROM announcements WHERE id = $1`
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	announcement.CreatedAt = now
	announcement.UpdatedAt = now
	query := `INSERT INTO announcements (id, title, content, audience, created_by, published_at, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, announcement.ID, announcement.Title, announcement.Content, announcement.Audience, announcement.CreatedBy, announcement.PublishedAt, announcement.ExpiresAt, announcement.CreatedAt, announcement.UpdatedAt); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update replaces mutable announcement fields.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	query := `UPDATE announcements
SET title = $2, content = $3, audience = $4, published_at = $5, expires_at = $6, updated_at = $7
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, announcement.ID, announcement.Title, announcement.Content, announcement.Audience, announcement.PublishedAt, announcement.ExpiresAt, announcement.UpdatedAt); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM announcements WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
