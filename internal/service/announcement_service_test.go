package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
)

type mockAnnouncementRepo struct {
	rows       map[string]*models.Announcement
	lastFilter models.AnnouncementFilter
}

func newMockAnnouncementRepo() *mockAnnouncementRepo {
	return &mockAnnouncementRepo{rows: make(map[string]*models.Announcement)}
}

func (m *mockAnnouncementRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	m.lastFilter = filter
	out := make([]models.Announcement, 0)
	for _, a := range m.rows {
		for _, audience := range filter.Audiences {
			if a.Audience == audience {
				out = append(out, *a)
				break
			}
		}
	}
	return out, len(out), nil
}

func (m *mockAnnouncementRepo) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (m *mockAnnouncementRepo) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = "a-" + announcement.Title
	}
	m.rows[announcement.ID] = announcement
	return nil
}

func (m *mockAnnouncementRepo) Update(ctx context.Context, announcement *models.Announcement) error {
	m.rows[announcement.ID] = announcement
	return nil
}

func (m *mockAnnouncementRepo) Delete(ctx context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

func newAnnouncementService(repo *mockAnnouncementRepo) *AnnouncementService {
	return NewAnnouncementService(repo, nil, validator.New(), zap.NewNop())
}

func TestAnnouncementListScopedByRole(t *testing.T) {
	repo := newMockAnnouncementRepo()
	repo.rows["a1"] = &models.Announcement{ID: "a1", Audience: models.AnnouncementAudienceAll}
	repo.rows["a2"] = &models.Announcement{ID: "a2", Audience: models.AnnouncementAudienceTeachers}
	repo.rows["a3"] = &models.Announcement{ID: "a3", Audience: models.AnnouncementAudienceStudents}
	svc := newAnnouncementService(repo)

	rows, total, err := svc.ListForRole(context.Background(), models.RoleStudent, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, a := range rows {
		assert.NotEqual(t, models.AnnouncementAudienceTeachers, a.Audience)
	}

	_, total, err = svc.ListForRole(context.Background(), models.RoleAdmin, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestAnnouncementGetEnforcesAudience(t *testing.T) {
	repo := newMockAnnouncementRepo()
	repo.rows["a1"] = &models.Announcement{ID: "a1", Audience: models.AnnouncementAudienceTeachers}
	svc := newAnnouncementService(repo)

	_, err := svc.GetByID(context.Background(), "a1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetByID(context.Background(), "a1", models.RoleTeacher)
	require.NoError(t, err)
}

func TestAnnouncementCreateValidatesAudience(t *testing.T) {
	svc := newAnnouncementService(newMockAnnouncementRepo())

	_, err := svc.Create(context.Background(), AnnouncementRequest{Title: "t", Content: "c", Audience: "EVERYONE"}, "adm-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(context.Background(), AnnouncementRequest{Title: "t", Content: "c", Audience: "students"}, "adm-1")
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementAudienceStudents, created.Audience)
	assert.Equal(t, "adm-1", created.CreatedBy)
	assert.False(t, created.PublishedAt.IsZero())
}

func TestAnnouncementUpdateRequiresAuthorOrAdmin(t *testing.T) {
	repo := newMockAnnouncementRepo()
	repo.rows["a1"] = &models.Announcement{ID: "a1", Audience: models.AnnouncementAudienceAll, CreatedBy: "tch-1"}
	svc := newAnnouncementService(repo)

	req := AnnouncementRequest{Title: "new", Content: "body", Audience: "ALL"}

	_, err := svc.Update(context.Background(), "a1", req, "tch-2", models.RoleTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), "a1", req, "adm-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
}

func TestAnnouncementDeleteByAuthor(t *testing.T) {
	repo := newMockAnnouncementRepo()
	repo.rows["a1"] = &models.Announcement{ID: "a1", Audience: models.AnnouncementAudienceAll, CreatedBy: "tch-1"}
	svc := newAnnouncementService(repo)

	require.NoError(t, svc.Delete(context.Background(), "a1", "tch-1", models.RoleTeacher))
	assert.Empty(t, repo.rows)
}
