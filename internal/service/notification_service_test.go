package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/pkg/config"
)

type mockNotificationRepo struct {
	mu          sync.Mutex
	rows        map[string]models.Notification
	markReadErr error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{rows: make(map[string]models.Notification)}
}

func (m *mockNotificationRepo) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = n.UserID + "-n"
		}
		m.rows[n.ID] = *n
	}
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range m.rows {
		if n.UserID == filter.UserID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	if m.markReadErr != nil {
		return m.markReadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	n.Read = true
	m.rows[id] = n
	return nil
}

func (m *mockNotificationRepo) ListUndelivered(ctx context.Context, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range m.rows {
		if n.DeliveredAt == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkDelivered(ctx context.Context, ids []string, deliveredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if n, ok := m.rows[id]; ok {
			at := deliveredAt
			n.DeliveredAt = &at
			m.rows[id] = n
		}
	}
	return nil
}

func (m *mockNotificationRepo) undeliveredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.DeliveredAt == nil {
			count++
		}
	}
	return count
}

type recordingSink struct {
	mu        sync.Mutex
	delivered []models.Notification
	signal    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{signal: make(chan struct{}, 16)}
}

func (s *recordingSink) Deliver(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	s.delivered = append(s.delivered, n)
	s.mu.Unlock()
	s.signal <- struct{}{}
	return nil
}

func (s *recordingSink) waitFor(t *testing.T, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-s.signal:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, count)
		}
	}
}

func TestNotificationAppendDelivers(t *testing.T) {
	repo := newMockNotificationRepo()
	sink := newRecordingSink()
	svc := NewNotificationService(repo, sink, nil, config.NotificationsConfig{Workers: 1, FlushInterval: time.Hour}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Append(context.Background(), []models.Notification{
		{UserID: "stu-1", Message: "Attendance marked"},
		{UserID: "stu-2", Message: "Attendance marked"},
	})
	require.NoError(t, err)

	sink.waitFor(t, 2)
	// Delivery stamps the outbox row.
	require.Eventually(t, func() bool { return repo.undeliveredCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationAppendEmptyBatchIsNoop(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := NewNotificationService(repo, newRecordingSink(), nil, config.NotificationsConfig{}, zap.NewNop())

	require.NoError(t, svc.Append(context.Background(), nil))
	assert.Empty(t, repo.rows)
}

func TestNotificationMarkReadUnknownRow(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := NewNotificationService(repo, newRecordingSink(), nil, config.NotificationsConfig{}, zap.NewNop())

	err := svc.MarkRead(context.Background(), "missing", "stu-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNotificationMarkReadScopedToUser(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.rows["n-1"] = models.Notification{ID: "n-1", UserID: "stu-1"}
	svc := NewNotificationService(repo, newRecordingSink(), nil, config.NotificationsConfig{}, zap.NewNop())

	err := svc.MarkRead(context.Background(), "n-1", "stu-2")
	require.Error(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), "n-1", "stu-1"))
	assert.True(t, repo.rows["n-1"].Read)
}

func TestNotificationFlusherPicksUpStragglers(t *testing.T) {
	repo := newMockNotificationRepo()
	// A row written by a previous process, never enqueued.
	repo.rows["n-old"] = models.Notification{ID: "n-old", UserID: "stu-1", Message: "stale"}

	sink := newRecordingSink()
	svc := NewNotificationService(repo, sink, nil, config.NotificationsConfig{Workers: 1, FlushInterval: 20 * time.Millisecond}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	sink.waitFor(t, 1)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.delivered)
	assert.Equal(t, "n-old", sink.delivered[0].ID)
}

func TestNotificationFlushReportsOutboxBacklog(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.rows["n-old"] = models.Notification{ID: "n-old", UserID: "stu-1", Message: "stale"}

	sink := newRecordingSink()
	metrics := NewMetricsService()
	svc := NewNotificationService(repo, sink, metrics, config.NotificationsConfig{Workers: 1, FlushInterval: time.Hour}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.flushOnce(context.Background())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.queueDepth))

	sink.waitFor(t, 1)
	require.Eventually(t, func() bool { return repo.undeliveredCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	svc.flushOnce(context.Background())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.queueDepth))
}
