package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/pkg/config"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/jobs"
)

type notificationRepository interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
	ListUndelivered(ctx context.Context, limit int) ([]models.Notification, error)
	MarkDelivered(ctx context.Context, ids []string, deliveredAt time.Time) error
}

// DeliverySink pushes a notification to its out-of-band destination
// (websocket hub, push gateway, mail relay). The default sink only logs.
type DeliverySink interface {
	Deliver(ctx context.Context, notification models.Notification) error
}

type logSink struct {
	logger *zap.Logger
}

func (s logSink) Deliver(_ context.Context, n models.Notification) error {
	s.logger.Sugar().Infow("notification delivered", "notification_id", n.ID, "user_id", n.UserID)
	return nil
}

// NotificationService owns the notification outbox: rows are appended in the
// same request that triggers them, then delivered asynchronously by a worker
// queue. Delivery failure never affects the triggering write.
type NotificationService struct {
	repo    notificationRepository
	sink    DeliverySink
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger

	flushInterval time.Duration
	flushBatch    int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewNotificationService constructs the service. A nil sink falls back to a
// log-only sink.
func NewNotificationService(repo notificationRepository, sink DeliverySink, metrics *MetricsService, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = logSink{logger: logger}
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 15 * time.Second
	}

	svc := &NotificationService{
		repo:          repo,
		sink:          sink,
		metrics:       metrics,
		logger:        logger,
		flushInterval: flushInterval,
		flushBatch:    100,
	}
	svc.queue = jobs.NewQueue("notification-delivery", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers and the outbox flusher.
func (s *NotificationService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.queue.Start(ctx)
	go s.flushLoop(ctx)
	s.started = true
}

// Stop halts the flusher and drains the workers.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
	s.queue.Stop()
}

// Append writes outbox rows and schedules their delivery. The write is the
// durable part; enqueueing is opportunistic and the flusher picks up anything
// the queue missed.
func (s *NotificationService) Append(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append notifications")
	}
	for _, n := range notifications {
		if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "deliver", Payload: n}); err != nil {
			s.logger.Sugar().Debugw("notification enqueue deferred to flusher", "notification_id", n.ID, "error", err)
		}
	}
	return nil
}

// ListForUser returns a page of the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	rows, total, err := s.repo.ListByUser(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return rows, total, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Sugar().Errorw("unexpected delivery payload", "job_id", job.ID)
		return nil
	}
	if err := s.sink.Deliver(ctx, notification); err != nil {
		return err
	}
	if err := s.repo.MarkDelivered(ctx, []string{notification.ID}, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// flushLoop periodically re-enqueues outbox rows the workers never saw, e.g.
// rows appended right before a restart.
func (s *NotificationService) flushLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushOnce(ctx)
		}
	}
}

func (s *NotificationService) flushOnce(ctx context.Context) {
	pending, err := s.repo.ListUndelivered(ctx, s.flushBatch)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load undelivered notifications", "error", err)
		return
	}
	s.metrics.SetOutboxPending(len(pending))
	for _, n := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "deliver", Payload: n}); err != nil {
			return
		}
	}
}
