package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/pkg/broker"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/jobs"
	"github.com/noah-isme/studio-class-api/pkg/logger"
)

const notificationQueueName = "notifications"

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationService hands notifications to the delivery broker through a
// retrying in-process queue so request handlers never block on delivery.
type NotificationService struct {
	queue     *jobs.Queue
	publisher broker.Publisher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(publisher broker.Publisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{publisher: publisher, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue(notificationQueueName, s.deliver, jobs.QueueConfig{
		Workers:      cfg.Workers,
		BufferSize:   cfg.BufferSize,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		OnDeadLetter: s.deadLetter,
		Logger:       logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains buffered notifications and stops the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. An error means it will never be delivered.
func (s *NotificationService) Notify(ctx context.Context, notification models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      notification.ID,
		Type:    string(notification.Type),
		Payload: notification,
	})
	if err != nil {
		s.metrics.RecordNotification(string(notification.Type), "rejected")
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "notification queue unavailable")
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	if err := s.publisher.Publish(ctx, broker.Message{
		Type: string(notification.Type),
		Key:  notification.ID,
		Body: notification,
	}); err != nil {
		return err
	}
	s.metrics.RecordNotification(string(notification.Type), "published")
	return nil
}

func (s *NotificationService) deadLetter(job jobs.Job, err error) {
	s.metrics.RecordNotification(job.Type, "dead_letter")
	s.logger.Error("notification dropped",
		zap.String("notification_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)
}

// dispatchNotifications hands every notification to n and returns how many were refused.
func dispatchNotifications(ctx context.Context, n notifier, notes []models.Notification, base *zap.Logger) int {
	failures := 0
	for _, note := range notes {
		if err := n.Notify(ctx, note); err != nil {
			failures++
			logger.FromContext(ctx, base).Warn("notification not dispatched",
				zap.String("type", string(note.Type)),
				zap.String("client_id", note.ClientID),
				zap.String("session_id", note.SessionID),
				zap.Error(err),
			)
		}
	}
	return failures
}
