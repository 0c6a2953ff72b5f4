package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/email"
	"github.com/noah-isme/tc-academic-api/pkg/jobs"
	"github.com/noah-isme/tc-academic-api/pkg/middleware/requestid"
)

// NotificationJobType labels notification jobs on the dispatch queue.
const NotificationJobType = "notification"

// Notifier is the fire-and-forget notification sink used by the decision services.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, kind models.NotificationType, title, message string)
}

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type contactDirectory interface {
	FindContact(ctx context.Context, id string) (*models.UserContact, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService persists in-app notifications and mirrors them to email.
type NotificationService struct {
	store    notificationStore
	contacts contactDirectory
	mailer   email.Sender
	queue    jobQueue
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewNotificationService constructs the service. Without a queue, Notify delivers inline.
func NewNotificationService(store notificationStore, contacts contactDirectory, mailer email.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, contacts: contacts, mailer: mailer, metrics: metrics, logger: logger, now: time.Now}
}

// UseQueue routes deliveries through an asynchronous queue.
func (s *NotificationService) UseQueue(queue jobQueue) {
	s.queue = queue
}

// Notify schedules delivery and never reports failure to the caller.
func (s *NotificationService) Notify(ctx context.Context, recipientID string, kind models.NotificationType, title, message string) {
	if s == nil || strings.TrimSpace(recipientID) == "" {
		return
	}
	notification := models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        kind,
		Title:       title,
		Message:     message,
		CreatedAt:   s.now().UTC(),
	}
	job := jobs.Job{ID: notification.ID, Type: NotificationJobType, Payload: notification}
	if s.queue == nil {
		if err := s.Handle(ctx, job); err != nil {
			s.logger.Warn("notification delivery failed", zap.String("recipient", recipientID),
				zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
		}
		return
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification dropped", zap.String("recipient", recipientID), zap.String("type", string(kind)),
			zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
	}
}

// Handle delivers one queued notification. Email failures are logged and never retried.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.metrics.RecordNotification("invalid")
		return nil
	}
	if err := s.store.Create(ctx, &notification); err != nil {
		s.metrics.RecordNotification("failed")
		return fmt.Errorf("persist notification: %w", err)
	}
	s.metrics.RecordNotification("delivered")

	if s.mailer == nil || s.contacts == nil {
		return nil
	}
	contact, err := s.contacts.FindContact(ctx, notification.RecipientID)
	if err != nil {
		s.logger.Warn("notification contact lookup failed", zap.String("recipient", notification.RecipientID), zap.Error(err))
		return nil
	}
	if contact.Email == nil || strings.TrimSpace(*contact.Email) == "" {
		return nil
	}
	s.mailer.SendAsync(*contact.Email, notification.Title, notification.Message)
	return nil
}

// OnDiscard logs notifications the queue gave up on.
func (s *NotificationService) OnDiscard(job jobs.Job, err error) {
	s.metrics.RecordNotification("dropped")
	s.logger.Warn("notification discarded", zap.String("job_id", job.ID), zap.Error(err))
}
