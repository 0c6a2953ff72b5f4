package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

const autoExpiredMarker = "[auto-expired] no decision within %d days"

type studentRequestExpirer interface {
	ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string, at time.Time) ([]models.StudentRequest, error)
}

type teacherRequestExpirer interface {
	ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string) ([]models.TeacherRequest, error)
}

// ExpiryService cancels requests that stayed PENDING past the policy threshold.
type ExpiryService struct {
	students studentRequestExpirer
	teachers teacherRequestExpirer
	tx       txRunner
	policies PolicyReader
	notifier Notifier
	metrics  *MetricsService
	clock    clock.Clock
	logger   *zap.Logger
}

// NewExpiryService constructs the service. teachers may be nil when teacher requests are not tracked.
func NewExpiryService(students studentRequestExpirer, teachers teacherRequestExpirer, tx txRunner, policies PolicyReader, notifier Notifier, metrics *MetricsService, clk clock.Clock, logger *zap.Logger) *ExpiryService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryService{students: students, teachers: teachers, tx: tx, policies: policies, notifier: notifier, metrics: metrics, clock: clk, logger: logger}
}

// ExpireStudentRequests cancels stale student requests. No attendance or enrollment is touched.
func (s *ExpiryService) ExpireStudentRequests(ctx context.Context) (dto.ExpirySummary, error) {
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return dto.ExpirySummary{}, appErrors.Internal(err, "failed to load policies")
	}
	now := s.clock.Now()
	days := policies.RequestExpiryDays
	summary := dto.ExpirySummary{Cutoff: now.Add(-time.Duration(days) * 24 * time.Hour)}
	marker := fmt.Sprintf(autoExpiredMarker, days)

	var expired []models.StudentRequest
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		expired, err = s.students.ExpirePending(ctx, exec, summary.Cutoff, marker, now)
		return err
	})
	if err != nil {
		return dto.ExpirySummary{}, appErrors.Internal(err, "failed to expire student requests")
	}
	summary.Expired = len(expired)

	for _, req := range expired {
		s.metrics.RecordRequestDecision(string(req.RequestType), "EXPIRED")
		if s.notifier != nil {
			s.notifier.Notify(ctx, req.StudentID, models.NotificationRequestExpired, "Request expired",
				fmt.Sprintf("Your %s request submitted on %s received no decision within %d days and was cancelled.",
					titleCase(string(req.RequestType)), req.SubmittedAt.Format(dto.DateLayout), days))
		}
	}
	if summary.Expired > 0 {
		s.logger.Info("student requests expired", zap.Int("count", summary.Expired), zap.Time("cutoff", summary.Cutoff))
	}
	return summary, nil
}

// ExpireTeacherRequests cancels stale teacher requests.
func (s *ExpiryService) ExpireTeacherRequests(ctx context.Context) (dto.ExpirySummary, error) {
	if s.teachers == nil {
		return dto.ExpirySummary{}, nil
	}
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return dto.ExpirySummary{}, appErrors.Internal(err, "failed to load policies")
	}
	now := s.clock.Now()
	days := policies.TeacherRequestExpiryDays
	summary := dto.ExpirySummary{Cutoff: now.Add(-time.Duration(days) * 24 * time.Hour)}
	marker := fmt.Sprintf(autoExpiredMarker, days)

	var expired []models.TeacherRequest
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		expired, err = s.teachers.ExpirePending(ctx, exec, summary.Cutoff, marker)
		return err
	})
	if err != nil {
		return dto.ExpirySummary{}, appErrors.Internal(err, "failed to expire teacher requests")
	}
	summary.Expired = len(expired)
	for _, req := range expired {
		if s.notifier != nil {
			s.notifier.Notify(ctx, req.TeacherID, models.NotificationRequestExpired, "Request expired",
				fmt.Sprintf("Your %s request received no decision within %d days and was cancelled.", titleCase(string(req.RequestType)), days))
		}
	}
	if summary.Expired > 0 {
		s.logger.Info("teacher requests expired", zap.Int("count", summary.Expired), zap.Time("cutoff", summary.Cutoff))
	}
	return summary, nil
}
