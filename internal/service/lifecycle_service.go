package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

const (
	qaAutoCompletedContent = "[system] Session completed automatically. No classroom observation was submitted."
	qaMissingNoteContent   = "[system] Session ended without a teacher note and was closed after %d hours."
	qaBackfillContent      = "[system] Placeholder created during catch-up for a completed session without an observation."
)

type lifecycleSessionStore interface {
	CompleteEndedWithNote(ctx context.Context, exec sqlx.ExtContext, now time.Time) ([]models.CompletedSession, error)
	CompleteEndedWithoutNote(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.CompletedSession, error)
}

type attendanceDefaulter interface {
	DefaultPlannedToAbsent(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string, at time.Time) (int, error)
}

type qaPlaceholderWriter interface {
	CreatePlaceholders(ctx context.Context, exec sqlx.ExtContext, params repository.QAPlaceholderParams) ([]string, error)
}

// LifecycleDeps groups the collaborators of LifecycleService.
type LifecycleDeps struct {
	Sessions     lifecycleSessionStore
	Attendance   attendanceDefaulter
	Reports      qaPlaceholderWriter
	Tx           txRunner
	Policies     PolicyReader
	Notifier     Notifier
	Metrics      *MetricsService
	Clock        clock.Clock
	Location     *time.Location
	QAWindowDays int
	Logger       *zap.Logger
}

// LifecycleService advances ended sessions, resolves their attendance and keeps QA coverage.
type LifecycleService struct {
	sessions   lifecycleSessionStore
	attendance attendanceDefaulter
	reports    qaPlaceholderWriter
	tx         txRunner
	policies   PolicyReader
	notifier   Notifier
	metrics    *MetricsService
	clock      clock.Clock
	loc        *time.Location
	qaWindow   int
	logger     *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDeps) *LifecycleService {
	svc := &LifecycleService{
		sessions:   deps.Sessions,
		attendance: deps.Attendance,
		reports:    deps.Reports,
		tx:         deps.Tx,
		policies:   deps.Policies,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		loc:        deps.Location,
		qaWindow:   deps.QAWindowDays,
		logger:     deps.Logger,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.qaWindow <= 0 {
		svc.qaWindow = 7
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// Run performs one lifecycle pass in a single transaction. Every write is conditional on the
// state it changes, so running it twice in a row changes nothing the second time.
func (s *LifecycleService) Run(ctx context.Context) (dto.LifecycleSummary, error) {
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return dto.LifecycleSummary{}, appErrors.Internal(err, "failed to load policies")
	}
	now := s.clock.Now().In(s.loc)
	escalationCutoff := now.Add(-time.Duration(policies.EscalationHours) * time.Hour)

	var (
		summary   dto.LifecycleSummary
		escalated []models.CompletedSession
		autoQA    int
		noteQA    int
	)
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		completed, err := s.sessions.CompleteEndedWithNote(ctx, exec, now)
		if err != nil {
			return err
		}
		summary.CompletedWithNote = len(completed)
		defaulted, err := s.attendance.DefaultPlannedToAbsent(ctx, exec, completedIDs(completed), now)
		if err != nil {
			return err
		}
		summary.AttendanceDefaulted += defaulted

		created, err := s.reports.CreatePlaceholders(ctx, exec, repository.QAPlaceholderParams{
			Since:   models.CalendarDate(now, s.loc).AddDate(0, 0, -s.qaWindow),
			Content: qaAutoCompletedContent,
			At:      now,
		})
		if err != nil {
			return err
		}
		autoQA = len(created)

		if escalated, err = s.sessions.CompleteEndedWithoutNote(ctx, exec, escalationCutoff); err != nil {
			return err
		}
		summary.Escalated = len(escalated)
		if len(escalated) == 0 {
			return nil
		}
		ids := completedIDs(escalated)
		if defaulted, err = s.attendance.DefaultPlannedToAbsent(ctx, exec, ids, now); err != nil {
			return err
		}
		summary.AttendanceDefaulted += defaulted
		created, err = s.reports.CreatePlaceholders(ctx, exec, repository.QAPlaceholderParams{
			SessionIDs: ids,
			Content:    fmt.Sprintf(qaMissingNoteContent, policies.EscalationHours),
			At:         now,
		})
		if err != nil {
			return err
		}
		noteQA = len(created)
		return nil
	})
	if err != nil {
		return dto.LifecycleSummary{}, appErrors.Internal(err, "session lifecycle run failed")
	}

	summary.QAReportsCreated = autoQA + noteQA
	s.metrics.AddSessionTransitions("teacher_note", summary.CompletedWithNote)
	s.metrics.AddSessionTransitions("escalated", summary.Escalated)
	s.metrics.AddAttendanceDefaulted(summary.AttendanceDefaulted)
	s.metrics.AddQAReports(string(models.QAKindAutoCompleted), autoQA)
	s.metrics.AddQAReports(string(models.QAKindMissingNote), noteQA)

	for _, session := range escalated {
		s.notifyEscalation(ctx, session, policies.EscalationHours)
	}
	if summary.Transitions() > 0 || summary.QAReportsCreated > 0 {
		s.logger.Info("session lifecycle applied",
			zap.Int("completed_with_note", summary.CompletedWithNote),
			zap.Int("escalated", summary.Escalated),
			zap.Int("attendance_defaulted", summary.AttendanceDefaulted),
			zap.Int("qa_reports", summary.QAReportsCreated),
		)
	}
	return summary, nil
}

// CatchUp runs a normal pass and then backfills placeholders for every DONE session without a
// report, regardless of age. Used after downtime.
func (s *LifecycleService) CatchUp(ctx context.Context) (dto.LifecycleSummary, error) {
	summary, err := s.Run(ctx)
	if err != nil {
		return summary, err
	}
	now := s.clock.Now().In(s.loc)
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		created, err := s.reports.CreatePlaceholders(ctx, exec, repository.QAPlaceholderParams{
			Content: qaBackfillContent,
			At:      now,
		})
		if err != nil {
			return err
		}
		summary.BackfilledReports = len(created)
		return nil
	})
	if err != nil {
		return summary, appErrors.Internal(err, "qa backfill failed")
	}
	s.metrics.AddQAReports(string(models.QAKindBackfill), summary.BackfilledReports)
	if summary.BackfilledReports > 0 {
		s.logger.Info("qa placeholders backfilled", zap.Int("count", summary.BackfilledReports))
	}
	return summary, nil
}

func (s *LifecycleService) notifyEscalation(ctx context.Context, session models.CompletedSession, hours int) {
	if s.notifier == nil || session.TeacherID == nil {
		return
	}
	message := fmt.Sprintf("The session on %s was closed automatically because no teacher note was recorded within %d hours. Unmarked attendance was set to ABSENT.",
		session.Date.Format(dto.DateLayout), hours)
	s.notifier.Notify(ctx, *session.TeacherID, models.NotificationSessionEscalated, "Session closed without a note", message)
}

func completedIDs(sessions []models.CompletedSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	return ids
}
