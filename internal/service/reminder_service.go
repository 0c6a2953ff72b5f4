package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

const (
	reminderWatermark     = "reminders"
	reminderInitialWindow = 15 * time.Minute
	reminderMaxLookback   = 48 * time.Hour

	attendanceDueLead = 10 * time.Minute
	noteMissingDelay  = time.Hour
)

type reminderSessionSource interface {
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]models.ReminderCandidate, error)
}

type watermarkStore interface {
	Get(ctx context.Context, name string) (time.Time, bool, error)
	Set(ctx context.Context, name string, at time.Time) error
}

type reminderKind int

const (
	reminderAttendanceDue reminderKind = iota
	reminderNoteMissing
	reminderAttendanceLate
)

// reminderThreshold fires once when session end + Offset falls inside the scanned window.
type reminderThreshold struct {
	Kind   reminderKind
	Offset time.Duration
}

// ReminderService sends teacher reminders as sessions cross the configured thresholds.
type ReminderService struct {
	sessions   reminderSessionSource
	watermarks watermarkStore
	policies   PolicyReader
	notifier   Notifier
	clock      clock.Clock
	loc        *time.Location
	logger     *zap.Logger
}

// NewReminderService constructs the service.
func NewReminderService(sessions reminderSessionSource, watermarks watermarkStore, policies PolicyReader, notifier Notifier, clk clock.Clock, loc *time.Location, logger *zap.Logger) *ReminderService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{sessions: sessions, watermarks: watermarks, policies: policies, notifier: notifier, clock: clk, loc: loc, logger: logger}
}

// Run sends the reminders for every threshold crossed since the previous run. The window is
// (watermark, now]; it starts a short way back on the first run and never reaches back further
// than two days.
func (s *ReminderService) Run(ctx context.Context) (dto.ReminderSummary, error) {
	now := s.clock.Now().In(s.loc)
	from, ok, err := s.watermarks.Get(ctx, reminderWatermark)
	if err != nil {
		return dto.ReminderSummary{}, appErrors.Internal(err, "failed to read reminder watermark")
	}
	if !ok {
		from = now.Add(-reminderInitialWindow)
	}
	if floor := now.Add(-reminderMaxLookback); from.Before(floor) {
		from = floor
	}
	from = from.In(s.loc)
	summary := dto.ReminderSummary{WindowStart: from, WindowEnd: now}
	if !from.Before(now) {
		return summary, nil
	}

	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return summary, appErrors.Internal(err, "failed to load policies")
	}
	for _, threshold := range reminderThresholds(policies) {
		candidates, err := s.sessions.ListEndingBetween(ctx, from.Add(-threshold.Offset), now.Add(-threshold.Offset))
		if err != nil {
			return summary, appErrors.Internal(err, "failed to list sessions for reminders")
		}
		for _, candidate := range candidates {
			if s.remind(ctx, threshold, candidate) {
				switch threshold.Kind {
				case reminderAttendanceDue:
					summary.AttendanceDue++
				case reminderNoteMissing:
					summary.NoteMissing++
				case reminderAttendanceLate:
					summary.AttendanceLate++
				}
			}
		}
	}

	if err := s.watermarks.Set(ctx, reminderWatermark, now); err != nil {
		return summary, appErrors.Internal(err, "failed to store reminder watermark")
	}
	if sent := summary.AttendanceDue + summary.AttendanceLate + summary.NoteMissing; sent > 0 {
		s.logger.Info("teacher reminders sent",
			zap.Int("attendance_due", summary.AttendanceDue),
			zap.Int("attendance_late", summary.AttendanceLate),
			zap.Int("note_missing", summary.NoteMissing),
		)
	}
	return summary, nil
}

func reminderThresholds(policies models.Policies) []reminderThreshold {
	thresholds := []reminderThreshold{
		{Kind: reminderAttendanceDue, Offset: -attendanceDueLead},
		{Kind: reminderNoteMissing, Offset: noteMissingDelay},
	}
	for _, hours := range policies.ReminderHours {
		if hours <= 0 {
			continue
		}
		thresholds = append(thresholds, reminderThreshold{Kind: reminderAttendanceLate, Offset: time.Duration(hours) * time.Hour})
	}
	return thresholds
}

// remind notifies the teacher when the candidate still needs attention and reports whether a
// reminder was sent.
func (s *ReminderService) remind(ctx context.Context, threshold reminderThreshold, c models.ReminderCandidate) bool {
	if c.TeacherID == nil || s.notifier == nil {
		return false
	}
	when := fmt.Sprintf("%s %s-%s", c.Date.Format(dto.DateLayout), c.StartTime, c.EndTime)
	switch threshold.Kind {
	case reminderAttendanceDue:
		if c.Status != models.SessionStatusPlanned || c.PendingAttendance == 0 {
			return false
		}
		s.notifier.Notify(ctx, *c.TeacherID, models.NotificationAttendanceReminder, "Attendance due",
			fmt.Sprintf("Class %s (%s) ends in 10 minutes. Please record attendance for %d student(s).", c.ClassCode, when, c.PendingAttendance))
	case reminderNoteMissing:
		if c.Status != models.SessionStatusPlanned || c.HasTeacherNote() {
			return false
		}
		s.notifier.Notify(ctx, *c.TeacherID, models.NotificationNoteReminder, "Teacher note missing",
			fmt.Sprintf("Class %s (%s) has ended. Please add the session note.", c.ClassCode, when))
	case reminderAttendanceLate:
		if c.PendingAttendance == 0 {
			return false
		}
		hours := int(threshold.Offset / time.Hour)
		s.notifier.Notify(ctx, *c.TeacherID, models.NotificationAttendanceReminder, "Attendance overdue",
			fmt.Sprintf("Attendance for class %s (%s) is still open for %d student(s), %d hours after the session ended.", c.ClassCode, when, c.PendingAttendance, hours))
	default:
		return false
	}
	return true
}
