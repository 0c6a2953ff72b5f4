package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

// submissionCheck validates a new request against current enrollment, attendance and policy
// state inside the submitting transaction.
type submissionCheck struct {
	svc      *RequestService
	exec     sqlx.ExtContext
	sub      submission
	policies models.Policies
	now      time.Time
	today    time.Time
}

// check returns the class the request is filed against and the payload with server-resolved
// fields filled in.
func (c *submissionCheck) check(ctx context.Context, payload models.RequestPayload, currentClassID string) (string, models.RequestPayload, error) {
	switch p := payload.(type) {
	case models.AbsencePayload:
		session, err := c.checkAbsence(ctx, p)
		if err != nil {
			return "", nil, err
		}
		return session.ClassID, p, nil
	case models.MakeupPayload:
		missed, err := c.checkMakeup(ctx, p)
		if err != nil {
			return "", nil, err
		}
		return missed.ClassID, p, nil
	case models.TransferPayload:
		resolved, err := c.checkTransfer(ctx, p, currentClassID)
		if err != nil {
			return "", nil, err
		}
		return currentClassID, resolved, nil
	default:
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
}

// enrolledSession loads a session the student must be enrolled for and that lies inside the
// lookback window. The enrollment row stays locked until the submitting transaction ends, so
// duplicate checks that follow see every earlier submission for the class.
func (c *submissionCheck) enrolledSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	session, err := c.svc.sessions.GetDetail(ctx, c.exec, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is cancelled")
	}
	if _, err := c.svc.enrollments.LockActive(ctx, c.exec, c.sub.studentID, session.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is not enrolled in the session's class")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	windowStart := c.today.AddDate(0, 0, -7*c.policies.MakeupLookbackWeeks)
	if models.CalendarDate(session.Date, time.UTC).Before(windowStart) {
		return nil, appErrors.Violation(appErrors.ReasonOutsideLookback, fmt.Sprintf("session is older than %d weeks", c.policies.MakeupLookbackWeeks))
	}
	return session, nil
}

func (c *submissionCheck) ensureNoDuplicate(ctx context.Context, requestType models.RequestType, sessionID string) error {
	exists, err := c.svc.requests.ExistsActive(ctx, c.exec, c.sub.studentID, requestType, sessionID)
	if err != nil {
		return appErrors.Internal(err, "failed to check duplicate requests")
	}
	if exists {
		return appErrors.Violation(appErrors.ReasonDuplicateRequest, "an active request already exists for this session")
	}
	return nil
}

func (c *submissionCheck) checkAbsence(ctx context.Context, p models.AbsencePayload) (*models.SessionDetail, error) {
	session, err := c.enrolledSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if !c.sub.onBehalf && !session.Date.Before(c.today) {
		if models.DaysBetween(c.today, session.Date) < c.policies.AbsenceLeadTimeDays {
			return nil, appErrors.Violation(appErrors.ReasonAbsenceLeadTime, fmt.Sprintf("absence must be requested at least %d day(s) ahead", c.policies.AbsenceLeadTimeDays))
		}
	}
	if err := c.ensureNoDuplicate(ctx, models.RequestTypeAbsence, p.SessionID); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *submissionCheck) checkMakeup(ctx context.Context, p models.MakeupPayload) (*models.SessionDetail, error) {
	missed, err := c.enrolledSession(ctx, p.MissedSessionID)
	if err != nil {
		return nil, err
	}
	if missed.Status != models.SessionStatusDone {
		return nil, appErrors.Violation(appErrors.ReasonNotMakeupEligible, "missed session has not taken place")
	}
	record, err := c.svc.attendance.Get(ctx, c.exec, c.sub.studentID, missed.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	if record == nil || (record.AttendanceStatus != models.AttendanceAbsent && record.AttendanceStatus != models.AttendanceExcused) {
		return nil, appErrors.Violation(appErrors.ReasonNotMakeupEligible, "student did not miss this session")
	}
	if err := c.ensureNoDuplicate(ctx, models.RequestTypeMakeup, missed.ID); err != nil {
		return nil, err
	}

	makeup, err := c.svc.sessions.GetDetail(ctx, c.exec, p.MakeupSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "makeup session not found")
		}
		return nil, appErrors.Internal(err, "failed to load makeup session")
	}
	if makeup.Status != models.SessionStatusPlanned || !makeup.StartsAt(c.svc.loc).After(c.now) {
		return nil, appErrors.Violation(appErrors.ReasonNotMakeupEligible, "makeup session is not an upcoming planned session")
	}
	if makeup.SubjectSessionID != missed.SubjectSessionID || makeup.Date.Before(missed.Date) {
		return nil, appErrors.Violation(appErrors.ReasonNotMakeupEligible, "makeup session does not cover the missed syllabus point")
	}
	if models.DaysBetween(missed.Date, makeup.Date) > 7*c.policies.MakeupDeadlineWeeks {
		return nil, appErrors.Violation(appErrors.ReasonMakeupDeadlinePassed, fmt.Sprintf("makeup must happen within %d weeks of the missed session", c.policies.MakeupDeadlineWeeks))
	}
	existing, err := c.svc.attendance.Get(ctx, c.exec, c.sub.studentID, makeup.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	if existing != nil {
		return nil, appErrors.Violation(appErrors.ReasonNotMakeupEligible, "student is already scheduled for the makeup session")
	}
	if !makeup.HasSeat() && !c.sub.capacityOverride {
		return nil, appErrors.Violation(appErrors.ReasonCapacityExceeded, "makeup session is full")
	}
	committed, err := c.svc.attendance.ListCommitted(ctx, c.sub.studentID, makeup.Date, makeup.Date)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load student schedule")
	}
	for _, other := range committed {
		if other.ID != makeup.ID && other.Overlaps(makeup.Session) {
			return nil, appErrors.Violation(appErrors.ReasonSessionConflict, "makeup session overlaps another scheduled session")
		}
	}
	return missed, nil
}

func (c *submissionCheck) checkTransfer(ctx context.Context, p models.TransferPayload, currentClassID string) (models.TransferPayload, error) {
	current, err := c.svc.enrollments.LockActive(ctx, c.exec, c.sub.studentID, currentClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is not enrolled in the current class")
		}
		return p, appErrors.Internal(err, "failed to load enrollment")
	}
	if p.TargetClassID == current.ClassID {
		return p, appErrors.Clone(appErrors.ErrValidation, "target class must differ from the current class")
	}
	target, err := c.svc.classes.GetDetail(ctx, c.exec, p.TargetClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, appErrors.Clone(appErrors.ErrNotFound, "target class not found")
		}
		return p, appErrors.Internal(err, "failed to load target class")
	}
	if target.SubjectID != current.SubjectID {
		return p, appErrors.Violation(appErrors.ReasonSubjectMismatch, "target class teaches a different subject")
	}
	if !target.AcceptsTransfers() {
		return p, appErrors.Clone(appErrors.ErrInvalidState, "target class is not accepting students")
	}
	if p.EffectiveDate.Before(c.today) {
		return p, appErrors.Clone(appErrors.ErrValidation, "effectiveDate cannot be in the past")
	}

	used, err := c.svc.requests.CountApprovedTransfers(ctx, c.exec, c.sub.studentID, current.SubjectID)
	if err != nil {
		return p, appErrors.Internal(err, "failed to count transfers")
	}
	if used >= c.policies.TransferMaxPerSubject {
		return p, appErrors.Violation(appErrors.ReasonTransferQuotaExhausted, "transfer quota for this subject is exhausted")
	}
	pending, err := c.svc.requests.HasPendingTransfer(ctx, c.exec, c.sub.studentID, current.ClassID)
	if err != nil {
		return p, appErrors.Internal(err, "failed to check pending transfers")
	}
	if pending {
		return p, appErrors.Violation(appErrors.ReasonTransferPending, "a transfer request is already pending")
	}
	if !target.HasSeat() && !c.sub.capacityOverride {
		return p, appErrors.Violation(appErrors.ReasonCapacityExceeded, "target class is full")
	}

	join, err := c.svc.sessions.FirstPlannedOnOrAfter(ctx, c.exec, target.ID, p.EffectiveDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, appErrors.Clone(appErrors.ErrPreconditionFailed, "target class has no planned session on or after the effective date")
		}
		return p, appErrors.Internal(err, "failed to resolve join session")
	}
	p.JoinSessionID = join.ID
	return p, nil
}
