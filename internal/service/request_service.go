package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

type studentRequestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error)
	List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID string, requestType models.RequestType, targetSessionID string) (bool, error)
	CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (int, error)
	HasPendingTransfer(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error)
	UpdateDecision(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateDecisionParams) error
}

type requestSessionStore interface {
	GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	FirstPlannedOnOrAfter(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error)
	LastBefore(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error)
}

type requestClassStore interface {
	GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error)
	LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error)
}

type requestEnrollmentStore interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error)
	LockActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Close(ctx context.Context, exec sqlx.ExtContext, id string, leftSessionID *string, leftAt time.Time) error
}

type requestAttendanceStore interface {
	Get(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error)
	MarkExcused(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, note *string, at time.Time) error
	LinkMakeup(ctx context.Context, exec sqlx.ExtContext, studentID, originalSessionID, makeupSessionID string) error
	SeedClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error)
	DropPlanned(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error)
	ListCommitted(ctx context.Context, studentID string, from, to time.Time) ([]models.CommittedSession, error)
}

// txRunner runs fn inside one database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

// RequestServiceDeps groups the collaborators of RequestService.
type RequestServiceDeps struct {
	Requests    studentRequestStore
	Sessions    requestSessionStore
	Classes     requestClassStore
	Enrollments requestEnrollmentStore
	Attendance  requestAttendanceStore
	Tx          txRunner
	Policies    PolicyReader
	Notifier    Notifier
	Metrics     *MetricsService
	Clock       clock.Clock
	Location    *time.Location
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// RequestService owns the student request lifecycle: submission, decisions and the follow-up
// writes an approval implies.
type RequestService struct {
	requests    studentRequestStore
	sessions    requestSessionStore
	classes     requestClassStore
	enrollments requestEnrollmentStore
	attendance  requestAttendanceStore
	tx          txRunner
	policies    PolicyReader
	notifier    Notifier
	metrics     *MetricsService
	clock       clock.Clock
	loc         *time.Location
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestServiceDeps) *RequestService {
	svc := &RequestService{
		requests:    deps.Requests,
		sessions:    deps.Sessions,
		classes:     deps.Classes,
		enrollments: deps.Enrollments,
		attendance:  deps.Attendance,
		tx:          deps.Tx,
		policies:    deps.Policies,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		loc:         deps.Location,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.validator == nil {
		svc.validator = validator.New()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

type submission struct {
	studentID        string
	submittedBy      string
	onBehalf         bool
	capacityOverride bool
	overrideReason   string
	note             string
}

// Submit creates a PENDING request on behalf of the authenticated student.
func (s *RequestService) Submit(ctx context.Context, studentID string, req dto.CreateStudentRequest) (*models.StudentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.submit(ctx, req, submission{studentID: studentID, submittedBy: studentID})
}

// SubmitOnBehalf lets staff file a request for a student. The request is approved in the same
// transaction and its follow-up writes are applied immediately.
func (s *RequestService) SubmitOnBehalf(ctx context.Context, staffID string, req dto.OnBehalfRequest) (*models.StudentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "staff identity is required")
	}
	return s.submit(ctx, req.CreateStudentRequest, submission{
		studentID:        req.StudentID,
		submittedBy:      staffID,
		onBehalf:         true,
		capacityOverride: req.CapacityOverride,
		overrideReason:   req.OverrideReason,
		note:             req.Note,
	})
}

func (s *RequestService) submit(ctx context.Context, req dto.CreateStudentRequest, sub submission) (*models.StudentRequest, error) {
	if strings.TrimSpace(sub.studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student identity is required")
	}
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	if len([]rune(strings.TrimSpace(req.Reason))) < policies.MinReasonLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reason must be at least %d characters", policies.MinReasonLength))
	}
	if err := checkOverride(sub.capacityOverride, sub.overrideReason, policies); err != nil {
		return nil, err
	}
	payload, err := payloadFromRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var created *models.StudentRequest
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		eval := &submissionCheck{svc: s, exec: exec, sub: sub, policies: policies, now: now, today: models.CalendarDate(now, s.loc)}
		currentClassID, resolved, err := eval.check(ctx, payload, req.CurrentClassID)
		if err != nil {
			return err
		}
		record, err := models.NewStudentRequest(sub.studentID, currentClassID, strings.TrimSpace(req.Reason), sub.submittedBy, resolved, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}

		var tr requestTransition
		if sub.onBehalf {
			in, err := s.approvalInput(ctx, exec, record, sub.submittedBy, sub.note, sub.capacityOverride, sub.overrideReason, now)
			if err != nil {
				return err
			}
			if tr, err = planTransition(record, DecisionApprove, in); err != nil {
				return err
			}
			approved := tr.apply(*record)
			record = &approved
		}
		if err := s.requests.Create(ctx, exec, record); err != nil {
			return appErrors.Internal(err, "failed to create request")
		}
		if sub.onBehalf {
			if err := s.applyCommands(ctx, exec, tr.Commands, now); err != nil {
				return err
			}
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sub.onBehalf {
		s.metrics.RecordRequestDecision(string(created.RequestType), string(created.Status))
		s.notifyDecision(ctx, created)
	}
	s.logger.Info("student request submitted",
		zap.String("request_id", created.ID),
		zap.String("type", string(created.RequestType)),
		zap.String("status", string(created.Status)),
		zap.Bool("on_behalf", sub.onBehalf),
	)
	return created, nil
}

// Approve accepts a PENDING request and applies its follow-up writes atomically.
func (s *RequestService) Approve(ctx context.Context, id, deciderID string, req dto.DecideRequest) (*models.StudentRequest, error) {
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	if err := checkOverride(req.CapacityOverride, req.OverrideReason, policies); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return s.decide(ctx, id, DecisionApprove, func(exec sqlx.ExtContext, current *models.StudentRequest) (transitionInput, error) {
		in, err := s.approvalInput(ctx, exec, current, deciderID, req.Note, req.CapacityOverride, req.OverrideReason, now)
		if err != nil {
			return in, err
		}
		if current.RequestType == models.RequestTypeTransfer && current.Status == models.RequestStatusPending {
			if err := s.recheckTransferQuota(ctx, exec, current, policies); err != nil {
				return in, err
			}
		}
		return in, nil
	})
}

// Reject declines a PENDING request. The note is mandatory.
func (s *RequestService) Reject(ctx context.Context, id, deciderID, note string) (*models.StudentRequest, error) {
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	now := s.clock.Now()
	return s.decide(ctx, id, DecisionReject, func(sqlx.ExtContext, *models.StudentRequest) (transitionInput, error) {
		return transitionInput{ActorID: deciderID, Note: note, Now: now, MinRejectNoteLength: policies.MinRejectNoteLength}, nil
	})
}

// Cancel withdraws a PENDING request. Only the requesting student may cancel.
func (s *RequestService) Cancel(ctx context.Context, id, studentID string) (*models.StudentRequest, error) {
	now := s.clock.Now()
	return s.decide(ctx, id, DecisionCancel, func(sqlx.ExtContext, *models.StudentRequest) (transitionInput, error) {
		return transitionInput{ActorID: studentID, Now: now}, nil
	})
}

// Get returns a single request.
func (s *RequestService) Get(ctx context.Context, id string) (*models.StudentRequest, error) {
	req, err := s.requests.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to load request")
	}
	return req, nil
}

// List returns requests matching the query.
func (s *RequestService) List(ctx context.Context, query dto.StudentRequestQuery) ([]models.StudentRequest, error) {
	filter := models.StudentRequestFilter{
		Status:    query.Status,
		Type:      query.Type,
		StudentID: query.StudentID,
		ClassID:   query.ClassID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list requests")
	}
	return items, nil
}

type inputBuilder func(exec sqlx.ExtContext, current *models.StudentRequest) (transitionInput, error)

// decide loads the request, plans the transition and commits it. The status update is
// conditional on PENDING and runs before any follow-up write, so a concurrent decider that
// loses the race gets ErrInvalidState without side effects.
func (s *RequestService) decide(ctx context.Context, id string, decision Decision, build inputBuilder) (*models.StudentRequest, error) {
	var decided models.StudentRequest
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.requests.GetByID(ctx, exec, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "request not found")
			}
			return appErrors.Internal(err, "failed to load request")
		}
		in, err := build(exec, current)
		if err != nil {
			return err
		}
		tr, err := planTransition(current, decision, in)
		if err != nil {
			return err
		}
		err = s.requests.UpdateDecision(ctx, exec, repository.UpdateDecisionParams{
			ID:        current.ID,
			Status:    tr.To,
			DecidedBy: tr.DecidedBy,
			DecidedAt: tr.DecidedAt,
			Note:      tr.Note,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "request was decided concurrently")
			}
			return appErrors.Internal(err, "failed to update request")
		}
		if err := s.applyCommands(ctx, exec, tr.Commands, in.Now); err != nil {
			return err
		}
		decided = tr.apply(*current)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRequestDecision(string(decided.RequestType), string(decided.Status))
	if decision != DecisionCancel {
		s.notifyDecision(ctx, &decided)
	}
	s.logger.Info("student request decided",
		zap.String("request_id", decided.ID),
		zap.String("type", string(decided.RequestType)),
		zap.String("status", string(decided.Status)),
	)
	return &decided, nil
}

// approvalInput gathers the state an approval needs. For transfers it resolves the enrollment
// being closed and the last session attended in the current class.
func (s *RequestService) approvalInput(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, actorID, note string, override bool, overrideReason string, now time.Time) (transitionInput, error) {
	in := transitionInput{
		ActorID:          actorID,
		Note:             note,
		Now:              now,
		CapacityOverride: override,
		OverrideReason:   overrideReason,
	}
	if req.RequestType != models.RequestTypeTransfer || req.Status != models.RequestStatusPending {
		return in, nil
	}
	if err := s.ensureJoinUpcoming(ctx, exec, req, now); err != nil {
		return in, err
	}
	enrollment, err := s.enrollments.FindActive(ctx, exec, req.StudentID, req.CurrentClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return in, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is no longer enrolled in the current class")
		}
		return in, appErrors.Internal(err, "failed to load enrollment")
	}
	in.CurrentEnrollmentID = enrollment.ID
	if req.EffectiveDate != nil {
		last, err := s.sessions.LastBefore(ctx, exec, req.CurrentClassID, *req.EffectiveDate)
		switch {
		case err == nil:
			in.LeftSessionID = stringPtr(last.ID)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return in, appErrors.Internal(err, "failed to resolve leave session")
		}
	}
	return in, nil
}

// ensureJoinUpcoming refuses transfers whose effective date or join session has already gone by.
// The student resubmits with a new date.
func (s *RequestService) ensureJoinUpcoming(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, now time.Time) error {
	today := models.CalendarDate(now, s.loc)
	if req.EffectiveDate != nil && models.CalendarDate(*req.EffectiveDate, time.UTC).Before(today) {
		return appErrors.Clone(appErrors.ErrInvalidState, "transfer effective date has passed")
	}
	if req.TargetSessionID == nil {
		return nil
	}
	join, err := s.sessions.GetDetail(ctx, exec, *req.TargetSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "transfer join session no longer exists")
		}
		return appErrors.Internal(err, "failed to load join session")
	}
	if join.Status != models.SessionStatusPlanned {
		return appErrors.Clone(appErrors.ErrInvalidState, "transfer join session has already taken place")
	}
	return nil
}

func (s *RequestService) recheckTransferQuota(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, policies models.Policies) error {
	class, err := s.classes.GetDetail(ctx, exec, req.CurrentClassID)
	if err != nil {
		return appErrors.Internal(err, "failed to load current class")
	}
	used, err := s.requests.CountApprovedTransfers(ctx, exec, req.StudentID, class.SubjectID)
	if err != nil {
		return appErrors.Internal(err, "failed to count transfers")
	}
	if used >= policies.TransferMaxPerSubject {
		return appErrors.Violation(appErrors.ReasonTransferQuotaExhausted, "transfer quota for this subject is exhausted")
	}
	return nil
}

func (s *RequestService) applyCommands(ctx context.Context, exec sqlx.ExtContext, commands []RequestCommand, now time.Time) error {
	for _, cmd := range commands {
		if err := s.applyCommand(ctx, exec, cmd, now); err != nil {
			s.logger.Warn("request follow-up failed", zap.String("command", cmd.commandName()), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *RequestService) applyCommand(ctx context.Context, exec sqlx.ExtContext, cmd RequestCommand, now time.Time) error {
	switch c := cmd.(type) {
	case MarkAttendanceExcused:
		if err := s.attendance.MarkExcused(ctx, exec, c.StudentID, c.SessionID, c.Note, now); err != nil {
			return appErrors.Internal(err, "failed to excuse attendance")
		}
	case LinkMakeupAttendance:
		makeup, err := s.sessions.LockDetail(ctx, exec, c.MakeupSessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "makeup session not found")
			}
			return appErrors.Internal(err, "failed to lock makeup session")
		}
		if makeup.Status != models.SessionStatusPlanned {
			return appErrors.Clone(appErrors.ErrInvalidState, "makeup session is no longer planned")
		}
		if !makeup.HasSeat() && !c.CapacityOverride {
			return appErrors.Violation(appErrors.ReasonCapacityExceeded, "makeup session is full")
		}
		if err := s.attendance.LinkMakeup(ctx, exec, c.StudentID, c.OriginalSessionID, c.MakeupSessionID); err != nil {
			return appErrors.Internal(err, "failed to link makeup attendance")
		}
	case CloseEnrollment:
		if err := s.enrollments.Close(ctx, exec, c.EnrollmentID, c.LeftSessionID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is no longer active")
			}
			return appErrors.Internal(err, "failed to close enrollment")
		}
	case DropPlannedAttendance:
		if _, err := s.attendance.DropPlanned(ctx, exec, c.StudentID, c.ClassID, c.From); err != nil {
			return appErrors.Internal(err, "failed to drop planned attendance")
		}
	case CreateEnrollment:
		class, err := s.classes.LockDetail(ctx, exec, c.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "target class not found")
			}
			return appErrors.Internal(err, "failed to lock target class")
		}
		if !class.HasSeat() && !c.CapacityOverride {
			return appErrors.Violation(appErrors.ReasonCapacityExceeded, "target class is full")
		}
		enrollment := &models.Enrollment{
			StudentID:        c.StudentID,
			ClassID:          c.ClassID,
			Status:           models.EnrollmentStatusEnrolled,
			JoinSessionID:    stringPtr(c.JoinSessionID),
			EnrolledAt:       now,
			CapacityOverride: c.CapacityOverride && !class.HasSeat(),
			OverrideReason:   c.OverrideReason,
		}
		if !enrollment.CapacityOverride {
			enrollment.OverrideReason = nil
		}
		if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
			return appErrors.Internal(err, "failed to create enrollment")
		}
	case SeedClassAttendance:
		if _, err := s.attendance.SeedClass(ctx, exec, c.StudentID, c.ClassID, c.From); err != nil {
			return appErrors.Internal(err, "failed to seed attendance")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported follow-up "+cmd.commandName())
	}
	return nil
}

func (s *RequestService) notifyDecision(ctx context.Context, req *models.StudentRequest) {
	if s.notifier == nil {
		return
	}
	verb := strings.ToLower(string(req.Status))
	title := fmt.Sprintf("%s request %s", titleCase(string(req.RequestType)), verb)
	message := fmt.Sprintf("Your %s request submitted on %s was %s.", strings.ToLower(string(req.RequestType)), req.SubmittedAt.In(s.loc).Format(dto.DateLayout), verb)
	if req.Note != nil {
		message += " Note: " + *req.Note
	}
	s.notifier.Notify(ctx, req.StudentID, models.NotificationRequestDecision, title, message)
}

func checkOverride(override bool, reason string, policies models.Policies) error {
	if !override {
		return nil
	}
	if len([]rune(strings.TrimSpace(reason))) < policies.MinOverrideReasonLength {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("capacity override requires a reason of at least %d characters", policies.MinOverrideReasonLength))
	}
	return nil
}

func payloadFromRequest(req dto.CreateStudentRequest) (models.RequestPayload, error) {
	switch req.RequestType {
	case models.RequestTypeAbsence:
		if req.TargetSessionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targetSessionId is required")
		}
		return models.AbsencePayload{SessionID: req.TargetSessionID}, nil
	case models.RequestTypeMakeup:
		p := models.MakeupPayload{MissedSessionID: req.TargetSessionID, MakeupSessionID: req.MakeupSessionID}
		if p.MissedSessionID == "" || p.MakeupSessionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targetSessionId and makeupSessionId are required")
		}
		if p.MissedSessionID == p.MakeupSessionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "makeup session must differ from the missed session")
		}
		return p, nil
	case models.RequestTypeTransfer:
		if req.CurrentClassID == "" || req.TargetClassID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "currentClassId and targetClassId are required")
		}
		if req.EffectiveDate == nil || req.EffectiveDate.IsZero() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate is required")
		}
		return models.TransferPayload{TargetClassID: req.TargetClassID, EffectiveDate: models.CalendarDate(req.EffectiveDate.Time, time.UTC)}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
}

func titleCase(v string) string {
	if v == "" {
		return v
	}
	lower := strings.ReplaceAll(strings.ToLower(v), "_", " ")
	return strings.ToUpper(lower[:1]) + lower[1:]
}
