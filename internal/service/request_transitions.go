package service

import (
	"strings"
	"time"

	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

// Decision is an operation that moves a student request out of PENDING.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
	DecisionCancel  Decision = "CANCEL"
)

// RequestCommand is a follow-up write an approval requires. Commands are applied in order inside
// the same transaction as the status change.
type RequestCommand interface {
	commandName() string
}

// MarkAttendanceExcused sets the student's record for a session to EXCUSED.
type MarkAttendanceExcused struct {
	StudentID string
	SessionID string
	Note      *string
}

// LinkMakeupAttendance links the missed record to the makeup session and plans attendance there.
type LinkMakeupAttendance struct {
	StudentID         string
	OriginalSessionID string
	MakeupSessionID   string
	CapacityOverride  bool
}

// CloseEnrollment withdraws the student from the class they are leaving.
type CloseEnrollment struct {
	EnrollmentID  string
	LeftSessionID *string
}

// DropPlannedAttendance removes future PLANNED records in the class being left.
type DropPlannedAttendance struct {
	StudentID string
	ClassID   string
	From      time.Time
}

// CreateEnrollment enrolls the student into the target class.
type CreateEnrollment struct {
	StudentID        string
	ClassID          string
	JoinSessionID    string
	CapacityOverride bool
	OverrideReason   *string
}

// SeedClassAttendance plans attendance for the target class's upcoming sessions.
type SeedClassAttendance struct {
	StudentID string
	ClassID   string
	From      time.Time
}

func (MarkAttendanceExcused) commandName() string { return "mark_attendance_excused" }
func (LinkMakeupAttendance) commandName() string  { return "link_makeup_attendance" }
func (CloseEnrollment) commandName() string       { return "close_enrollment" }
func (DropPlannedAttendance) commandName() string { return "drop_planned_attendance" }
func (CreateEnrollment) commandName() string      { return "create_enrollment" }
func (SeedClassAttendance) commandName() string   { return "seed_class_attendance" }

// transitionInput is the context a decision is evaluated against.
type transitionInput struct {
	ActorID             string
	Note                string
	Now                 time.Time
	MinRejectNoteLength int

	// Approval-only context.
	CapacityOverride    bool
	OverrideReason      string
	CurrentEnrollmentID string
	LeftSessionID       *string
}

// requestTransition is the outcome of planTransition: the new status, decision metadata and the
// commands to apply.
type requestTransition struct {
	From      models.RequestStatus
	To        models.RequestStatus
	DecidedBy *string
	DecidedAt time.Time
	Note      *string
	Commands  []RequestCommand
}

// planTransition evaluates a decision without touching storage.
func planTransition(req *models.StudentRequest, decision Decision, in transitionInput) (requestTransition, error) {
	if req == nil {
		return requestTransition{}, appErrors.ErrNotFound
	}
	if req.Status != models.RequestStatusPending {
		return requestTransition{}, appErrors.Clone(appErrors.ErrInvalidState, "request is already "+strings.ToLower(string(req.Status)))
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return requestTransition{}, appErrors.Clone(appErrors.ErrValidation, "decider identity is required")
	}

	tr := requestTransition{
		From:      req.Status,
		DecidedBy: stringPtr(in.ActorID),
		DecidedAt: in.Now,
		Note:      optionalString(in.Note),
	}

	switch decision {
	case DecisionApprove:
		payload, err := req.Payload()
		if err != nil {
			return requestTransition{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "request payload is inconsistent")
		}
		commands, err := approvalCommands(req, payload, in)
		if err != nil {
			return requestTransition{}, err
		}
		tr.To = models.RequestStatusApproved
		tr.Commands = commands
	case DecisionReject:
		if len([]rune(strings.TrimSpace(in.Note))) < in.MinRejectNoteLength {
			return requestTransition{}, appErrors.Clone(appErrors.ErrValidation, "rejection note is too short")
		}
		tr.To = models.RequestStatusRejected
	case DecisionCancel:
		if in.ActorID != req.StudentID {
			return requestTransition{}, appErrors.Clone(appErrors.ErrForbidden, "only the requesting student can cancel")
		}
		tr.To = models.RequestStatusCancelled
	default:
		return requestTransition{}, appErrors.Clone(appErrors.ErrValidation, "unsupported decision")
	}
	return tr, nil
}

func approvalCommands(req *models.StudentRequest, payload models.RequestPayload, in transitionInput) ([]RequestCommand, error) {
	switch p := payload.(type) {
	case models.AbsencePayload:
		return []RequestCommand{
			MarkAttendanceExcused{StudentID: req.StudentID, SessionID: p.SessionID, Note: optionalString(req.Reason)},
		}, nil
	case models.MakeupPayload:
		return []RequestCommand{
			LinkMakeupAttendance{
				StudentID:         req.StudentID,
				OriginalSessionID: p.MissedSessionID,
				MakeupSessionID:   p.MakeupSessionID,
				CapacityOverride:  in.CapacityOverride,
			},
		}, nil
	case models.TransferPayload:
		if in.CurrentEnrollmentID == "" {
			return nil, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is no longer enrolled in the current class")
		}
		if p.JoinSessionID == "" {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "transfer has no join session")
		}
		var overrideReason *string
		if in.CapacityOverride {
			overrideReason = optionalString(in.OverrideReason)
		}
		return []RequestCommand{
			CloseEnrollment{EnrollmentID: in.CurrentEnrollmentID, LeftSessionID: in.LeftSessionID},
			DropPlannedAttendance{StudentID: req.StudentID, ClassID: req.CurrentClassID, From: p.EffectiveDate},
			CreateEnrollment{
				StudentID:        req.StudentID,
				ClassID:          p.TargetClassID,
				JoinSessionID:    p.JoinSessionID,
				CapacityOverride: in.CapacityOverride,
				OverrideReason:   overrideReason,
			},
			SeedClassAttendance{StudentID: req.StudentID, ClassID: p.TargetClassID, From: p.EffectiveDate},
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
}

// apply returns a copy of req with the transition's status and decision fields set.
func (tr requestTransition) apply(req models.StudentRequest) models.StudentRequest {
	req.Status = tr.To
	req.DecidedBy = tr.DecidedBy
	decidedAt := tr.DecidedAt
	req.DecidedAt = &decidedAt
	if tr.Note != nil {
		req.Note = tr.Note
	}
	return req
}

func stringPtr(v string) *string { return &v }

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
