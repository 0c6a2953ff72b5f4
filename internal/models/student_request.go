package models

import (
	"errors"
	"time"
)

// RequestType discriminates the student request variants.
type RequestType string

const (
	RequestTypeAbsence  RequestType = "ABSENCE"
	RequestTypeMakeup   RequestType = "MAKEUP"
	RequestTypeTransfer RequestType = "TRANSFER"
)

// RequestStatus captures workflow states for student requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// StudentRequest is the persisted exception-handling unit. The nullable columns are only
// meaningful through Payload, which checks they match RequestType.
type StudentRequest struct {
	ID              string        `db:"id" json:"id"`
	RequestType     RequestType   `db:"request_type" json:"requestType"`
	Status          RequestStatus `db:"status" json:"status"`
	StudentID       string        `db:"student_id" json:"studentId"`
	CurrentClassID  string        `db:"current_class_id" json:"currentClassId"`
	TargetClassID   *string       `db:"target_class_id" json:"targetClassId,omitempty"`
	TargetSessionID *string       `db:"target_session_id" json:"targetSessionId,omitempty"`
	MakeupSessionID *string       `db:"makeup_session_id" json:"makeupSessionId,omitempty"`
	EffectiveDate   *time.Time    `db:"effective_date" json:"effectiveDate,omitempty"`
	Reason          string        `db:"reason" json:"reason"`
	SubmittedBy     string        `db:"submitted_by" json:"submittedBy"`
	SubmittedAt     time.Time     `db:"submitted_at" json:"submittedAt"`
	DecidedBy       *string       `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt       *time.Time    `db:"decided_at" json:"decidedAt,omitempty"`
	Note            *string       `db:"note" json:"note,omitempty"`
}

// StudentRequestFilter constrains listing queries.
type StudentRequestFilter struct {
	Status    []RequestStatus
	Type      RequestType
	StudentID string
	ClassID   string
	Limit     int
	Offset    int
}

// RequestPayload is the type-specific part of a student request.
type RequestPayload interface {
	Type() RequestType
	validate() error
}

// AbsencePayload excuses the student from one session.
type AbsencePayload struct {
	SessionID string
}

// MakeupPayload links a missed session to a replacement session.
type MakeupPayload struct {
	MissedSessionID string
	MakeupSessionID string
}

// TransferPayload moves the student into another class from an effective date.
// JoinSessionID is resolved by the service to the first target-class session on or after EffectiveDate.
type TransferPayload struct {
	TargetClassID string
	EffectiveDate time.Time
	JoinSessionID string
}

func (AbsencePayload) Type() RequestType  { return RequestTypeAbsence }
func (MakeupPayload) Type() RequestType   { return RequestTypeMakeup }
func (TransferPayload) Type() RequestType { return RequestTypeTransfer }

var (
	errMissingSession       = errors.New("targetSessionId is required")
	errMissingMakeupSession = errors.New("makeupSessionId is required for MAKEUP requests")
	errSameMakeupSession    = errors.New("makeup session must differ from the missed session")
	errMissingTargetClass   = errors.New("targetClassId is required for TRANSFER requests")
	errMissingEffectiveDate = errors.New("effectiveDate is required for TRANSFER requests")
	errUnknownRequestType   = errors.New("unsupported request type")
)

func (p AbsencePayload) validate() error {
	if p.SessionID == "" {
		return errMissingSession
	}
	return nil
}

func (p MakeupPayload) validate() error {
	if p.MissedSessionID == "" {
		return errMissingSession
	}
	if p.MakeupSessionID == "" {
		return errMissingMakeupSession
	}
	if p.MakeupSessionID == p.MissedSessionID {
		return errSameMakeupSession
	}
	return nil
}

func (p TransferPayload) validate() error {
	if p.TargetClassID == "" {
		return errMissingTargetClass
	}
	if p.EffectiveDate.IsZero() {
		return errMissingEffectiveDate
	}
	return nil
}

// NewStudentRequest builds a PENDING request whose foreign keys are derived from payload.
func NewStudentRequest(studentID, currentClassID, reason, submittedBy string, payload RequestPayload, submittedAt time.Time) (*StudentRequest, error) {
	if payload == nil {
		return nil, errUnknownRequestType
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	req := &StudentRequest{
		RequestType:    payload.Type(),
		Status:         RequestStatusPending,
		StudentID:      studentID,
		CurrentClassID: currentClassID,
		Reason:         reason,
		SubmittedBy:    submittedBy,
		SubmittedAt:    submittedAt,
	}
	switch p := payload.(type) {
	case AbsencePayload:
		req.TargetSessionID = strPtr(p.SessionID)
	case MakeupPayload:
		req.TargetSessionID = strPtr(p.MissedSessionID)
		req.MakeupSessionID = strPtr(p.MakeupSessionID)
	case TransferPayload:
		req.TargetClassID = strPtr(p.TargetClassID)
		effective := p.EffectiveDate
		req.EffectiveDate = &effective
		if p.JoinSessionID != "" {
			req.TargetSessionID = strPtr(p.JoinSessionID)
		}
	default:
		return nil, errUnknownRequestType
	}
	return req, nil
}

// Payload reconstructs the typed payload, failing when the columns disagree with the type.
func (r *StudentRequest) Payload() (RequestPayload, error) {
	var payload RequestPayload
	switch r.RequestType {
	case RequestTypeAbsence:
		if r.MakeupSessionID != nil || r.TargetClassID != nil {
			return nil, errors.New("absence request carries makeup or transfer fields")
		}
		payload = AbsencePayload{SessionID: deref(r.TargetSessionID)}
	case RequestTypeMakeup:
		if r.TargetClassID != nil {
			return nil, errors.New("makeup request carries transfer fields")
		}
		payload = MakeupPayload{MissedSessionID: deref(r.TargetSessionID), MakeupSessionID: deref(r.MakeupSessionID)}
	case RequestTypeTransfer:
		if r.MakeupSessionID != nil {
			return nil, errors.New("transfer request carries makeup fields")
		}
		p := TransferPayload{TargetClassID: deref(r.TargetClassID), JoinSessionID: deref(r.TargetSessionID)}
		if r.EffectiveDate != nil {
			p.EffectiveDate = *r.EffectiveDate
		}
		payload = p
	default:
		return nil, errUnknownRequestType
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func strPtr(v string) *string { return &v }

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
