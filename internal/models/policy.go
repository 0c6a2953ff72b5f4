package models

import "time"

// Policy keys read by the core. Values are owned by center administration.
const (
	PolicyMakeupLookbackWeeks      = "makeup.lookback_weeks"
	PolicyMakeupDeadlineWeeks      = "makeup.deadline_weeks"
	PolicyTransferMaxPerSubject    = "transfer.max_per_subject"
	PolicyAbsenceLeadTimeDays      = "absence.lead_time_days"
	PolicyMinReasonLength          = "request.min_reason_length"
	PolicyMinRejectNoteLength      = "request.min_reject_note_length"
	PolicyRequestExpiryDays        = "request.pending_expiry_days"
	PolicyTeacherRequestExpiryDays = "teacher_request.pending_expiry_days"
	PolicyMinOverrideReasonLength  = "enrollment.min_override_reason_length"
	PolicySessionReminderHours     = "session.reminder_hours"
	PolicySessionEscalationHours   = "session.escalation_hours"
)

// Policy is one configured key/value pair.
type Policy struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Policies is a typed snapshot of every policy value the core consumes.
type Policies struct {
	MakeupLookbackWeeks      int   `json:"makeupLookbackWeeks"`
	MakeupDeadlineWeeks      int   `json:"makeupDeadlineWeeks"`
	TransferMaxPerSubject    int   `json:"transferMaxPerSubject"`
	AbsenceLeadTimeDays      int   `json:"absenceLeadTimeDays"`
	MinReasonLength          int   `json:"minReasonLength"`
	MinRejectNoteLength      int   `json:"minRejectNoteLength"`
	RequestExpiryDays        int   `json:"requestExpiryDays"`
	TeacherRequestExpiryDays int   `json:"teacherRequestExpiryDays"`
	MinOverrideReasonLength  int   `json:"minOverrideReasonLength"`
	ReminderHours            []int `json:"reminderHours"`
	EscalationHours          int   `json:"escalationHours"`
}
