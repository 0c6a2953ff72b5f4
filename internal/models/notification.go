package models

import "time"

// NotificationType labels notifications for client-side grouping.
type NotificationType string

const (
	NotificationRequestDecision    NotificationType = "REQUEST_DECISION"
	NotificationRequestExpired     NotificationType = "REQUEST_EXPIRED"
	NotificationAttendanceReminder NotificationType = "ATTENDANCE_REMINDER"
	NotificationNoteReminder       NotificationType = "TEACHER_NOTE_REMINDER"
	NotificationSessionEscalated   NotificationType = "SESSION_ESCALATED"
)

// Notification is an in-app message delivered to a user.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipientId"`
	Type        NotificationType `db:"type" json:"type"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}
