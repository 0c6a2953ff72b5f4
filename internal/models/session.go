package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus captures the lifecycle of a scheduled class meeting.
type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "PLANNED"
	SessionStatusDone      SessionStatus = "DONE"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Session is one scheduled class meeting on a date and time slot.
type Session struct {
	ID               string        `db:"id" json:"id"`
	ClassID          string        `db:"class_id" json:"classId"`
	SubjectSessionID string        `db:"subject_session_id" json:"subjectSessionId"`
	Date             time.Time     `db:"date" json:"date"`
	TimeSlotID       string        `db:"time_slot_id" json:"timeSlotId"`
	StartTime        string        `db:"start_time" json:"startTime"`
	EndTime          string        `db:"end_time" json:"endTime"`
	Status           SessionStatus `db:"status" json:"status"`
	TeacherID        *string       `db:"teacher_id" json:"teacherId,omitempty"`
	TeacherNote      *string       `db:"teacher_note" json:"teacherNote,omitempty"`
	ResourceID       *string       `db:"resource_id" json:"resourceId,omitempty"`
}

// SessionDetail joins the class and syllabus context needed for matching.
type SessionDetail struct {
	Session
	ClassCode     string        `db:"class_code" json:"classCode"`
	BranchID      string        `db:"branch_id" json:"branchId"`
	Modality      ClassModality `db:"modality" json:"modality"`
	MaxCapacity   int           `db:"max_capacity" json:"maxCapacity"`
	EnrolledCount int           `db:"enrolled_count" json:"enrolledCount"`
	SubjectID     string        `db:"subject_id" json:"subjectId"`
	SequenceNo    int           `db:"sequence_no" json:"sequenceNo"`
	Topic         string        `db:"topic" json:"topic"`
}

// HasTeacherNote reports whether the teacher left a non-blank note.
func (s Session) HasTeacherNote() bool {
	return s.TeacherNote != nil && strings.TrimSpace(*s.TeacherNote) != ""
}

// StartsAt combines the calendar date with the slot start in loc.
func (s Session) StartsAt(loc *time.Location) time.Time {
	return combine(s.Date, s.StartTime, loc)
}

// EndsAt combines the calendar date with the slot end in loc.
func (s Session) EndsAt(loc *time.Location) time.Time {
	return combine(s.Date, s.EndTime, loc)
}

// Overlaps reports whether both sessions share a date and their time ranges intersect.
func (s Session) Overlaps(other Session) bool {
	if !SameDate(s.Date, other.Date) {
		return false
	}
	aStart, aEnd := clockMinutes(s.StartTime), clockMinutes(s.EndTime)
	bStart, bEnd := clockMinutes(other.StartTime), clockMinutes(other.EndTime)
	return aStart < bEnd && bStart < aEnd
}

// HasSeat reports whether the session's class has at least one open seat.
func (d SessionDetail) HasSeat() bool {
	return d.EnrolledCount < d.MaxCapacity
}

// CalendarDate truncates t to its calendar date in loc, expressed as midnight UTC so it
// compares cleanly with DATE columns.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// SameDate compares calendar dates ignoring time of day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func combine(date time.Time, clock string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	minutes := clockMinutes(clock)
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

// clockMinutes parses "HH:MM" or "HH:MM:SS" into minutes after midnight.
func clockMinutes(raw string) int {
	var h, m, sec int
	raw = strings.TrimSpace(raw)
	if _, err := fmt.Sscanf(raw, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
			return 0
		}
	}
	return h*60 + m
}
