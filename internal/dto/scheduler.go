package dto

import "time"

// LifecycleSummary reports what one lifecycle run changed.
type LifecycleSummary struct {
	CompletedWithNote   int `json:"completedWithNote"`
	Escalated           int `json:"escalated"`
	AttendanceDefaulted int `json:"attendanceDefaulted"`
	QAReportsCreated    int `json:"qaReportsCreated"`
	BackfilledReports   int `json:"backfilledReports"`
}

// Transitions returns how many sessions moved to DONE.
func (s LifecycleSummary) Transitions() int {
	return s.CompletedWithNote + s.Escalated
}

// ReminderSummary reports reminders sent over one scan window.
type ReminderSummary struct {
	WindowStart    time.Time `json:"windowStart"`
	WindowEnd      time.Time `json:"windowEnd"`
	AttendanceDue  int       `json:"attendanceDue"`
	AttendanceLate int       `json:"attendanceLate"`
	NoteMissing    int       `json:"noteMissing"`
}

// ExpirySummary reports requests cancelled by an expiry run.
type ExpirySummary struct {
	Cutoff  time.Time `json:"cutoff"`
	Expired int       `json:"expired"`
}

// JobRun describes one execution of a scheduled job.
type JobRun struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Result    interface{}   `json:"result,omitempty"`
}

// JobStatus describes a registered job for the admin API.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"nextRun"`
	LastRun  *JobRun   `json:"lastRun,omitempty"`
}
