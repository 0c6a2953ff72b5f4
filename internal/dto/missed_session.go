package dto

import "time"

// MissedSessionQuery controls the missed-session scan.
type MissedSessionQuery struct {
	LookbackWeeks    *int
	ExcludeRequested bool
}

// MissedSession is one past session the student was absent from.
type MissedSession struct {
	SessionID              string    `json:"sessionId"`
	ClassID                string    `json:"classId"`
	ClassCode              string    `json:"classCode"`
	SubjectSessionID       string    `json:"subjectSessionId"`
	SequenceNo             int       `json:"sequenceNo"`
	Topic                  string    `json:"topic"`
	Date                   time.Time `json:"date"`
	StartTime              string    `json:"startTime"`
	EndTime                string    `json:"endTime"`
	DaysAgo                int       `json:"daysAgo"`
	HasExcusedAbsence      bool      `json:"hasExcusedAbsence"`
	HasActiveMakeupRequest bool      `json:"hasActiveMakeupRequest"`
}
