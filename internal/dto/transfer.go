package dto

import (
	"time"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// TransferQuota summarises the transfer allowance for one enrollment.
type TransferQuota struct {
	EnrollmentID       string `json:"enrollmentId"`
	ClassID            string `json:"classId"`
	ClassCode          string `json:"classCode"`
	SubjectID          string `json:"subjectId"`
	Used               int    `json:"used"`
	Limit              int    `json:"limit"`
	Remaining          int    `json:"remaining"`
	HasPendingTransfer bool   `json:"hasPendingTransfer"`
	CanTransfer        bool   `json:"canTransfer"`
}

// TransferEligibility lists quotas for every active enrollment of a student.
type TransferEligibility struct {
	StudentID string          `json:"studentId"`
	Classes   []TransferQuota `json:"classes"`
}

// GapSeverity classifies how much content a transfer would skip.
type GapSeverity string

const (
	GapNone     GapSeverity = "NONE"
	GapMinor    GapSeverity = "MINOR"
	GapModerate GapSeverity = "MODERATE"
	GapMajor    GapSeverity = "MAJOR"
)

// MissedTopic is a syllabus point the target class covered that the student has not attended.
type MissedTopic struct {
	SubjectSessionID string `json:"subjectSessionId"`
	SequenceNo       int    `json:"sequenceNo"`
	Topic            string `json:"topic"`
}

// ContentGap describes the syllabus difference between current and target class.
type ContentGap struct {
	Severity          GapSeverity   `json:"severity"`
	MissedCount       int           `json:"missedCount"`
	MissedTopics      []MissedTopic `json:"missedTopics"`
	RecommendedAction string        `json:"recommendedAction"`
}

// ScheduleSlot is the next upcoming meeting of a class.
type ScheduleSlot struct {
	SessionID string    `json:"sessionId"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
}

// TransferOption is one candidate class with all computed differences.
type TransferOption struct {
	ClassID        string               `json:"classId"`
	ClassCode      string               `json:"classCode"`
	BranchID       string               `json:"branchId"`
	Modality       models.ClassModality `json:"modality"`
	SameBranch     bool                 `json:"sameBranch"`
	SameModality   bool                 `json:"sameModality"`
	AvailableSeats int                  `json:"availableSeats"`
	HasSeat        bool                 `json:"hasSeat"`
	NextSession    *ScheduleSlot        `json:"nextSession,omitempty"`
	SameTimeSlot   bool                 `json:"sameTimeSlot"`
	Gap            ContentGap           `json:"gap"`
}

// TransferOptions lists every viable target class without choosing one.
type TransferOptions struct {
	StudentID      string           `json:"studentId"`
	CurrentClassID string           `json:"currentClassId"`
	Quota          TransferQuota    `json:"quota"`
	CurrentNext    *ScheduleSlot    `json:"currentNextSession,omitempty"`
	Options        []TransferOption `json:"options"`
}
