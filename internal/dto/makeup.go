package dto

import (
	"time"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// MakeupPriority is the tier derived from a candidate's total score.
type MakeupPriority string

const (
	MakeupPriorityBest     MakeupPriority = "BEST"
	MakeupPriorityGood     MakeupPriority = "GOOD"
	MakeupPriorityFallback MakeupPriority = "FALLBACK"
)

// Warnings attached to makeup candidates.
const (
	WarningClassFull        = "CLASS_FULL"
	WarningScheduleConflict = "SCHEDULE_CONFLICT"
	WarningBeyondDeadline   = "BEYOND_MAKEUP_DEADLINE"
)

// MakeupOption is one scored replacement session.
type MakeupOption struct {
	SessionID          string               `json:"sessionId"`
	ClassID            string               `json:"classId"`
	ClassCode          string               `json:"classCode"`
	BranchID           string               `json:"branchId"`
	Modality           models.ClassModality `json:"modality"`
	Date               time.Time            `json:"date"`
	StartTime          string               `json:"startTime"`
	EndTime            string               `json:"endTime"`
	AvailableSeats     int                  `json:"availableSeats"`
	GapDays            int                  `json:"gapDays"`
	BranchMatch        bool                 `json:"branchMatch"`
	ModalityMatch      bool                 `json:"modalityMatch"`
	CapacityOK         bool                 `json:"capacityOk"`
	DateProximityScore int                  `json:"dateProximityScore"`
	TotalScore         int                  `json:"totalScore"`
	Priority           MakeupPriority       `json:"priority"`
	Conflict           bool                 `json:"conflict"`
	Warnings           []string             `json:"warnings"`
}

// MakeupOptions is the ranked response for one missed session.
type MakeupOptions struct {
	TargetSessionID string         `json:"targetSessionId"`
	StudentID       string         `json:"studentId"`
	MissedDate      time.Time      `json:"missedDate"`
	DeadlineDate    time.Time      `json:"deadlineDate"`
	Options         []MakeupOption `json:"options"`
}
