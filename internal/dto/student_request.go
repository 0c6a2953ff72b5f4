package dto

import (
	"time"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// CreateStudentRequest is submitted by a student for themselves.
type CreateStudentRequest struct {
	RequestType     models.RequestType `json:"requestType" validate:"required,oneof=ABSENCE MAKEUP TRANSFER"`
	CurrentClassID  string             `json:"currentClassId"`
	TargetSessionID string             `json:"targetSessionId"`
	MakeupSessionID string             `json:"makeupSessionId"`
	TargetClassID   string             `json:"targetClassId"`
	EffectiveDate   *Date              `json:"effectiveDate"`
	Reason          string             `json:"reason" validate:"required"`
}

// OnBehalfRequest is submitted by staff and resolves to APPROVED immediately.
type OnBehalfRequest struct {
	CreateStudentRequest
	StudentID        string `json:"studentId" validate:"required"`
	CapacityOverride bool   `json:"capacityOverride"`
	OverrideReason   string `json:"overrideReason"`
	Note             string `json:"note"`
}

// DecideRequest carries the decider's note and an optional capacity override.
type DecideRequest struct {
	Note             string `json:"note"`
	CapacityOverride bool   `json:"capacityOverride"`
	OverrideReason   string `json:"overrideReason"`
}

// StudentRequestQuery mirrors the supported listing filters.
type StudentRequestQuery struct {
	Status    []models.RequestStatus `form:"status"`
	Type      models.RequestType     `form:"type"`
	StudentID string                 `form:"studentId"`
	ClassID   string                 `form:"classId"`
	Limit     int                    `form:"limit"`
	Offset    int                    `form:"offset"`
}

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// UnmarshalJSON parses a quoted YYYY-MM-DD value.
func (d *Date) UnmarshalJSON(raw []byte) error {
	s := string(raw)
	if s == "null" || s == `""` {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(`"`+DateLayout+`"`, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}
