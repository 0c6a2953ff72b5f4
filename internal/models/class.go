package models

import "time"

// ClassModality describes how a class is delivered.
type ClassModality string

const (
	ModalityOnline  ClassModality = "ONLINE"
	ModalityOffline ClassModality = "OFFLINE"
	ModalityHybrid  ClassModality = "HYBRID"
)

// ClassStatus is the lifecycle of a class offering.
type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "SCHEDULED"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// Class is a concrete offering of a subject at a branch.
type Class struct {
	ID          string        `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	Name        string        `db:"name" json:"name"`
	SubjectID   string        `db:"subject_id" json:"subjectId"`
	BranchID    string        `db:"branch_id" json:"branchId"`
	Modality    ClassModality `db:"modality" json:"modality"`
	MaxCapacity int           `db:"max_capacity" json:"maxCapacity"`
	Status      ClassStatus   `db:"status" json:"status"`
	StartDate   time.Time     `db:"start_date" json:"startDate"`
}

// ClassDetail adds live enrollment counts to a class.
type ClassDetail struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolledCount"`
}

// HasSeat reports whether the class accepts one more student without an override.
func (c ClassDetail) HasSeat() bool {
	return c.EnrolledCount < c.MaxCapacity
}

// AcceptsTransfers reports whether students may still move into the class.
func (c Class) AcceptsTransfers() bool {
	return c.Status == ClassStatusScheduled || c.Status == ClassStatusOngoing
}
