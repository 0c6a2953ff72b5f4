package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

type transferRequestCounter interface {
	CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (int, error)
	HasPendingTransfer(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error)
}

type transferEnrollmentSource interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type transferClassSource interface {
	ListOpenBySubject(ctx context.Context, subjectID, excludeID string) ([]models.ClassDetail, error)
}

type transferSessionSource interface {
	FirstPlannedOnOrAfter(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error)
	ListCoveredPoints(ctx context.Context, classID string) ([]models.CoveredSyllabusPoint, error)
}

type attendedPointSource interface {
	ListAttendedPoints(ctx context.Context, studentID, classID string) ([]models.AttendedSyllabusPoint, error)
}

// TransferService reports transfer quotas and compares candidate classes.
type TransferService struct {
	requests    transferRequestCounter
	enrollments transferEnrollmentSource
	classes     transferClassSource
	sessions    transferSessionSource
	attendance  attendedPointSource
	policies    PolicyReader
	clock       clock.Clock
	loc         *time.Location
	logger      *zap.Logger
}

// NewTransferService constructs the eligibility engine.
func NewTransferService(requests transferRequestCounter, enrollments transferEnrollmentSource, classes transferClassSource, sessions transferSessionSource, attendance attendedPointSource, policies PolicyReader, clk clock.Clock, loc *time.Location, logger *zap.Logger) *TransferService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		requests:    requests,
		enrollments: enrollments,
		classes:     classes,
		sessions:    sessions,
		attendance:  attendance,
		policies:    policies,
		clock:       clk,
		loc:         loc,
		logger:      logger,
	}
}

// Eligibility returns the quota for each active enrollment, or only classID when given.
func (s *TransferService) Eligibility(ctx context.Context, studentID, classID string) (*dto.TransferEligibility, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}

	result := &dto.TransferEligibility{StudentID: studentID, Classes: make([]dto.TransferQuota, 0, len(enrollments))}
	for _, enrollment := range enrollments {
		if classID != "" && enrollment.ClassID != classID {
			continue
		}
		quota, err := s.quota(ctx, studentID, enrollment, policies.TransferMaxPerSubject)
		if err != nil {
			return nil, err
		}
		result.Classes = append(result.Classes, quota)
	}
	if classID != "" && len(result.Classes) == 0 {
		return nil, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is not enrolled in the class")
	}
	return result, nil
}

// Options lists every open class of the same subject with the differences a transfer implies.
// It never picks one.
func (s *TransferService) Options(ctx context.Context, studentID, currentClassID string) (*dto.TransferOptions, error) {
	if studentID == "" || currentClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId and currentClassId are required")
	}
	current, err := s.enrollments.FindActive(ctx, nil, studentID, currentClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Violation(appErrors.ReasonNotEnrolled, "student is not enrolled in the current class")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	quota, err := s.quota(ctx, studentID, *current, policies.TransferMaxPerSubject)
	if err != nil {
		return nil, err
	}

	today := models.CalendarDate(s.clock.Now(), s.loc)
	currentNext, err := s.nextSession(ctx, currentClassID, today)
	if err != nil {
		return nil, err
	}
	attended, err := s.attendance.ListAttendedPoints(ctx, studentID, currentClassID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attended syllabus points")
	}
	targets, err := s.classes.ListOpenBySubject(ctx, current.SubjectID, currentClassID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list candidate classes")
	}

	options := make([]dto.TransferOption, 0, len(targets))
	for _, target := range targets {
		covered, err := s.sessions.ListCoveredPoints(ctx, target.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load covered syllabus points")
		}
		next, err := s.nextSession(ctx, target.ID, today)
		if err != nil {
			return nil, err
		}
		option := dto.TransferOption{
			ClassID:        target.ID,
			ClassCode:      target.Code,
			BranchID:       target.BranchID,
			Modality:       target.Modality,
			SameBranch:     target.BranchID == current.BranchID,
			SameModality:   target.Modality == current.Modality,
			AvailableSeats: maxInt(target.MaxCapacity-target.EnrolledCount, 0),
			HasSeat:        target.HasSeat(),
			Gap:            contentGap(covered, attended),
		}
		if next != nil {
			option.NextSession = slotOf(next)
			option.SameTimeSlot = currentNext != nil && currentNext.TimeSlotID == next.TimeSlotID
		}
		options = append(options, option)
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Gap.MissedCount != options[j].Gap.MissedCount {
			return options[i].Gap.MissedCount < options[j].Gap.MissedCount
		}
		return options[i].ClassCode < options[j].ClassCode
	})

	result := &dto.TransferOptions{
		StudentID:      studentID,
		CurrentClassID: currentClassID,
		Quota:          quota,
		Options:        options,
	}
	if currentNext != nil {
		result.CurrentNext = slotOf(currentNext)
	}
	return result, nil
}

func (s *TransferService) quota(ctx context.Context, studentID string, enrollment models.EnrollmentDetail, limit int) (dto.TransferQuota, error) {
	used, err := s.requests.CountApprovedTransfers(ctx, nil, studentID, enrollment.SubjectID)
	if err != nil {
		return dto.TransferQuota{}, appErrors.Internal(err, "failed to count transfers")
	}
	pending, err := s.requests.HasPendingTransfer(ctx, nil, studentID, enrollment.ClassID)
	if err != nil {
		return dto.TransferQuota{}, appErrors.Internal(err, "failed to check pending transfers")
	}
	remaining := maxInt(limit-used, 0)
	return dto.TransferQuota{
		EnrollmentID:       enrollment.ID,
		ClassID:            enrollment.ClassID,
		ClassCode:          enrollment.ClassCode,
		SubjectID:          enrollment.SubjectID,
		Used:               used,
		Limit:              limit,
		Remaining:          remaining,
		HasPendingTransfer: pending,
		CanTransfer:        remaining > 0 && !pending,
	}, nil
}

func (s *TransferService) nextSession(ctx context.Context, classID string, from time.Time) (*models.Session, error) {
	next, err := s.sessions.FirstPlannedOnOrAfter(ctx, nil, classID, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load next session")
	}
	return next, nil
}

// contentGap lists the points the target class delivered that the student has not attended.
func contentGap(covered []models.CoveredSyllabusPoint, attended []models.AttendedSyllabusPoint) dto.ContentGap {
	seen := make(map[string]struct{}, len(attended))
	for _, p := range attended {
		seen[p.SubjectSessionID] = struct{}{}
	}
	gap := dto.ContentGap{MissedTopics: []dto.MissedTopic{}}
	for _, p := range covered {
		if _, ok := seen[p.SubjectSessionID]; ok {
			continue
		}
		gap.MissedTopics = append(gap.MissedTopics, dto.MissedTopic{
			SubjectSessionID: p.SubjectSessionID,
			SequenceNo:       p.SequenceNo,
			Topic:            p.Topic,
		})
	}
	sort.SliceStable(gap.MissedTopics, func(i, j int) bool {
		return gap.MissedTopics[i].SequenceNo < gap.MissedTopics[j].SequenceNo
	})
	gap.MissedCount = len(gap.MissedTopics)
	gap.Severity = gapSeverity(gap.MissedCount)
	gap.RecommendedAction = recommendedAction(gap.Severity)
	return gap
}

func gapSeverity(missed int) dto.GapSeverity {
	switch {
	case missed == 0:
		return dto.GapNone
	case missed <= 2:
		return dto.GapMinor
	case missed <= 4:
		return dto.GapModerate
	default:
		return dto.GapMajor
	}
}

func recommendedAction(severity dto.GapSeverity) string {
	switch severity {
	case dto.GapNone:
		return "No remediation needed"
	case dto.GapMinor:
		return "Review materials for missed topics"
	case dto.GapModerate:
		return "Attend makeup sessions for the missed topics"
	default:
		return "Schedule makeup sessions and consult academic staff before transferring"
	}
}

func slotOf(session *models.Session) *dto.ScheduleSlot {
	return &dto.ScheduleSlot{
		SessionID: session.ID,
		Date:      session.Date,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
	}
}
