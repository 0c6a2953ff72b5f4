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
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

// Scoring weights for makeup candidates.
const (
	makeupBranchWeight   = 30
	makeupModalityWeight = 20
	makeupCapacityWeight = 25
	makeupProximityMax   = 25
	makeupProximityMin   = 5

	makeupBestThreshold = 80
	makeupGoodThreshold = 50
)

type makeupSessionSource interface {
	GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	ListMakeupCandidates(ctx context.Context, q repository.MakeupCandidateQuery) ([]models.SessionDetail, error)
}

type enrollmentFinder interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error)
}

type committedSessionSource interface {
	ListCommitted(ctx context.Context, studentID string, from, to time.Time) ([]models.CommittedSession, error)
}

// MakeupService proposes replacement sessions for a missed session.
type MakeupService struct {
	sessions    makeupSessionSource
	enrollments enrollmentFinder
	attendance  committedSessionSource
	policies    PolicyReader
	clock       clock.Clock
	loc         *time.Location
	logger      *zap.Logger
}

// NewMakeupService constructs the ranker.
func NewMakeupService(sessions makeupSessionSource, enrollments enrollmentFinder, attendance committedSessionSource, policies PolicyReader, clk clock.Clock, loc *time.Location, logger *zap.Logger) *MakeupService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MakeupService{sessions: sessions, enrollments: enrollments, attendance: attendance, policies: policies, clock: clk, loc: loc, logger: logger}
}

// makeupReference is what candidates are compared against.
type makeupReference struct {
	BranchID   string
	Modality   models.ClassModality
	MissedDate time.Time
	Deadline   time.Time
}

// Options ranks every upcoming session that teaches the missed syllabus point.
func (s *MakeupService) Options(ctx context.Context, sessionID, studentID string) (*dto.MakeupOptions, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	missed, err := s.sessions.GetDetail(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	policies, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}

	ref := makeupReference{
		BranchID:   missed.BranchID,
		Modality:   missed.Modality,
		MissedDate: missed.Date,
		Deadline:   missed.Date.AddDate(0, 0, 7*policies.MakeupDeadlineWeeks),
	}
	enrollment, err := s.enrollments.FindActive(ctx, nil, studentID, missed.ClassID)
	switch {
	case err == nil:
		ref.BranchID = enrollment.BranchID
		ref.Modality = enrollment.Modality
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}

	now := s.clock.Now()
	from := models.CalendarDate(now, s.loc)
	if missed.Date.After(from) {
		from = missed.Date
	}
	candidates, err := s.sessions.ListMakeupCandidates(ctx, repository.MakeupCandidateQuery{
		SubjectSessionID: missed.SubjectSessionID,
		ExcludeSessionID: missed.ID,
		StudentID:        studentID,
		FromDate:         from,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list makeup candidates")
	}
	upcoming := candidates[:0]
	for _, c := range candidates {
		if c.StartsAt(s.loc).After(now) && !c.Date.Before(missed.Date) {
			upcoming = append(upcoming, c)
		}
	}

	var committed []models.CommittedSession
	if len(upcoming) > 0 {
		first, last := upcoming[0].Date, upcoming[0].Date
		for _, c := range upcoming[1:] {
			if c.Date.Before(first) {
				first = c.Date
			}
			if c.Date.After(last) {
				last = c.Date
			}
		}
		if committed, err = s.attendance.ListCommitted(ctx, studentID, first, last); err != nil {
			return nil, appErrors.Internal(err, "failed to load student schedule")
		}
	}

	return &dto.MakeupOptions{
		TargetSessionID: missed.ID,
		StudentID:       studentID,
		MissedDate:      missed.Date,
		DeadlineDate:    ref.Deadline,
		Options:         rankMakeupCandidates(ref, upcoming, committed),
	}, nil
}

// rankMakeupCandidates scores and orders candidates. Full or conflicting candidates stay in the
// list with warnings.
func rankMakeupCandidates(ref makeupReference, candidates []models.SessionDetail, committed []models.CommittedSession) []dto.MakeupOption {
	options := make([]dto.MakeupOption, 0, len(candidates))
	for _, c := range candidates {
		gap := models.DaysBetween(ref.MissedDate, c.Date)
		opt := dto.MakeupOption{
			SessionID:          c.ID,
			ClassID:            c.ClassID,
			ClassCode:          c.ClassCode,
			BranchID:           c.BranchID,
			Modality:           c.Modality,
			Date:               c.Date,
			StartTime:          c.StartTime,
			EndTime:            c.EndTime,
			AvailableSeats:     maxInt(c.MaxCapacity-c.EnrolledCount, 0),
			GapDays:            gap,
			BranchMatch:        c.BranchID == ref.BranchID,
			ModalityMatch:      c.Modality == ref.Modality,
			CapacityOK:         c.HasSeat(),
			DateProximityScore: proximityScore(gap),
			Warnings:           []string{},
		}
		for _, other := range committed {
			if other.ID != c.ID && other.Overlaps(c.Session) {
				opt.Conflict = true
				break
			}
		}

		if opt.BranchMatch {
			opt.TotalScore += makeupBranchWeight
		}
		if opt.ModalityMatch {
			opt.TotalScore += makeupModalityWeight
		}
		if opt.CapacityOK {
			opt.TotalScore += makeupCapacityWeight
		}
		opt.TotalScore += opt.DateProximityScore

		if !opt.CapacityOK {
			opt.Warnings = append(opt.Warnings, dto.WarningClassFull)
		}
		if opt.Conflict {
			opt.Warnings = append(opt.Warnings, dto.WarningScheduleConflict)
		}
		if c.Date.After(ref.Deadline) {
			opt.Warnings = append(opt.Warnings, dto.WarningBeyondDeadline)
		}
		opt.Priority = makeupPriority(opt)
		options = append(options, opt)
	}

	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.SessionID < b.SessionID
	})
	return options
}

// proximityScore decreases by one point every two days of gap, bounded to [5, 25].
func proximityScore(gapDays int) int {
	score := makeupProximityMax - gapDays/2
	if score > makeupProximityMax {
		return makeupProximityMax
	}
	if score < makeupProximityMin {
		return makeupProximityMin
	}
	return score
}

func makeupPriority(opt dto.MakeupOption) dto.MakeupPriority {
	switch {
	case opt.TotalScore >= makeupBestThreshold && opt.CapacityOK && !opt.Conflict:
		return dto.MakeupPriorityBest
	case opt.TotalScore >= makeupGoodThreshold:
		return dto.MakeupPriorityGood
	default:
		return dto.MakeupPriorityFallback
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
