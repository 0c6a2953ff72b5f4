package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

func candidate(id, branch string, modality models.ClassModality, date time.Time, start, end string, capacity, enrolled int) models.SessionDetail {
	return models.SessionDetail{
		Session:       models.Session{ID: id, ClassID: "class-" + id, Date: date, StartTime: start, EndTime: end, Status: models.SessionStatusPlanned},
		ClassCode:     "C-" + id,
		BranchID:      branch,
		Modality:      modality,
		MaxCapacity:   capacity,
		EnrolledCount: enrolled,
	}
}

func TestProximityScoreIsBounded(t *testing.T) {
	assert.Equal(t, 25, proximityScore(0))
	assert.Equal(t, 25, proximityScore(1))
	assert.Equal(t, 20, proximityScore(10))
	assert.Equal(t, 5, proximityScore(40))
	assert.Equal(t, 5, proximityScore(400))
}

func TestRankMakeupCandidates(t *testing.T) {
	ref := makeupReference{
		BranchID:   "br-1",
		Modality:   models.ModalityOffline,
		MissedDate: day(2024, 3, 4),
		Deadline:   day(2024, 4, 1),
	}
	candidates := []models.SessionDetail{
		candidate("c4", "br-2", models.ModalityOnline, day(2024, 4, 20), "18:00", "19:30", 10, 10),
		candidate("c3", "br-1", models.ModalityOnline, day(2024, 3, 5), "18:00", "19:30", 10, 10),
		candidate("c5", "br-1", models.ModalityOffline, day(2024, 3, 12), "18:00", "19:30", 10, 3),
		candidate("c2", "br-2", models.ModalityOffline, day(2024, 3, 6), "18:00", "19:30", 10, 3),
		candidate("c1", "br-1", models.ModalityOffline, day(2024, 3, 12), "09:00", "10:30", 10, 3),
	}
	committed := []models.CommittedSession{
		{Session: models.Session{ID: "own-1", Date: day(2024, 3, 12), StartTime: "18:30", EndTime: "20:00"}},
	}

	options := rankMakeupCandidates(ref, candidates, committed)
	require.Len(t, options, 5)

	ids := make([]string, 0, len(options))
	for _, o := range options {
		ids = append(ids, o.SessionID)
	}
	assert.Equal(t, []string{"c1", "c5", "c2", "c3", "c4"}, ids)

	best := options[0]
	assert.Equal(t, 96, best.TotalScore)
	assert.Equal(t, 21, best.DateProximityScore)
	assert.Equal(t, dto.MakeupPriorityBest, best.Priority)
	assert.Empty(t, best.Warnings)
	assert.Equal(t, 7, best.AvailableSeats)

	conflicting := options[1]
	assert.Equal(t, 96, conflicting.TotalScore)
	assert.True(t, conflicting.Conflict)
	assert.Equal(t, dto.MakeupPriorityGood, conflicting.Priority)
	assert.Equal(t, []string{dto.WarningScheduleConflict}, conflicting.Warnings)

	assert.Equal(t, 69, options[2].TotalScore)
	assert.Equal(t, dto.MakeupPriorityGood, options[2].Priority)

	full := options[3]
	assert.Equal(t, 55, full.TotalScore)
	assert.False(t, full.CapacityOK)
	assert.Equal(t, dto.MakeupPriorityGood, full.Priority)
	assert.Equal(t, []string{dto.WarningClassFull}, full.Warnings)

	distant := options[4]
	assert.Equal(t, 5, distant.TotalScore)
	assert.Equal(t, dto.MakeupPriorityFallback, distant.Priority)
	assert.Equal(t, []string{dto.WarningClassFull, dto.WarningBeyondDeadline}, distant.Warnings)
	assert.Equal(t, 0, distant.AvailableSeats)
}

func TestRankMakeupCandidatesNeverBestWhenFull(t *testing.T) {
	ref := makeupReference{BranchID: "br-1", Modality: models.ModalityOffline, MissedDate: day(2024, 3, 4), Deadline: day(2024, 4, 1)}
	options := rankMakeupCandidates(ref, []models.SessionDetail{
		candidate("full", "br-1", models.ModalityOffline, day(2024, 3, 4), "18:00", "19:30", 5, 5),
	}, nil)
	require.Len(t, options, 1)
	assert.Equal(t, 75, options[0].TotalScore)
	assert.NotEqual(t, dto.MakeupPriorityBest, options[0].Priority)
}

func TestMakeupServiceOptionsFiltersCandidates(t *testing.T) {
	academy := newFakeAcademy()
	academy.addPoint("pt-1", 1, "Greetings")
	academy.addClass(models.Class{ID: "class-a", Code: "ENG-A", SubjectID: "sub-eng", BranchID: "br-1", Modality: models.ModalityOffline, MaxCapacity: 10})
	academy.addClass(models.Class{ID: "class-b", Code: "ENG-B", SubjectID: "sub-eng", BranchID: "br-1", Modality: models.ModalityOffline, MaxCapacity: 10})
	academy.addClass(models.Class{ID: "class-c", Code: "ENG-C", SubjectID: "sub-eng", BranchID: "br-2", Modality: models.ModalityOnline, MaxCapacity: 10})
	academy.addClass(models.Class{ID: "class-x", Code: "ENG-X", SubjectID: "sub-eng", BranchID: "br-1", Modality: models.ModalityOffline, MaxCapacity: 10, Status: models.ClassStatusCancelled})
	academy.addSession(models.Session{ID: "ses-a1", ClassID: "class-a", SubjectSessionID: "pt-1", Date: day(2024, 3, 4), StartTime: "18:00", EndTime: "19:30", Status: models.SessionStatusDone})
	academy.addSession(models.Session{ID: "ses-b1", ClassID: "class-b", SubjectSessionID: "pt-1", Date: day(2024, 3, 12), StartTime: "18:00", EndTime: "19:30"})
	academy.addSession(models.Session{ID: "ses-c1", ClassID: "class-c", SubjectSessionID: "pt-1", Date: day(2024, 3, 11), StartTime: "19:00", EndTime: "20:30"})
	academy.addSession(models.Session{ID: "ses-early", ClassID: "class-c", SubjectSessionID: "pt-1", Date: day(2024, 3, 11), StartTime: "08:00", EndTime: "09:30"})
	academy.addSession(models.Session{ID: "ses-past", ClassID: "class-b", SubjectSessionID: "pt-1", Date: day(2024, 3, 8), StartTime: "18:00", EndTime: "19:30"})
	academy.addSession(models.Session{ID: "ses-own", ClassID: "class-c", SubjectSessionID: "pt-1", Date: day(2024, 3, 13), StartTime: "18:00", EndTime: "19:30"})
	academy.addSession(models.Session{ID: "ses-closed", ClassID: "class-x", SubjectSessionID: "pt-1", Date: day(2024, 3, 13), StartTime: "18:00", EndTime: "19:30"})
	academy.enroll("enr-1", "stu-1", "class-a")
	academy.setAttendance("stu-1", "ses-a1", models.AttendanceAbsent)
	academy.setAttendance("stu-1", "ses-own", models.AttendancePlanned)

	svc := NewMakeupService(fakeSessions{academy}, fakeEnrollments{academy}, fakeAttendance{academy},
		staticPolicies{policies: testPolicies()}, clock.NewFake(time.Date(2024, 3, 11, 9, 0, 0, 0, centerLoc)), centerLoc, nil)

	result, err := svc.Options(context.Background(), "ses-a1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "ses-a1", result.TargetSessionID)
	assert.Equal(t, day(2024, 4, 1), result.DeadlineDate)
	require.Len(t, result.Options, 2)
	assert.Equal(t, "ses-b1", result.Options[0].SessionID)
	assert.True(t, result.Options[0].BranchMatch)
	assert.True(t, result.Options[0].ModalityMatch)
	assert.Equal(t, "ses-c1", result.Options[1].SessionID)
	assert.False(t, result.Options[1].BranchMatch)

	_, err = svc.Options(context.Background(), "ses-unknown", "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
