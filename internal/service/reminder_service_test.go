package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
)

func newReminderFixture(t *testing.T) (*fakeAcademy, *repository.WatermarkRepository, *recordingNotifier, *clock.Fake, *ReminderService) {
	t.Helper()
	academy := newFakeAcademy()
	academy.addClass(models.Class{ID: "class-a", Code: "ENG-A", SubjectID: "sub-eng", MaxCapacity: 10})

	// ends 09:05, five minutes after the first scan
	academy.addSession(models.Session{ID: "r-due", ClassID: "class-a", Date: day(2024, 3, 11), StartTime: "07:35", EndTime: "09:05", TeacherID: strp("t-1")})
	academy.addSession(models.Session{ID: "r-unassigned", ClassID: "class-a", Date: day(2024, 3, 11), StartTime: "07:35", EndTime: "09:05"})
	// ended 08:00 without a note
	academy.addSession(models.Session{ID: "r-note", ClassID: "class-a", Date: day(2024, 3, 11), StartTime: "06:30", EndTime: "08:00", TeacherID: strp("t-2")})
	academy.addSession(models.Session{ID: "r-noted", ClassID: "class-a", Date: day(2024, 3, 11), StartTime: "06:30", EndTime: "07:55", TeacherID: strp("t-2"), TeacherNote: strp("done")})
	// ended 24 hours ago with attendance still open
	academy.addSession(models.Session{ID: "r-late", ClassID: "class-a", Date: day(2024, 3, 10), StartTime: "07:30", EndTime: "09:00", TeacherID: strp("t-3"), Status: models.SessionStatusDone})
	// ended 36 hours ago, attendance complete
	academy.addSession(models.Session{ID: "r-late-clean", ClassID: "class-a", Date: day(2024, 3, 9), StartTime: "19:30", EndTime: "20:55", TeacherID: strp("t-3"), Status: models.SessionStatusDone})

	academy.setAttendance("stu-1", "r-due", models.AttendancePlanned)
	academy.setAttendance("stu-2", "r-due", models.AttendancePlanned)
	academy.setAttendance("stu-1", "r-unassigned", models.AttendancePlanned)
	academy.setAttendance("stu-1", "r-late", models.AttendancePlanned)
	academy.setAttendance("stu-1", "r-late-clean", models.AttendancePresent)

	watermarks := repository.NewWatermarkRepository(nil, "")
	notifier := &recordingNotifier{}
	clk := clock.NewFake(time.Date(2024, 3, 11, 9, 0, 0, 0, centerLoc))
	svc := NewReminderService(fakeSessions{academy}, watermarks, staticPolicies{policies: testPolicies()}, notifier, clk, centerLoc, nil)
	return academy, watermarks, notifier, clk, svc
}

func TestReminderRunSendsEachThresholdOnce(t *testing.T) {
	_, watermarks, notifier, clk, svc := newReminderFixture(t)
	ctx := context.Background()

	summary, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.WindowStart.Equal(clk.Now().Add(-15*time.Minute)))
	assert.Equal(t, 1, summary.AttendanceDue)
	assert.Equal(t, 1, summary.NoteMissing)
	assert.Equal(t, 1, summary.AttendanceLate)

	sent := notifier.all()
	require.Len(t, sent, 3)
	byRecipient := make(map[string]sentNotification)
	for _, n := range sent {
		byRecipient[n.Recipient] = n
	}
	assert.Equal(t, models.NotificationAttendanceReminder, byRecipient["t-1"].Kind)
	assert.Contains(t, byRecipient["t-1"].Message, "2 student(s)")
	assert.Equal(t, models.NotificationNoteReminder, byRecipient["t-2"].Kind)
	assert.Equal(t, models.NotificationAttendanceReminder, byRecipient["t-3"].Kind)
	assert.Contains(t, byRecipient["t-3"].Message, "24 hours")

	mark, ok, err := watermarks.Get(ctx, reminderWatermark)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mark.Equal(clk.Now()))

	again, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.AttendanceDue+again.NoteMissing+again.AttendanceLate)

	clk.Set(clk.Now().Add(5 * time.Minute))
	later, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, later.AttendanceDue+later.NoteMissing+later.AttendanceLate)
	assert.Len(t, notifier.all(), 3)
}

func TestReminderRunCapsLookback(t *testing.T) {
	_, watermarks, _, clk, svc := newReminderFixture(t)
	ctx := context.Background()
	require.NoError(t, watermarks.Set(ctx, reminderWatermark, clk.Now().AddDate(0, 0, -10)))

	summary, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.WindowStart.Equal(clk.Now().Add(-48*time.Hour)))
	// the wide window also catches the 36 hour threshold, which has nothing pending
	assert.Equal(t, 1, summary.AttendanceLate)
}

func TestReminderThresholdsSkipInvalidHours(t *testing.T) {
	policies := testPolicies()
	policies.ReminderHours = []int{0, 12, -1}

	thresholds := reminderThresholds(policies)
	require.Len(t, thresholds, 3)
	assert.Equal(t, reminderAttendanceDue, thresholds[0].Kind)
	assert.Equal(t, -10*time.Minute, thresholds[0].Offset)
	assert.Equal(t, reminderNoteMissing, thresholds[1].Kind)
	assert.Equal(t, reminderAttendanceLate, thresholds[2].Kind)
	assert.Equal(t, 12*time.Hour, thresholds[2].Offset)
}
