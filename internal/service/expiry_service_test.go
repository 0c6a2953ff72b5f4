package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
)

func newExpiryFixture(t *testing.T) (*fakeAcademy, *recordingNotifier, *MetricsService, *ExpiryService) {
	t.Helper()
	academy := newFakeAcademy()
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, centerLoc)

	academy.putRequest(models.StudentRequest{
		ID: "req-stale", RequestType: models.RequestTypeMakeup, Status: models.RequestStatusPending,
		StudentID: "stu-1", SubmittedAt: now.AddDate(0, 0, -8),
	})
	academy.putRequest(models.StudentRequest{
		ID: "req-stale-noted", RequestType: models.RequestTypeAbsence, Status: models.RequestStatusPending,
		StudentID: "stu-2", SubmittedAt: now.AddDate(0, 0, -10), Note: strp("called the front desk"),
	})
	academy.putRequest(models.StudentRequest{
		ID: "req-fresh", RequestType: models.RequestTypeAbsence, Status: models.RequestStatusPending,
		StudentID: "stu-3", SubmittedAt: now.AddDate(0, 0, -6),
	})
	academy.putRequest(models.StudentRequest{
		ID: "req-decided", RequestType: models.RequestTypeTransfer, Status: models.RequestStatusApproved,
		StudentID: "stu-4", SubmittedAt: now.AddDate(0, 0, -30),
	})
	academy.teacherReqs["treq-stale"] = models.TeacherRequest{
		ID: "treq-stale", TeacherID: "t-1", SessionID: "ses-1", RequestType: models.TeacherRequestModalityChange,
		Status: models.RequestStatusPending, SubmittedAt: now.AddDate(0, 0, -4),
	}
	academy.teacherReqs["treq-fresh"] = models.TeacherRequest{
		ID: "treq-fresh", TeacherID: "t-2", SessionID: "ses-2", RequestType: models.TeacherRequestSwap,
		Status: models.RequestStatusPending, SubmittedAt: now.AddDate(0, 0, -2),
	}

	notifier := &recordingNotifier{}
	metrics := NewMetricsService()
	svc := NewExpiryService(fakeRequests{academy}, fakeTeacherRequests{academy}, &fakeTx{academy: academy},
		staticPolicies{policies: testPolicies()}, notifier, metrics, clock.NewFake(now), nil)
	return academy, notifier, metrics, svc
}

func TestExpireStudentRequests(t *testing.T) {
	academy, notifier, metrics, svc := newExpiryFixture(t)

	summary, err := svc.ExpireStudentRequests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Expired)
	assert.True(t, summary.Cutoff.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, centerLoc)))

	stale := academy.request("req-stale")
	assert.Equal(t, models.RequestStatusCancelled, stale.Status)
	require.NotNil(t, stale.Note)
	assert.Equal(t, "[auto-expired] no decision within 7 days", *stale.Note)
	require.NotNil(t, stale.DecidedAt)

	noted := academy.request("req-stale-noted")
	assert.Equal(t, "called the front desk\n[auto-expired] no decision within 7 days", *noted.Note)

	assert.Equal(t, models.RequestStatusPending, academy.request("req-fresh").Status)
	assert.Equal(t, models.RequestStatusApproved, academy.request("req-decided").Status)

	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "stu-1", sent[0].Recipient)
	assert.Equal(t, models.NotificationRequestExpired, sent[0].Kind)
	assert.Contains(t, sent[0].Message, "Makeup request")
	assert.Equal(t, "stu-2", sent[1].Recipient)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestDecisions.WithLabelValues("MAKEUP", "EXPIRED")))

	again, err := svc.ExpireStudentRequests(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Expired)
	assert.Len(t, notifier.all(), 2)
}

func TestExpireTeacherRequests(t *testing.T) {
	academy, notifier, _, svc := newExpiryFixture(t)

	summary, err := svc.ExpireTeacherRequests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Expired)

	stale := academy.teacherReqs["treq-stale"]
	assert.Equal(t, models.RequestStatusCancelled, stale.Status)
	assert.Equal(t, "[auto-expired] no decision within 3 days", *stale.Note)
	assert.Equal(t, models.RequestStatusPending, academy.teacherReqs["treq-fresh"].Status)

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "t-1", sent[0].Recipient)
	assert.Contains(t, sent[0].Message, "Modality change request")
}

func TestExpireTeacherRequestsWithoutStore(t *testing.T) {
	svc := NewExpiryService(nil, nil, nil, staticPolicies{policies: testPolicies()}, nil, nil, nil, nil)

	summary, err := svc.ExpireTeacherRequests(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Expired)
}
