package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

func TestEnrollmentRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "join_session_id", "left_session_id",
		"enrolled_at", "left_at", "capacity_override", "override_reason", "class_code", "subject_id", "branch_id", "modality"}).
		AddRow("enr-1", "stu-1", "class-1", "ENROLLED", nil, nil, time.Now(), nil, false, nil, "ENG-A1", "subj-1", "branch-1", "OFFLINE")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.class_id = $2 AND e.status = 'ENROLLED'")).
		WithArgs("stu-1", "class-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindActive(context.Background(), nil, "stu-1", "class-1")
	require.NoError(t, err)
	require.Equal(t, "subj-1", enrollment.SubjectID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryLockActiveHoldsRowBeforeDuplicateCheck(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	enrollments := NewEnrollmentRepository(db)
	requests := NewStudentRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "join_session_id", "left_session_id",
		"enrolled_at", "left_at", "capacity_override", "override_reason", "class_code", "subject_id", "branch_id", "modality"}).
		AddRow("enr-1", "stu-1", "class-1", "ENROLLED", nil, nil, time.Now(), nil, false, nil, "ENG-A1", "subj-1", "branch-1", "OFFLINE")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("e.status = 'ENROLLED' FOR UPDATE OF e")).
		WithArgs("stu-1", "class-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM student_requests")).
		WithArgs("stu-1", "MAKEUP", "ses-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	enrollment, err := enrollments.LockActive(context.Background(), tx, "stu-1", "class-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	exists, err := requests.ExistsActive(context.Background(), tx, "stu-1", models.RequestTypeMakeup, "ses-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryLockActiveNotEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF e")).
		WithArgs("stu-1", "class-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LockActive(context.Background(), nil, "stu-1", "class-9")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", ClassID: "class-2"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCloseConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	left := "ses-3"
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = 'WITHDRAWN'")).
		WithArgs("ses-3", sqlmock.AnyArg(), "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Close(context.Background(), nil, "enr-1", &left, now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = 'WITHDRAWN'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Close(context.Background(), nil, "enr-1", &left, now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
