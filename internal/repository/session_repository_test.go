package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var sessionDetailRowColumns = []string{"id", "class_id", "subject_session_id", "date", "time_slot_id", "start_time", "end_time",
	"status", "teacher_id", "teacher_note", "resource_id", "class_code", "branch_id", "modality", "max_capacity",
	"subject_id", "sequence_no", "topic", "enrolled_count"}

func TestSessionRepositoryGetDetail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sessionDetailRowColumns).
		AddRow("ses-1", "class-1", "sub-5", date, "slot-1", "18:00", "19:30", "DONE", "t-1", nil, nil,
			"ENG-A1", "branch-1", "OFFLINE", 12, "subj-1", 5, "Past tense", 10)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s")).
		WithArgs("ses-1").
		WillReturnRows(rows)

	detail, err := repo.GetDetail(context.Background(), nil, "ses-1")
	require.NoError(t, err)
	assert.Equal(t, "ENG-A1", detail.ClassCode)
	assert.Equal(t, models.ModalityOffline, detail.Modality)
	assert.Equal(t, 5, detail.SequenceNo)
	assert.True(t, detail.HasSeat())
	assert.False(t, detail.HasTeacherNote())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryGetDetailNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDetail(context.Background(), nil, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepositoryCompleteEndedWithNoteUsesCenterWallClock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2025, 1, 20, 1, 0, 0, 0, time.UTC).In(loc)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sessions s SET status = 'DONE'")).
		WithArgs("2025-01-20 08:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "teacher_id", "date"}).
			AddRow("ses-1", "class-1", "t-1", time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC)))

	completed, err := repo.CompleteEndedWithNote(context.Background(), nil, now)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "ses-1", completed[0].ID)
	require.NotNil(t, completed[0].TeacherID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListMakeupCandidates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sessionDetailRowColumns).
		AddRow("ses-9", "class-2", "sub-5", from, "slot-1", "18:00", "19:30", "PLANNED", nil, nil, nil,
			"ENG-B1", "branch-2", "ONLINE", 10, "subj-1", 5, "Past tense", 10)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.subject_session_id = $1")).
		WithArgs("sub-5", "ses-1", "2025-01-21", "stu-1").
		WillReturnRows(rows)

	candidates, err := repo.ListMakeupCandidates(context.Background(), MakeupCandidateQuery{
		SubjectSessionID: "sub-5",
		ExcludeSessionID: "ses-1",
		StudentID:        "stu-1",
		FromDate:         from,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].HasSeat())
	require.NoError(t, mock.ExpectationsWereMet())
}
