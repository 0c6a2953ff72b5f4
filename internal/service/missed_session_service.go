package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

type missedSessionSource interface {
	QueryMissed(ctx context.Context, q repository.MissedSessionQuery) (repository.RowCursor, error)
}

// MissedSessionService finds sessions a student was absent from.
type MissedSessionService struct {
	source   missedSessionSource
	policies PolicyReader
	clock    clock.Clock
	loc      *time.Location
	logger   *zap.Logger
}

// NewMissedSessionService constructs the finder.
func NewMissedSessionService(source missedSessionSource, policies PolicyReader, clk clock.Clock, loc *time.Location, logger *zap.Logger) *MissedSessionService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MissedSessionService{source: source, policies: policies, clock: clk, loc: loc, logger: logger}
}

// Find opens a cursor over the student's missed sessions, most recent first. The caller owns
// the cursor and must Close it.
func (s *MissedSessionService) Find(ctx context.Context, studentID string, query dto.MissedSessionQuery) (*MissedSessionCursor, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	weeks := 0
	if query.LookbackWeeks != nil {
		weeks = *query.LookbackWeeks
		if weeks <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lookbackWeeks must be positive")
		}
	} else {
		policies, err := s.policies.Snapshot(ctx)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load policies")
		}
		weeks = policies.MakeupLookbackWeeks
	}

	today := models.CalendarDate(s.clock.Now(), s.loc)
	rows, err := s.source.QueryMissed(ctx, repository.MissedSessionQuery{
		StudentID:        studentID,
		Since:            today.AddDate(0, 0, -7*weeks),
		Today:            today,
		ExcludeRequested: query.ExcludeRequested,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to query missed sessions")
	}
	return &MissedSessionCursor{rows: rows, today: today}, nil
}

// MissedSessionCursor is a single-pass iterator over missed sessions.
type MissedSessionCursor struct {
	rows    repository.RowCursor
	today   time.Time
	current dto.MissedSession
	err     error
	closed  bool
}

// Next advances to the next item. It returns false when the rows are exhausted, a row fails to
// decode, or the cursor was closed.
func (c *MissedSessionCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	var row models.MissedSessionRow
	if err := c.rows.StructScan(&row); err != nil {
		c.err = err
		c.Close()
		return false
	}
	c.current = dto.MissedSession{
		SessionID:              row.SessionID,
		ClassID:                row.ClassID,
		ClassCode:              row.ClassCode,
		SubjectSessionID:       row.SubjectSessionID,
		SequenceNo:             row.SequenceNo,
		Topic:                  row.Topic,
		Date:                   row.Date,
		StartTime:              row.StartTime,
		EndTime:                row.EndTime,
		DaysAgo:                models.DaysBetween(row.Date, c.today),
		HasExcusedAbsence:      row.HasExcusedAbsence,
		HasActiveMakeupRequest: row.HasActiveMakeupRequest,
	}
	return true
}

// Current returns the item Next moved to.
func (c *MissedSessionCursor) Current() dto.MissedSession {
	return c.current
}

// Err reports the first error met while iterating.
func (c *MissedSessionCursor) Err() error {
	return c.err
}

// Close releases the underlying rows. It is safe to call more than once.
func (c *MissedSessionCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// Collect drains the cursor into a slice and closes it.
func (c *MissedSessionCursor) Collect() ([]dto.MissedSession, error) {
	defer c.Close()
	items := make([]dto.MissedSession, 0)
	for c.Next() {
		items = append(items, c.Current())
	}
	if err := c.Err(); err != nil {
		return nil, appErrors.Internal(err, "failed to read missed sessions")
	}
	return items, nil
}
