package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/repository"
)

type attendanceKey struct {
	student string
	session string
}

type syllabusPoint struct {
	seq   int
	topic string
}

// fakeAcademy is an in-memory stand-in for the academic tables. Each store view below mirrors
// the SQL semantics of its repository counterpart.
type fakeAcademy struct {
	mu          sync.Mutex
	classes     map[string]models.Class
	sessions    map[string]models.Session
	points      map[string]syllabusPoint
	enrollments map[string]models.Enrollment
	attendance  map[attendanceKey]models.StudentSession
	requests    map[string]models.StudentRequest
	teacherReqs map[string]models.TeacherRequest
	reports     map[string]models.QAReport
	seq         int
	calls       map[string]int
	trail       []string

	beforeDecision func(f *fakeAcademy, id string)
}

func newFakeAcademy() *fakeAcademy {
	return &fakeAcademy{
		classes:     make(map[string]models.Class),
		sessions:    make(map[string]models.Session),
		points:      make(map[string]syllabusPoint),
		enrollments: make(map[string]models.Enrollment),
		attendance:  make(map[attendanceKey]models.StudentSession),
		requests:    make(map[string]models.StudentRequest),
		teacherReqs: make(map[string]models.TeacherRequest),
		reports:     make(map[string]models.QAReport),
		calls:       make(map[string]int),
	}
}

type academySnapshot struct {
	classes     map[string]models.Class
	sessions    map[string]models.Session
	enrollments map[string]models.Enrollment
	attendance  map[attendanceKey]models.StudentSession
	requests    map[string]models.StudentRequest
	teacherReqs map[string]models.TeacherRequest
	reports     map[string]models.QAReport
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (f *fakeAcademy) snapshot() academySnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return academySnapshot{
		classes:     copyMap(f.classes),
		sessions:    copyMap(f.sessions),
		enrollments: copyMap(f.enrollments),
		attendance:  copyMap(f.attendance),
		requests:    copyMap(f.requests),
		teacherReqs: copyMap(f.teacherReqs),
		reports:     copyMap(f.reports),
	}
}

func (f *fakeAcademy) restore(s academySnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes = s.classes
	f.sessions = s.sessions
	f.enrollments = s.enrollments
	f.attendance = s.attendance
	f.requests = s.requests
	f.teacherReqs = s.teacherReqs
	f.reports = s.reports
}

func (f *fakeAcademy) track(op string) {
	f.calls[op]++
	f.trail = append(f.trail, op)
}

// callOrder returns tracked operations in the order they ran.
func (f *fakeAcademy) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trail...)
}

func (f *fakeAcademy) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAcademy) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// seeding helpers

func (f *fakeAcademy) addClass(c models.Class) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Status == "" {
		c.Status = models.ClassStatusOngoing
	}
	f.classes[c.ID] = c
}

func (f *fakeAcademy) addPoint(id string, seq int, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[id] = syllabusPoint{seq: seq, topic: topic}
}

func (f *fakeAcademy) addSession(s models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Status == "" {
		s.Status = models.SessionStatusPlanned
	}
	if s.TimeSlotID == "" {
		s.TimeSlotID = s.StartTime + "-" + s.EndTime
	}
	f.sessions[s.ID] = s
}

func (f *fakeAcademy) enroll(id, studentID, classID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments[id] = models.Enrollment{ID: id, StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusEnrolled}
}

func (f *fakeAcademy) setAttendance(studentID, sessionID string, status models.AttendanceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendance[attendanceKey{studentID, sessionID}] = models.StudentSession{
		StudentID: studentID, SessionID: sessionID, AttendanceStatus: status, HomeworkStatus: models.HomeworkNone,
	}
}

func (f *fakeAcademy) putRequest(req models.StudentRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[req.ID] = req
}

func (f *fakeAcademy) request(id string) models.StudentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

func (f *fakeAcademy) session(id string) models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeAcademy) record(studentID, sessionID string) (models.StudentSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.attendance[attendanceKey{studentID, sessionID}]
	return rec, ok
}

func (f *fakeAcademy) activeEnrollments(studentID string) []models.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusEnrolled {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out
}

func (f *fakeAcademy) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

// derived rows; callers hold f.mu

func (f *fakeAcademy) enrolledCount(classID string) int {
	n := 0
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusEnrolled {
			n++
		}
	}
	return n
}

func (f *fakeAcademy) classDetail(id string) (models.ClassDetail, bool) {
	c, ok := f.classes[id]
	if !ok {
		return models.ClassDetail{}, false
	}
	return models.ClassDetail{Class: c, EnrolledCount: f.enrolledCount(id)}, true
}

func (f *fakeAcademy) sessionDetail(id string) (models.SessionDetail, bool) {
	s, ok := f.sessions[id]
	if !ok {
		return models.SessionDetail{}, false
	}
	c := f.classes[s.ClassID]
	p := f.points[s.SubjectSessionID]
	return models.SessionDetail{
		Session:       s,
		ClassCode:     c.Code,
		BranchID:      c.BranchID,
		Modality:      c.Modality,
		MaxCapacity:   c.MaxCapacity,
		EnrolledCount: f.enrolledCount(c.ID),
		SubjectID:     c.SubjectID,
		SequenceNo:    p.seq,
		Topic:         p.topic,
	}, true
}

func (f *fakeAcademy) enrollmentDetail(e models.Enrollment) models.EnrollmentDetail {
	c := f.classes[e.ClassID]
	return models.EnrollmentDetail{Enrollment: e, ClassCode: c.Code, SubjectID: c.SubjectID, BranchID: c.BranchID, Modality: c.Modality}
}

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		if sessions[i].StartTime != sessions[j].StartTime {
			return sessions[i].StartTime < sessions[j].StartTime
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// fakeTx serialises transactions and rolls the academy back when fn fails.
type fakeTx struct {
	mu      sync.Mutex
	academy *fakeAcademy
	commits int
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.academy.snapshot()
	if err := fn(nil); err != nil {
		t.academy.restore(snap)
		return err
	}
	t.commits++
	return nil
}

type fakeSessions struct{ *fakeAcademy }

func (f fakeSessions) GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.sessionDetail(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (f fakeSessions) LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	f.mu.Lock()
	f.track("LockSession")
	f.mu.Unlock()
	return f.GetDetail(ctx, exec, id)
}

func (f fakeSessions) FirstPlannedOnOrAfter(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []models.Session
	for _, s := range f.sessions {
		if s.ClassID == classID && s.Status == models.SessionStatusPlanned && !s.Date.Before(date) {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	sortSessions(matches)
	return &matches[0], nil
}

func (f fakeSessions) LastBefore(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []models.Session
	for _, s := range f.sessions {
		if s.ClassID == classID && s.Status != models.SessionStatusCancelled && s.Date.Before(date) {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	sortSessions(matches)
	return &matches[len(matches)-1], nil
}

func (f fakeSessions) ListMakeupCandidates(ctx context.Context, q repository.MakeupCandidateQuery) ([]models.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []models.Session
	for _, s := range f.sessions {
		c := f.classes[s.ClassID]
		if s.SubjectSessionID != q.SubjectSessionID || s.ID == q.ExcludeSessionID || s.Status != models.SessionStatusPlanned {
			continue
		}
		if s.Date.Before(q.FromDate) || !c.AcceptsTransfers() {
			continue
		}
		if _, own := f.attendance[attendanceKey{q.StudentID, s.ID}]; own {
			continue
		}
		matches = append(matches, s)
	}
	sortSessions(matches)
	details := make([]models.SessionDetail, 0, len(matches))
	for _, s := range matches {
		d, _ := f.sessionDetail(s.ID)
		details = append(details, d)
	}
	return details, nil
}

func (f fakeSessions) ListCoveredPoints(ctx context.Context, classID string) ([]models.CoveredSyllabusPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byPoint := make(map[string]models.CoveredSyllabusPoint)
	for _, s := range f.sessions {
		if s.ClassID != classID || s.Status != models.SessionStatusDone {
			continue
		}
		p := f.points[s.SubjectSessionID]
		existing, ok := byPoint[s.SubjectSessionID]
		if !ok || s.Date.Before(existing.Date) {
			byPoint[s.SubjectSessionID] = models.CoveredSyllabusPoint{SubjectSessionID: s.SubjectSessionID, SequenceNo: p.seq, Topic: p.topic, Date: s.Date}
		}
	}
	out := make([]models.CoveredSyllabusPoint, 0, len(byPoint))
	for _, p := range byPoint {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNo < out[j].SequenceNo })
	return out, nil
}

func (f fakeSessions) complete(now time.Time, withNote bool) []models.CompletedSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	var done []models.CompletedSession
	for id, s := range f.sessions {
		if s.Status != models.SessionStatusPlanned || s.HasTeacherNote() != withNote {
			continue
		}
		if !s.EndsAt(now.Location()).Before(now) {
			continue
		}
		s.Status = models.SessionStatusDone
		f.sessions[id] = s
		done = append(done, models.CompletedSession{ID: s.ID, ClassID: s.ClassID, TeacherID: s.TeacherID, Date: s.Date})
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ID < done[j].ID })
	return done
}

func (f fakeSessions) CompleteEndedWithNote(ctx context.Context, exec sqlx.ExtContext, now time.Time) ([]models.CompletedSession, error) {
	return f.complete(now, true), nil
}

func (f fakeSessions) CompleteEndedWithoutNote(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.CompletedSession, error) {
	return f.complete(cutoff, false), nil
}

func (f fakeSessions) ListEndingBetween(ctx context.Context, from, to time.Time) ([]models.ReminderCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReminderCandidate
	for _, s := range f.sessions {
		if s.Status == models.SessionStatusCancelled {
			continue
		}
		end := s.EndsAt(from.Location())
		if !end.After(from) || end.After(to) {
			continue
		}
		pending := 0
		for key, rec := range f.attendance {
			if key.session == s.ID && rec.AttendanceStatus == models.AttendancePlanned {
				pending++
			}
		}
		out = append(out, models.ReminderCandidate{Session: s, ClassCode: f.classes[s.ClassID].Code, PendingAttendance: pending})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeClasses struct{ *fakeAcademy }

func (f fakeClasses) GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.classDetail(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (f fakeClasses) LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error) {
	f.mu.Lock()
	f.track("LockClass")
	f.mu.Unlock()
	return f.GetDetail(ctx, exec, id)
}

func (f fakeClasses) ListOpenBySubject(ctx context.Context, subjectID, excludeID string) ([]models.ClassDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassDetail
	for id, c := range f.classes {
		if c.SubjectID == subjectID && id != excludeID && c.AcceptsTransfers() {
			d, _ := f.classDetail(id)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type fakeEnrollments struct{ *fakeAcademy }

func (f fakeEnrollments) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.ClassID == classID && e.Status == models.EnrollmentStatusEnrolled {
			d := f.enrollmentDetail(e)
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeEnrollments) LockActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error) {
	f.mu.Lock()
	f.track("LockEnrollment")
	f.mu.Unlock()
	return f.FindActive(ctx, exec, studentID, classID)
}

func (f fakeEnrollments) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	active := f.activeEnrollments(studentID)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EnrollmentDetail, 0, len(active))
	for _, e := range active {
		out = append(out, f.enrollmentDetail(e))
	}
	return out, nil
}

func (f fakeEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track("CreateEnrollment")
	if enrollment.ID == "" {
		enrollment.ID = f.nextID("enr")
	}
	f.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (f fakeEnrollments) Close(ctx context.Context, exec sqlx.ExtContext, id string, leftSessionID *string, leftAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusWithdrawn
	e.LeftSessionID = leftSessionID
	e.LeftAt = &leftAt
	f.enrollments[id] = e
	return nil
}

type fakeAttendance struct{ *fakeAcademy }

func (f fakeAttendance) Get(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.attendance[attendanceKey{studentID, sessionID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (f fakeAttendance) MarkExcused(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, note *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track("MarkExcused")
	key := attendanceKey{studentID, sessionID}
	rec, ok := f.attendance[key]
	if !ok {
		rec = models.StudentSession{StudentID: studentID, SessionID: sessionID, HomeworkStatus: models.HomeworkNone}
	}
	rec.AttendanceStatus = models.AttendanceExcused
	rec.RecordedAt = &at
	if note != nil {
		rec.Note = note
	}
	f.attendance[key] = rec
	return nil
}

func (f fakeAttendance) LinkMakeup(ctx context.Context, exec sqlx.ExtContext, studentID, originalSessionID, makeupSessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track("LinkMakeup")
	origKey := attendanceKey{studentID, originalSessionID}
	if orig, ok := f.attendance[origKey]; ok {
		orig.MakeupSessionID = &makeupSessionID
		f.attendance[origKey] = orig
	}
	original := originalSessionID
	f.attendance[attendanceKey{studentID, makeupSessionID}] = models.StudentSession{
		StudentID: studentID, SessionID: makeupSessionID, AttendanceStatus: models.AttendancePlanned,
		HomeworkStatus: models.HomeworkNone, IsMakeup: true, OriginalSessionID: &original,
	}
	return nil
}

func (f fakeAttendance) SeedClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.ClassID != classID || s.Status != models.SessionStatusPlanned || s.Date.Before(from) {
			continue
		}
		key := attendanceKey{studentID, s.ID}
		if _, exists := f.attendance[key]; exists {
			continue
		}
		f.attendance[key] = models.StudentSession{StudentID: studentID, SessionID: s.ID, AttendanceStatus: models.AttendancePlanned, HomeworkStatus: models.HomeworkNone}
		n++
	}
	return n, nil
}

func (f fakeAttendance) DropPlanned(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key, rec := range f.attendance {
		s := f.sessions[key.session]
		if key.student != studentID || s.ClassID != classID || s.Date.Before(from) {
			continue
		}
		if rec.AttendanceStatus != models.AttendancePlanned || rec.IsMakeup {
			continue
		}
		delete(f.attendance, key)
		n++
	}
	return n, nil
}

func (f fakeAttendance) DefaultPlannedToAbsent(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	n := 0
	for key, rec := range f.attendance {
		if wanted[key.session] && rec.AttendanceStatus == models.AttendancePlanned {
			rec.AttendanceStatus = models.AttendanceAbsent
			rec.RecordedAt = &at
			f.attendance[key] = rec
			n++
		}
	}
	return n, nil
}

func (f fakeAttendance) ListCommitted(ctx context.Context, studentID string, from, to time.Time) ([]models.CommittedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []models.Session
	makeup := make(map[string]bool)
	for key, rec := range f.attendance {
		s := f.sessions[key.session]
		if key.student != studentID || rec.AttendanceStatus != models.AttendancePlanned || s.Status != models.SessionStatusPlanned {
			continue
		}
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		sessions = append(sessions, s)
		makeup[s.ID] = rec.IsMakeup
	}
	sortSessions(sessions)
	out := make([]models.CommittedSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, models.CommittedSession{Session: s, IsMakeup: makeup[s.ID]})
	}
	return out, nil
}

func (f fakeAttendance) ListAttendedPoints(ctx context.Context, studentID, classID string) ([]models.AttendedSyllabusPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []models.AttendedSyllabusPoint
	for key, rec := range f.attendance {
		s := f.sessions[key.session]
		if key.student != studentID || s.ClassID != classID || rec.AttendanceStatus != models.AttendancePresent || seen[s.SubjectSessionID] {
			continue
		}
		seen[s.SubjectSessionID] = true
		out = append(out, models.AttendedSyllabusPoint{SubjectSessionID: s.SubjectSessionID, SequenceNo: f.points[s.SubjectSessionID].seq})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNo < out[j].SequenceNo })
	return out, nil
}

func (f fakeAttendance) QueryMissed(ctx context.Context, q repository.MissedSessionQuery) (repository.RowCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []models.MissedSessionRow
	for key, rec := range f.attendance {
		s := f.sessions[key.session]
		if key.student != q.StudentID || rec.AttendanceStatus != models.AttendanceAbsent || rec.IsMakeup {
			continue
		}
		if s.Status != models.SessionStatusDone || s.Date.Before(q.Since) || !s.Date.Before(q.Today) {
			continue
		}
		row := models.MissedSessionRow{
			SessionID: s.ID, ClassID: s.ClassID, ClassCode: f.classes[s.ClassID].Code,
			SubjectSessionID: s.SubjectSessionID, SequenceNo: f.points[s.SubjectSessionID].seq,
			Topic: f.points[s.SubjectSessionID].topic, Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime,
		}
		for _, r := range f.requests {
			if r.StudentID != q.StudentID || r.TargetSessionID == nil || *r.TargetSessionID != s.ID {
				continue
			}
			if r.RequestType == models.RequestTypeAbsence && r.Status == models.RequestStatusApproved {
				row.HasExcusedAbsence = true
			}
			if r.RequestType == models.RequestTypeMakeup && (r.Status == models.RequestStatusPending || r.Status == models.RequestStatusApproved) {
				row.HasActiveMakeupRequest = true
			}
		}
		if q.ExcludeRequested && (row.HasExcusedAbsence || row.HasActiveMakeupRequest) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		if rows[i].StartTime != rows[j].StartTime {
			return rows[i].StartTime > rows[j].StartTime
		}
		return rows[i].SessionID < rows[j].SessionID
	})
	return &sliceCursor{rows: rows, pos: -1}, nil
}

// sliceCursor implements repository.RowCursor over decoded rows.
type sliceCursor struct {
	rows    []models.MissedSessionRow
	pos     int
	scanErr error
	closed  bool
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) StructScan(dest interface{}) error {
	if c.scanErr != nil {
		return c.scanErr
	}
	row, ok := dest.(*models.MissedSessionRow)
	if !ok {
		return fmt.Errorf("unexpected destination %T", dest)
	}
	*row = c.rows[c.pos]
	return nil
}

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) Close() error {
	c.closed = true
	return nil
}

type fakeRequests struct{ *fakeAcademy }

func (f fakeRequests) Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == "" {
		req.ID = f.nextID("req")
	}
	f.requests[req.ID] = *req
	return nil
}

func (f fakeRequests) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

func (f fakeRequests) List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StudentRequest
	for _, r := range f.requests {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.Type != "" && r.RequestType != filter.Type {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, s := range filter.Status {
				match = match || r.Status == s
			}
			if !match {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (f fakeRequests) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID string, requestType models.RequestType, targetSessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track("ExistsActive")
	for _, r := range f.requests {
		if r.StudentID == studentID && r.RequestType == requestType && r.TargetSessionID != nil && *r.TargetSessionID == targetSessionID &&
			(r.Status == models.RequestStatusPending || r.Status == models.RequestStatusApproved) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRequests) CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.StudentID == studentID && r.RequestType == models.RequestTypeTransfer && r.Status == models.RequestStatusApproved &&
			f.classes[r.CurrentClassID].SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (f fakeRequests) HasPendingTransfer(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track("HasPendingTransfer")
	for _, r := range f.requests {
		if r.StudentID == studentID && r.CurrentClassID == classID && r.RequestType == models.RequestTypeTransfer && r.Status == models.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRequests) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateDecisionParams) error {
	if hook := f.beforeDecision; hook != nil {
		hook(f.fakeAcademy, params.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[params.ID]
	if !ok || r.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	r.Status = params.Status
	r.DecidedBy = params.DecidedBy
	at := params.DecidedAt
	r.DecidedAt = &at
	if params.Note != nil {
		r.Note = params.Note
	}
	f.requests[params.ID] = r
	return nil
}

func (f fakeRequests) ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string, at time.Time) ([]models.StudentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StudentRequest
	for id, r := range f.requests {
		if r.Status != models.RequestStatusPending || !r.SubmittedAt.Before(cutoff) {
			continue
		}
		r.Status = models.RequestStatusCancelled
		decidedAt := at
		r.DecidedAt = &decidedAt
		note := marker
		if r.Note != nil && strings.TrimSpace(*r.Note) != "" {
			note = *r.Note + "\n" + marker
		}
		r.Note = &note
		f.requests[id] = r
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeTeacherRequests struct{ *fakeAcademy }

func (f fakeTeacherRequests) ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string) ([]models.TeacherRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TeacherRequest
	for id, r := range f.teacherReqs {
		if r.Status != models.RequestStatusPending || !r.SubmittedAt.Before(cutoff) {
			continue
		}
		r.Status = models.RequestStatusCancelled
		note := marker
		if r.Note != nil && *r.Note != "" {
			note = *r.Note + "\n" + marker
		}
		r.Note = &note
		f.teacherReqs[id] = r
		out = append(out, r)
	}
	return out, nil
}

type fakeReports struct{ *fakeAcademy }

func (f fakeReports) CreatePlaceholders(ctx context.Context, exec sqlx.ExtContext, params repository.QAPlaceholderParams) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if params.SessionIDs != nil && len(params.SessionIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(params.SessionIDs))
	for _, id := range params.SessionIDs {
		wanted[id] = true
	}
	var created []string
	for id, s := range f.sessions {
		if s.Status != models.SessionStatusDone {
			continue
		}
		if _, exists := f.reports[id]; exists {
			continue
		}
		if params.SessionIDs != nil && !wanted[id] {
			continue
		}
		if params.SessionIDs == nil && !params.Since.IsZero() && s.Date.Before(params.Since) {
			continue
		}
		f.reports[id] = models.QAReport{
			ID: f.nextID("qa"), SessionID: id, ClassID: s.ClassID, ReportType: models.QAReportTypeClassroomObservation,
			Status: models.QAReportStatusSubmitted, Content: params.Content, AuthorKind: models.QAReportAuthorSystem, CreatedAt: params.At,
		}
		created = append(created, id)
	}
	sort.Strings(created)
	return created, nil
}

// staticPolicies serves a fixed snapshot.
type staticPolicies struct {
	policies models.Policies
	err      error
}

func (s staticPolicies) Snapshot(ctx context.Context) (models.Policies, error) {
	return s.policies, s.err
}

func testPolicies() models.Policies {
	return models.Policies{
		MakeupLookbackWeeks:      4,
		MakeupDeadlineWeeks:      4,
		TransferMaxPerSubject:    1,
		AbsenceLeadTimeDays:      1,
		MinReasonLength:          10,
		MinRejectNoteLength:      10,
		RequestExpiryDays:        7,
		TeacherRequestExpiryDays: 3,
		MinOverrideReasonLength:  20,
		ReminderHours:            []int{24, 36},
		EscalationHours:          48,
	}
}

type sentNotification struct {
	Recipient string
	Kind      models.NotificationType
	Title     string
	Message   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, recipientID string, kind models.NotificationType, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipientID, Kind: kind, Title: title, Message: message})
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func strp(v string) *string { return &v }
