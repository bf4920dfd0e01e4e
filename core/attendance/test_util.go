package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeRepository mirrors the store's semantics in memory: global code
// uniqueness, the two named dedup constraints, insert-only records.
type fakeRepository struct {
	mu       sync.Mutex
	sessions map[int]Session
	records  map[int]Record
	names    map[int]string

	nextSessionID int
	nextRecordID  int

	// codeConflicts makes the next N CreateSession calls report ErrCodeExists,
	// regardless of the code drawn. Simulates collisions / store malfunction.
	codeConflicts int

	forcedErr error // returned by every call when set
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		sessions: make(map[int]Session),
		records:  make(map[int]Record),
		names:    make(map[int]string),
	}
}

func (repo *fakeRepository) addStudent(id int, name string) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.names[id] = name
}

func (repo *fakeRepository) CreateSession(_ context.Context, sess Session) (Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return Session{}, repo.forcedErr
	}
	if repo.codeConflicts > 0 {
		repo.codeConflicts--
		return Session{}, ErrCodeExists
	}
	for _, existing := range repo.sessions {
		if existing.Code == sess.Code {
			return Session{}, ErrCodeExists
		}
	}
	repo.nextSessionID++
	sess.ID = repo.nextSessionID
	repo.sessions[sess.ID] = sess
	return sess, nil
}

func (repo *fakeRepository) GetActiveSession(_ context.Context, courseID int, now time.Time) (Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return Session{}, repo.forcedErr
	}
	for _, sess := range repo.sessions {
		if sess.CourseID == courseID && sess.IsActive && sess.ExpiresAt.After(now) {
			return sess, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (repo *fakeRepository) GetSessionByCode(_ context.Context, code string) (Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return Session{}, repo.forcedErr
	}
	for _, sess := range repo.sessions {
		if sess.Code == code && sess.IsActive {
			return sess, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (repo *fakeRepository) EndSession(_ context.Context, sessionID int) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return repo.forcedErr
	}
	if sess, ok := repo.sessions[sessionID]; ok {
		sess.IsActive = false
		repo.sessions[sessionID] = sess
	}
	return nil
}

func (repo *fakeRepository) CreateRecord(_ context.Context, rec Record) (Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return Record{}, repo.forcedErr
	}
	// the student constraint is checked first, matching the store's index order
	for _, existing := range repo.records {
		if existing.SessionID == rec.SessionID && existing.StudentID == rec.StudentID {
			return Record{}, ErrAlreadyCheckedIn
		}
	}
	for _, existing := range repo.records {
		if existing.SessionID == rec.SessionID && existing.DeviceID == rec.DeviceID {
			return Record{}, ErrDeviceAlreadyUsed
		}
	}
	repo.nextRecordID++
	rec.ID = repo.nextRecordID
	rec.Timestamp = NowFunc().UTC()
	repo.records[rec.ID] = rec
	return rec, nil
}

func (repo *fakeRepository) ListRecords(_ context.Context, sessionID int) ([]RecordInfo, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return nil, repo.forcedErr
	}
	var infos []RecordInfo
	for _, rec := range repo.records {
		if rec.SessionID == sessionID {
			infos = append(infos, RecordInfo{
				StudentID: rec.StudentID,
				Name:      repo.names[rec.StudentID],
				Timestamp: rec.Timestamp,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.Before(infos[j].Timestamp) })
	return infos, nil
}

func (repo *fakeRepository) CourseSummary(_ context.Context, courseID int) ([]StudentSummary, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return nil, repo.forcedErr
	}
	counts := make(map[int]int)
	for _, rec := range repo.records {
		if sess, ok := repo.sessions[rec.SessionID]; ok && sess.CourseID == courseID {
			counts[rec.StudentID]++
		}
	}
	var summaries []StudentSummary
	for id, name := range repo.names {
		summaries = append(summaries, StudentSummary{StudentID: id, Name: name, AttendanceCount: counts[id]})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StudentID < summaries[j].StudentID })
	return summaries, nil
}

func (repo *fakeRepository) GetStudentName(_ context.Context, studentID int) (string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.forcedErr != nil {
		return "", repo.forcedErr
	}
	name, ok := repo.names[studentID]
	if !ok {
		return "", errors.New("student not found")
	}
	return name, nil
}

// captureBroadcaster records published events on a channel so tests can wait
// for the asynchronous notify.
type captureBroadcaster struct {
	events chan capturedEvent
}

type capturedEvent struct {
	SessionID int
	Event     string
	Data      interface{}
}

var _ Broadcaster = (*captureBroadcaster)(nil)

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{events: make(chan capturedEvent, 8)}
}

func (b *captureBroadcaster) Publish(sessionID int, event string, data interface{}) {
	b.events <- capturedEvent{SessionID: sessionID, Event: event, Data: data}
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
