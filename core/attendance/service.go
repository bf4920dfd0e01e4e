package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/quangdn/vibecheck/core"
)

var (
	// NowFunc supplies the clock for expiry checks. Mockable.
	NowFunc = time.Now

	// errors
	ErrSessionNotFound         = errors.New("attendance session not found")
	ErrSessionExpired          = errors.New("attendance session has expired")
	ErrAlreadyCheckedIn        = errors.New("student has already checked in for this session")
	ErrDeviceAlreadyUsed       = errors.New("this device was already used to check in another student")
	ErrCodeExists              = errors.New("a session with this code already exists")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique session code")
)

type (
	Repository interface {
		// CreateSession inserts a session; a code-uniqueness conflict is
		// reported as ErrCodeExists.
		CreateSession(ctx context.Context, sess Session) (Session, error)
		// GetActiveSession returns the course's session that is flagged active
		// and not yet expired as of `now`; ErrSessionNotFound otherwise.
		GetActiveSession(ctx context.Context, courseID int, now time.Time) (Session, error)
		// GetSessionByCode looks up by code among active-flagged sessions only;
		// expiry is not evaluated here.
		GetSessionByCode(ctx context.Context, code string) (Session, error)
		// EndSession flips is_active off. No error for unknown or already-ended ids.
		EndSession(ctx context.Context, sessionID int) error
		// CreateRecord inserts a check-in record atomically; dedup conflicts
		// are reported as ErrAlreadyCheckedIn or ErrDeviceAlreadyUsed.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		ListRecords(ctx context.Context, sessionID int) ([]RecordInfo, error)
		CourseSummary(ctx context.Context, courseID int) ([]StudentSummary, error)
		GetStudentName(ctx context.Context, studentID int) (string, error)
	}

	// Broadcaster fans a check-in event out to a session's live observers.
	// Publish must not block and must tolerate zero subscribers.
	Broadcaster interface {
		Publish(sessionID int, event string, data interface{})
	}

	ServiceInterface interface {
		Create(ctx context.Context, ns NewSession) (Session, error)
		GetActive(ctx context.Context, courseID int) (Session, error)
		End(ctx context.Context, sessionID int) error
		CheckIn(ctx context.Context, ci CheckIn) (Record, error)
		ListRecords(ctx context.Context, sessionID int) ([]RecordInfo, error)
		CourseSummary(ctx context.Context, courseID int) ([]StudentSummary, error)
	}

	service struct {
		repo        Repository
		bcast       Broadcaster
		logger      core.Logger
		codeLen     int
		maxAttempts int
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, bcast Broadcaster, conf *core.Config, logger core.Logger) ServiceInterface {
	return &service{
		repo:        repo,
		bcast:       bcast,
		logger:      logger,
		codeLen:     conf.Attendance.CodeLength,
		maxAttempts: conf.Attendance.MaxCodeAttempts,
	}
}

// Create opens a check-in window for a course. Code collisions are resolved by
// drawing a fresh code, bounded by maxAttempts; the code space (36^codeLen) is
// large enough that exhaustion means the store is misbehaving.
func (svc *service) Create(ctx context.Context, ns NewSession) (Session, error) {
	for attempts := 0; attempts < svc.maxAttempts; attempts++ {
		sess := Session{
			CourseID:  ns.CourseID,
			Code:      GenerateCode(svc.codeLen),
			ExpiresAt: NowFunc().UTC().Add(time.Duration(ns.DurationMinutes) * time.Minute),
			IsActive:  true,
		}
		created, err := svc.repo.CreateSession(ctx, sess)
		if err != nil {
			if pkgerrors.Cause(err) == ErrCodeExists {
				continue
			}
			return Session{}, pkgerrors.Wrap(err, "creating session")
		}
		return created, nil
	}
	return Session{}, ErrCodeGenerationExhausted
}

// GetActive applies the logical expiry rule: a session past its ExpiresAt is
// absent to callers even while its stored is_active flag is still on.
func (svc *service) GetActive(ctx context.Context, courseID int) (Session, error) {
	return svc.repo.GetActiveSession(ctx, courseID, NowFunc().UTC())
}

func (svc *service) End(ctx context.Context, sessionID int) error {
	return svc.repo.EndSession(ctx, sessionID)
}

// CheckIn validates the window and registers presence. The insert is the single
// unit of work: failure before it mutates nothing, and the store's two unique
// constraints are the only concurrency control for racing requests.
func (svc *service) CheckIn(ctx context.Context, ci CheckIn) (Record, error) {
	sess, err := svc.repo.GetSessionByCode(ctx, ci.Code)
	if err != nil {
		return Record{}, err
	}
	if sess.Expired(NowFunc().UTC()) {
		// the row is left untouched; expiry here is observational only
		return Record{}, ErrSessionExpired
	}

	rec, err := svc.repo.CreateRecord(ctx, Record{
		SessionID: sess.ID,
		StudentID: ci.StudentID,
		DeviceID:  ci.DeviceID,
	})
	if err != nil {
		return Record{}, err
	}

	// best-effort: the observer update must never block or fail the check-in
	go svc.notifyCheckIn(rec)

	return rec, nil
}

func (svc *service) ListRecords(ctx context.Context, sessionID int) ([]RecordInfo, error) {
	return svc.repo.ListRecords(ctx, sessionID)
}

func (svc *service) CourseSummary(ctx context.Context, courseID int) ([]StudentSummary, error) {
	return svc.repo.CourseSummary(ctx, courseID)
}

func (svc *service) notifyCheckIn(rec Record) {
	if svc.bcast == nil {
		return
	}
	// the request context may already be gone; give the name lookup its own deadline
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, err := svc.repo.GetStudentName(ctx, rec.StudentID)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Warn(fmt.Sprintf("check-in broadcast skipped: looking up student %d: %v", rec.StudentID, err), err)
		}
		return
	}
	svc.bcast.Publish(rec.SessionID, EventNewAttendance, Event{StudentID: rec.StudentID, Name: name})
}
