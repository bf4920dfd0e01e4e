package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/quangdn/vibecheck/core/attendance"
)

// constraint names from the attendance schema; the store reports every unique
// violation the same way, so the name is what tells the dedup cases apart.
const (
	sessionCodeConstraint   = "attendance_session_code_key"
	recordStudentConstraint = "attendance_record_session_student_key"
	recordDeviceConstraint  = "attendance_record_session_device_key"

	pqUniqueViolation = pq.ErrorCode("23505")
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sql.DB) *attendanceRepository {
	return &attendanceRepository{db: sqlx.NewDb(db, "postgres")}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrSessionNotFound
func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrSessionNotFound
	}
	return errors.Wrap(err, msg)
}

// trapConstraintErr inspects which unique constraint fired and maps it to the
// matching domain error; anything else is wrapped as-is.
func trapConstraintErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		switch pqErr.Constraint {
		case sessionCodeConstraint:
			return attendance.ErrCodeExists
		case recordStudentConstraint:
			return attendance.ErrAlreadyCheckedIn
		case recordDeviceConstraint:
			return attendance.ErrDeviceAlreadyUsed
		}
	}
	return errors.Wrap(err, msg)
}

func (repo attendanceRepository) CreateSession(ctx context.Context, sess attendance.Session) (attendance.Session, error) {
	const q = `
		INSERT INTO attendance_session (course_id, code, expires_at, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := repo.db.GetContext(ctx, &sess.ID, q, sess.CourseID, sess.Code, sess.ExpiresAt, sess.IsActive); err != nil {
		return attendance.Session{}, trapConstraintErr(err, "inserting session")
	}
	return sess, nil
}

func (repo attendanceRepository) GetActiveSession(ctx context.Context, courseID int, now time.Time) (attendance.Session, error) {
	const q = `
		SELECT id, course_id, code, expires_at, is_active
		FROM attendance_session
		WHERE course_id = $1 AND is_active AND expires_at > $2`
	var sess attendance.Session
	if err := repo.db.GetContext(ctx, &sess, q, courseID, now); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding active session")
	}
	return sess, nil
}

func (repo attendanceRepository) GetSessionByCode(ctx context.Context, code string) (attendance.Session, error) {
	const q = `
		SELECT id, course_id, code, expires_at, is_active
		FROM attendance_session
		WHERE code = $1 AND is_active`
	var sess attendance.Session
	if err := repo.db.GetContext(ctx, &sess, q, code); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding session by code")
	}
	return sess, nil
}

func (repo attendanceRepository) EndSession(ctx context.Context, sessionID int) error {
	// unconditional update: ending an ended or unknown session is a no-op
	const q = `UPDATE attendance_session SET is_active = FALSE WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, q, sessionID); err != nil {
		return errors.Wrap(err, "ending session")
	}
	return nil
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	const q = `
		INSERT INTO attendance_record (session_id, student_id, device_id)
		VALUES ($1, $2, $3)
		RETURNING id, timestamp`
	row := repo.db.QueryRowxContext(ctx, q, rec.SessionID, rec.StudentID, rec.DeviceID)
	if err := row.Scan(&rec.ID, &rec.Timestamp); err != nil {
		return attendance.Record{}, trapConstraintErr(err, "inserting check-in record")
	}
	return rec, nil
}

func (repo attendanceRepository) ListRecords(ctx context.Context, sessionID int) ([]attendance.RecordInfo, error) {
	const q = `
		SELECT r.student_id, u.name, r.timestamp
		FROM attendance_record r
		JOIN "user" u ON u.id = r.student_id
		WHERE r.session_id = $1
		ORDER BY r.timestamp ASC`
	var infos []attendance.RecordInfo
	if err := repo.db.SelectContext(ctx, &infos, q, sessionID); err != nil {
		return nil, errors.Wrap(err, "listing check-in records")
	}
	return infos, nil
}

func (repo attendanceRepository) CourseSummary(ctx context.Context, courseID int) ([]attendance.StudentSummary, error) {
	const q = `
		SELECT u.id AS student_id, u.name, u.username,
		       (SELECT COUNT(*)
		        FROM attendance_record r
		        JOIN attendance_session s ON s.id = r.session_id
		        WHERE r.student_id = u.id AND s.course_id = $1) AS attendance_count
		FROM "user" u
		JOIN enrollment e ON e.student_id = u.id
		WHERE e.course_id = $1
		ORDER BY u.name ASC`
	var summaries []attendance.StudentSummary
	if err := repo.db.SelectContext(ctx, &summaries, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course summary")
	}
	return summaries, nil
}

func (repo attendanceRepository) GetStudentName(ctx context.Context, studentID int) (string, error) {
	const q = `SELECT name FROM "user" WHERE id = $1`
	var name string
	if err := repo.db.GetContext(ctx, &name, q, studentID); err != nil {
		return "", errors.Wrap(err, "finding student name")
	}
	return name, nil
}
