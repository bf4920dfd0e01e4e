package attendance

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quangdn/vibecheck/core"
)

// EventNewAttendance is the single event type pushed to live observers of a session.
const EventNewAttendance = "new-attendance"

type (
	// Session is one attendance check-in window for a course. Sessions are never
	// deleted; ending one only flips IsActive off. The code stays reserved for
	// the lifetime of the store.
	Session struct {
		ID        int       `json:"id" db:"id"`
		CourseID  int       `json:"course_id" db:"course_id"`
		Code      string    `json:"code" db:"code"`
		ExpiresAt time.Time `json:"expires_at" db:"expires_at"` // UTC
		IsActive  bool      `json:"is_active" db:"is_active"`
	}

	// Record is one student's successful check-in against a session.
	// Insert-only; the store enforces one record per (session, student) and
	// one per (session, device).
	Record struct {
		ID        int       `json:"id" db:"id"`
		SessionID int       `json:"session_id" db:"session_id"`
		StudentID int       `json:"student_id" db:"student_id"`
		DeviceID  string    `json:"device_id" db:"device_id"`
		Timestamp time.Time `json:"timestamp" db:"timestamp"` // UTC, set at insertion
	}

	// RecordInfo is a check-in record joined with the student's display name.
	RecordInfo struct {
		StudentID int       `json:"student_id" db:"student_id"`
		Name      string    `json:"name" db:"name"`
		Timestamp time.Time `json:"timestamp" db:"timestamp"`
	}

	// StudentSummary is one enrolled student's check-in count for a course.
	StudentSummary struct {
		StudentID       int    `json:"student_id" db:"student_id"`
		Name            string `json:"name" db:"name"`
		Username        string `json:"username" db:"username"`
		AttendanceCount int    `json:"attendance_count" db:"attendance_count"`
	}

	// Event is the payload broadcast to a session's live observers on each
	// successful check-in.
	Event struct {
		StudentID int    `json:"student_id"`
		Name      string `json:"name"`
	}
)

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// NewSession contains information needed to open a new check-in window.
type NewSession struct {
	CourseID        int `json:"course_id" validate:"required,min=1"`
	DurationMinutes int `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

// CheckIn is a student's attempt to register presence against a session code.
type CheckIn struct {
	Code      string `json:"code" validate:"required,sessioncode"`
	StudentID int    `json:"student_id" validate:"required,min=1"`
	DeviceID  string `json:"device_id" validate:"required"`
}

func (ci *CheckIn) Validate(validate *validator.Validate) error {
	ci.Code = strings.ToUpper(core.CleanString(ci.Code))
	ci.DeviceID = core.CleanString(ci.DeviceID)
	return validate.Struct(ci)
}
