package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdn/vibecheck/core"
)

func testConfig() *core.Config {
	return &core.Config{
		Attendance: core.AttendanceConfig{CodeLength: 6, MaxCodeAttempts: 5},
	}
}

func setNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := NowFunc
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = orig })
}

func newTestService(repo Repository, bcast Broadcaster) ServiceInterface {
	return NewService(repo, bcast, testConfig(), nopLogger{})
}

func Test_service_Create(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	setNow(t, now)

	repo := newFakeRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)
	assert.NotZero(t, sess.ID)
	assert.Equal(t, 1, sess.CourseID)
	assert.Len(t, sess.Code, 6)
	assert.True(t, sess.IsActive)
	assert.Equal(t, now.Add(5*time.Minute), sess.ExpiresAt)

	// the fresh session is immediately visible as the course's active one
	active, err := svc.GetActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, sess, active)
}

func Test_service_Create_codeCollisions(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	// a few collisions are retried away
	repo.codeConflicts = 3
	_, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	// a store that always reports conflict exhausts the bounded retry loop
	repo.codeConflicts = 1000
	_, err = svc.Create(ctx, NewSession{CourseID: 2, DurationMinutes: 5})
	assert.Equal(t, ErrCodeGenerationExhausted, errors.Cause(err))
	assert.Equal(t, 1000-5, repo.codeConflicts, "retries must stop after MaxCodeAttempts")
}

func Test_service_GetActive_logicalExpiry(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	setNow(t, now)

	repo := newFakeRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	// past the expiry the session is absent, even though is_active is untouched
	setNow(t, now.Add(6*time.Minute))
	_, err = svc.GetActive(ctx, 1)
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))

	stored, err := repo.GetSessionByCode(ctx, sess.Code)
	require.NoError(t, err)
	assert.True(t, stored.IsActive, "logical expiry must not mutate the stored flag")
}

func Test_service_End_idempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, sess.ID))
	_, err = svc.GetActive(ctx, 1)
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))

	// ending again, or ending an unknown session, is a no-op
	require.NoError(t, svc.End(ctx, sess.ID))
	require.NoError(t, svc.End(ctx, 999))
}

func Test_service_CheckIn(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	setNow(t, now)

	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	repo.addStudent(11, "Sinh viên C")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	rec, err := svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, rec.SessionID)
	assert.Equal(t, 10, rec.StudentID)

	tests := []struct {
		name    string
		checkIn CheckIn
		wantErr error
	}{
		{"same student, same device", CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"}, ErrAlreadyCheckedIn},
		{"same student, new device", CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-B"}, ErrAlreadyCheckedIn},
		{"new student, used device", CheckIn{Code: sess.Code, StudentID: 11, DeviceID: "dev-A"}, ErrDeviceAlreadyUsed},
		{"unknown code", CheckIn{Code: "ZZZZZZ", StudentID: 11, DeviceID: "dev-B"}, ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CheckIn(ctx, tt.checkIn)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func Test_service_CheckIn_expiredSession(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	setNow(t, now)

	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	setNow(t, now.Add(5*time.Minute)) // expiry boundary counts as expired
	_, err = svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"})
	assert.Equal(t, ErrSessionExpired, errors.Cause(err))

	// the row is untouched: no implicit End
	stored, err := repo.GetSessionByCode(ctx, sess.Code)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func Test_service_CheckIn_endedSession(t *testing.T) {
	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, sess.ID))

	_, err = svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"})
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))
}

func Test_service_CheckIn_broadcast(t *testing.T) {
	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	bcast := newCaptureBroadcaster()
	svc := newTestService(repo, bcast)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"})
	require.NoError(t, err)

	select {
	case ev := <-bcast.events:
		assert.Equal(t, sess.ID, ev.SessionID)
		assert.Equal(t, EventNewAttendance, ev.Event)
		assert.Equal(t, Event{StudentID: 10, Name: "Sinh viên B"}, ev.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no check-in event was published")
	}
}

func Test_service_CheckIn_broadcastFailureDoesNotFailCheckIn(t *testing.T) {
	repo := newFakeRepository()
	// student 42 has no directory entry: the name lookup in the notify path fails
	svc := newTestService(repo, newCaptureBroadcaster())
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 5})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 42, DeviceID: "dev-A"})
	assert.NoError(t, err)
}

func Test_service_ListRecords_ordered(t *testing.T) {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	setNow(t, base)

	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	repo.addStudent(11, "Sinh viên C")
	repo.addStudent(12, "Sinh viên D")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 30})
	require.NoError(t, err)

	for i, ci := range []CheckIn{
		{Code: sess.Code, StudentID: 12, DeviceID: "dev-C"},
		{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"},
		{Code: sess.Code, StudentID: 11, DeviceID: "dev-B"},
	} {
		setNow(t, base.Add(time.Duration(i)*time.Minute))
		_, err = svc.CheckIn(ctx, ci)
		require.NoError(t, err)
	}

	infos, err := svc.ListRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	// registration order, not student order
	assert.Equal(t, []int{12, 10, 11}, []int{infos[0].StudentID, infos[1].StudentID, infos[2].StudentID})
	assert.Equal(t, "Sinh viên D", infos[0].Name)
}

func Test_service_CourseSummary(t *testing.T) {
	repo := newFakeRepository()
	repo.addStudent(10, "Sinh viên B")
	repo.addStudent(11, "Sinh viên C")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, NewSession{CourseID: 1, DurationMinutes: 30})
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, CheckIn{Code: sess.Code, StudentID: 10, DeviceID: "dev-A"})
	require.NoError(t, err)

	summaries, err := svc.CourseSummary(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].AttendanceCount)
	assert.Equal(t, 0, summaries[1].AttendanceCount)
}
