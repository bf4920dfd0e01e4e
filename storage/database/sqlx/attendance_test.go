package sqlxrepos

import (
	"testing"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/quangdn/vibecheck/core/attendance"
)

func Test_trapConstraintErr(t *testing.T) {
	uniqueErr := func(constraint string) error {
		return &pq.Error{Code: pqUniqueViolation, Constraint: constraint}
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"code conflict", uniqueErr(sessionCodeConstraint), attendance.ErrCodeExists},
		{"student already checked in", uniqueErr(recordStudentConstraint), attendance.ErrAlreadyCheckedIn},
		{"device already used", uniqueErr(recordDeviceConstraint), attendance.ErrDeviceAlreadyUsed},
		{"wrapped unique violation", pkgerrors.Wrap(uniqueErr(recordDeviceConstraint), "inserting"), attendance.ErrDeviceAlreadyUsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trapConstraintErr(tt.err, "msg"))
		})
	}
}

func Test_trapConstraintErr_passesThroughOtherErrors(t *testing.T) {
	fkErr := &pq.Error{Code: "23503", Constraint: "attendance_record_session_id_fkey"}
	got := trapConstraintErr(fkErr, "inserting check-in record")
	assert.Equal(t, fkErr, pkgerrors.Cause(got))

	unknownUnique := &pq.Error{Code: pqUniqueViolation, Constraint: "some_other_key"}
	got = trapConstraintErr(unknownUnique, "inserting")
	assert.Equal(t, unknownUnique, pkgerrors.Cause(got))
}
