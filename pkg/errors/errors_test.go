package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAppError_Is tests that wrapped and re-caused sentinels still match by code
func TestAppError_Is(t *testing.T) {
	cause := fmt.Errorf("status 401")

	tests := []struct {
		name   string
		err    error
		target error
		match  bool
	}{
		{name: "Same sentinel", err: ErrInvalidPin, target: ErrInvalidPin, match: true},
		{name: "Wrapped", err: Wrap(ErrNoActiveRide, "start ride"), target: ErrNoActiveRide, match: true},
		{name: "With cause", err: WithCause(ErrInvalidPin, cause), target: ErrInvalidPin, match: true},
		{name: "Cause reachable", err: WithCause(ErrInvalidPin, cause), target: cause, match: true},
		{name: "Different code", err: ErrInvalidPin, target: ErrEmptyMessage, match: false},
		{name: "Foreign error", err: cause, target: ErrInvalidPin, match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, errors.Is(tt.err, tt.target))
		})
	}
}

// TestKindOf tests the taxonomy lookup
func TestKindOf(t *testing.T) {
	assert.Equal(t, KindBusiness, KindOf(ErrTooFarFromDestination))
	assert.Equal(t, KindProtocol, KindOf(Wrap(ErrMultipleRoles, "reconcile")))
	assert.Equal(t, KindAuthorization, KindOf(ErrUserBlocked))
	assert.Equal(t, KindTransport, KindOf(Transport("CONNECT_ERROR", "Connection lost", nil)))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

// TestWithMessage tests that the user-facing message can be replaced without losing identity
func TestWithMessage(t *testing.T) {
	err := WithMessage(ErrInvalidPin, "PIN does not match")
	assert.Equal(t, "PIN does not match", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidPin))
	assert.Nil(t, WithMessage(nil, "x"))
	assert.Nil(t, Wrap(nil, "x"))
}
