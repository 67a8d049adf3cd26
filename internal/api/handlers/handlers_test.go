package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestStatusFor tests the mapping from error kind to HTTP status
func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "Business", err: errors.ErrInvalidPin, want: http.StatusUnprocessableEntity},
		{name: "Transport", err: errors.Transport("CONNECT_ERROR", "Connection failed", nil), want: http.StatusServiceUnavailable},
		{name: "Authorization", err: errors.ErrUserBlocked, want: http.StatusUnauthorized},
		{name: "Protocol", err: errors.ErrMultipleRoles, want: http.StatusConflict},
		{name: "Plain error", err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(errors.GetAppError(tt.err).Kind))
		})
	}
}
