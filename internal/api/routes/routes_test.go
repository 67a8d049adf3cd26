package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/api/handlers"
	"github.com/gocomet/ride-realtime/internal/credential"
	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	role      identity.Role
	creds     credential.Credentials
	pin       string
	reason    string
	message   string
	msgType   chat.Type
	position  *geolocation.Position
	loggedOut bool
	err       error
	session   state.Session
	ride      state.Ride
}

func (f *fakeCore) Session() state.Session { return f.session }
func (f *fakeCore) Ride() state.Ride       { return f.ride }
func (f *fakeCore) Chat() state.Chat       { return state.Chat{RideID: "B1"} }

func (f *fakeCore) Login(_ context.Context, role identity.Role, creds credential.Credentials) error {
	f.role, f.creds = role, creds
	f.session = state.Session{Status: state.StatusConnecting, Role: role, UserID: creds.ID}
	return f.err
}

func (f *fakeCore) Logout() error {
	f.loggedOut = true
	return f.err
}

func (f *fakeCore) Accept() error  { return f.err }
func (f *fakeCore) Decline() error { return f.err }

func (f *fakeCore) StartRide(_ context.Context, pin string) error {
	f.pin = pin
	return f.err
}

func (f *fakeCore) CompleteRide(context.Context) error { return f.err }

func (f *fakeCore) CancelRide(reason string) error {
	f.reason = reason
	return f.err
}

func (f *fakeCore) LeaveRide() error { return f.err }

func (f *fakeCore) SendMessage(content string, typ chat.Type, _ string) error {
	f.message, f.msgType = content, typ
	return f.err
}

func (f *fakeCore) NotifyTyping() error { return f.err }
func (f *fakeCore) AttachChat() error   { return f.err }
func (f *fakeCore) DetachChat() error   { return f.err }

func (f *fakeCore) UpdateLocation(p geolocation.Position) { f.position = &p }

func setupRouter(core *fakeCore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := logger.NewNop()
	SetupRoutes(r, handlers.NewHandlers(core, websocket.NewHub(log), log), nil)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestHealth tests the health endpoint and request id header
func TestHealth(t *testing.T) {
	r := setupRouter(&fakeCore{session: state.Session{Status: state.StatusConnected}})

	w := do(r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"session":"connected"`)
}

// TestMetrics tests that the Prometheus endpoint is exposed
func TestMetrics(t *testing.T) {
	r := setupRouter(&fakeCore{})
	do(r, http.MethodGet, "/health", nil)

	w := do(r, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ride_realtime_http_requests_total")
}

// TestLogin tests identity updates from the rendering layer
func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		err      error
		wantCode int
		wantRole identity.Role
	}{
		{
			name:     "Driver",
			body:     dto.IdentityRequest{Role: "driver", ID: "d1", Token: "access"},
			wantCode: http.StatusOK,
			wantRole: identity.RoleDriver,
		},
		{
			name:     "User alias",
			body:     dto.IdentityRequest{Role: "user", ID: "u1", Token: "access"},
			wantCode: http.StatusOK,
			wantRole: identity.RoleRider,
		},
		{
			name:     "Unknown role",
			body:     map[string]string{"role": "pilot", "token": "access"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Missing token",
			body:     map[string]string{"role": "driver"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Conflicting roles",
			body:     dto.IdentityRequest{Role: "driver", ID: "d1", Token: "access"},
			err:      errors.ErrMultipleRoles,
			wantCode: http.StatusConflict,
			wantRole: identity.RoleDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &fakeCore{err: tt.err}
			r := setupRouter(core)

			w := do(r, http.MethodPut, "/v1/identity", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantRole, core.role)
		})
	}
}

// TestLogout tests DELETE /v1/identity
func TestLogout(t *testing.T) {
	core := &fakeCore{}
	r := setupRouter(core)

	w := do(r, http.MethodDelete, "/v1/identity", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, core.loggedOut)
}

// TestRideIntents tests the ride routes and their error mapping
func TestRideIntents(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     interface{}
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "Accept", path: "/v1/offer/accept", wantCode: http.StatusOK},
		{name: "Accept without offer", path: "/v1/offer/accept", err: errors.ErrNoActiveOffer, wantCode: http.StatusUnprocessableEntity, wantErr: "NO_ACTIVE_OFFER"},
		{name: "Decline", path: "/v1/offer/decline", wantCode: http.StatusOK},
		{name: "Start", path: "/v1/ride/start", body: dto.StartRideRequest{Pin: "4821"}, wantCode: http.StatusOK},
		{name: "Start wrong PIN", path: "/v1/ride/start", body: dto.StartRideRequest{Pin: "1111"}, err: errors.ErrInvalidPin, wantCode: http.StatusUnprocessableEntity, wantErr: "INVALID_PIN"},
		{name: "Start without PIN", path: "/v1/ride/start", body: map[string]string{}, wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
		{name: "Complete too far", path: "/v1/ride/complete", err: errors.ErrTooFarFromDestination, wantCode: http.StatusUnprocessableEntity, wantErr: "TOO_FAR_FROM_DESTINATION"},
		{name: "Cancel", path: "/v1/ride/cancel", body: dto.CancelRideRequest{Reason: "Changed plans"}, wantCode: http.StatusOK},
		{name: "Cancel disconnected", path: "/v1/ride/cancel", err: errors.Transport("CONNECT_ERROR", "Connection failed", nil), wantCode: http.StatusServiceUnavailable, wantErr: "CONNECT_ERROR"},
		{name: "Leave", path: "/v1/ride/leave", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &fakeCore{err: tt.err}
			r := setupRouter(core)

			w := do(r, http.MethodPost, tt.path, tt.body)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				var resp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantErr, resp.Code)
			}
		})
	}
}

// TestStartRide_ForwardsPin tests that the PIN reaches the core unchanged
func TestStartRide_ForwardsPin(t *testing.T) {
	core := &fakeCore{}
	r := setupRouter(core)

	do(r, http.MethodPost, "/v1/ride/start", dto.StartRideRequest{Pin: " 4821 "})

	assert.Equal(t, " 4821 ", core.pin)
}

// TestChatIntents tests the chat routes
func TestChatIntents(t *testing.T) {
	t.Run("Send", func(t *testing.T) {
		core := &fakeCore{}
		r := setupRouter(core)

		w := do(r, http.MethodPost, "/v1/chat/messages", dto.SendMessageRequest{Message: "On my way"})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "On my way", core.message)
		assert.Contains(t, w.Body.String(), `"ride_id":"B1"`)
	})

	t.Run("Bad type", func(t *testing.T) {
		r := setupRouter(&fakeCore{})
		w := do(r, http.MethodPost, "/v1/chat/messages", dto.SendMessageRequest{Message: "hi", Type: "video"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Empty message", func(t *testing.T) {
		r := setupRouter(&fakeCore{err: errors.ErrEmptyMessage})
		w := do(r, http.MethodPost, "/v1/chat/messages", dto.SendMessageRequest{Message: " "})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	for _, path := range []string{"/v1/chat/typing", "/v1/chat/attach", "/v1/chat/detach"} {
		t.Run(path, func(t *testing.T) {
			r := setupRouter(&fakeCore{})
			w := do(r, http.MethodPost, path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

// TestUpdateLocation tests position fixes from the device
func TestUpdateLocation(t *testing.T) {
	lat, lon := 12.9352, 77.6245

	t.Run("Valid", func(t *testing.T) {
		core := &fakeCore{}
		r := setupRouter(core)

		w := do(r, http.MethodPost, "/v1/location", dto.UpdateLocationRequest{Latitude: &lat, Longitude: &lon})

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, core.position)
		assert.Equal(t, lat, core.position.Latitude)
		assert.False(t, core.position.At.IsZero())
	})

	t.Run("Missing longitude", func(t *testing.T) {
		core := &fakeCore{}
		r := setupRouter(core)

		w := do(r, http.MethodPost, "/v1/location", map[string]float64{"latitude": lat})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, core.position)
	})
}
