package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/internal/testutil"
	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeChannel struct {
	*testutil.FakeSocket
	role identity.Role
	id   string
}

func (c fakeChannel) Identity() (identity.Role, string) { return c.role, c.id }

type fakeAPI struct {
	mu          sync.Mutex
	pinErr      error
	completeErr error
	pins        []string
	completions [][2]string
	// during runs inside the HTTP call, while the request is in flight.
	during func()
}

func (a *fakeAPI) VerifyPin(_ context.Context, bookingID, pin string) error {
	a.mu.Lock()
	a.pins = append(a.pins, bookingID+":"+pin)
	during := a.during
	a.mu.Unlock()
	if during != nil {
		during()
	}
	return a.pinErr
}

func (a *fakeAPI) CompleteRide(_ context.Context, bookingID, userID string) error {
	a.mu.Lock()
	a.completions = append(a.completions, [2]string{bookingID, userID})
	during := a.during
	a.mu.Unlock()
	if during != nil {
		during()
	}
	return a.completeErr
}

type countingAlerter struct{ offers []string }

func (a *countingAlerter) Alert(o ride.Offer) { a.offers = append(a.offers, o.BookingID) }

type recordingArchiver struct{ archived chan *ride.Ride }

func (a recordingArchiver) Archive(_ context.Context, r *ride.Ride) error {
	a.archived <- r
	return nil
}

type fixture struct {
	coord    *Coordinator
	clock    *clock.FakeClock
	store    *state.Store
	socket   *testutil.FakeSocket
	api      *fakeAPI
	tracker  *geolocation.Tracker
	recorder *notify.Recorder
	alerter  *countingAlerter
	archiver recordingArchiver
}

func newFixture(t *testing.T, role identity.Role) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clock.Fake(epoch),
		store:    state.New(),
		api:      &fakeAPI{},
		recorder: &notify.Recorder{},
		alerter:  &countingAlerter{},
		archiver: recordingArchiver{archived: make(chan *ride.Ride, 4)},
	}
	f.tracker = geolocation.NewTracker(f.clock, 0)
	dialer := &testutil.Dialer{}
	f.socket = dialer.Dial(websocket.SocketOptions{}, func(websocket.Frame) {})
	f.socket.Deliver(websocket.EventConnect, nil)

	f.coord = New(Config{}, Deps{
		Exec:     eventloop.Immediate{},
		Clock:    f.clock,
		Store:    f.store,
		Channel:  fakeChannel{FakeSocket: f.socket, role: role, id: "d1"},
		API:      f.api,
		Location: f.tracker,
		Notifier: f.recorder,
		Alerter:  f.alerter,
		Archiver: f.archiver,
		Logger:   logger.NewNop(),
	})
	return f
}

func offerRequest(bookingID string, timeoutMs int64) protocol.RideRequest {
	var req protocol.RideRequest
	req.RequestID = "req-" + bookingID
	req.BookingID = bookingID
	req.Customer.ID = "c1"
	req.Customer.Name = "Asha"
	req.Pickup = protocol.Location{Latitude: 12.9716, Longitude: 77.5946, Address: "MG Road"}
	req.Dropoff = protocol.Location{Latitude: 12.9352, Longitude: 77.6245, Address: "Koramangala"}
	req.RideDetails.FareAmount = 240
	req.RideDetails.SecurityPin = []byte(`"4821"`)
	req.RequestTimeout = timeoutMs
	return req
}

// acceptRide drives the offer through accept and its result
func (f *fixture) acceptRide(t *testing.T, bookingID string) {
	t.Helper()
	require.NoError(t, f.coord.ReceiveOffer(offerRequest(bookingID, 15000)))
	require.NoError(t, f.coord.Accept())
	require.NoError(t, f.coord.AcceptResult(protocol.AcceptResult{RideRef: protocol.RideRef{BookingID: bookingID}}))
	require.NotNil(t, f.store.Ride().Active)
}

// TestReceiveOffer_ExpiresOnce tests that a countdown running out emits exactly one decline
func TestReceiveOffer_ExpiresOnce(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 3000)))

	r := f.store.Ride()
	require.NotNil(t, r.Offer)
	assert.Equal(t, 3, r.Countdown)

	f.clock.Advance(time.Second)
	assert.Equal(t, 2, f.store.Ride().Countdown)
	assert.Zero(t, f.socket.Count(protocol.EmitDeclineBooking))

	f.clock.Advance(2 * time.Second)
	assert.Nil(t, f.store.Ride().Offer)
	assert.Equal(t, 1, f.socket.Count(protocol.EmitDeclineBooking))

	last, ok := f.socket.Last(protocol.EmitDeclineBooking)
	require.True(t, ok)
	var d protocol.OfferDecision
	require.NoError(t, last.Decode(&d))
	assert.Equal(t, protocol.OfferDecision{RequestID: "req-B1", BookingID: "B1", DriverID: "d1", Expired: true}, d)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, f.socket.Count(protocol.EmitDeclineBooking))
	assert.Zero(t, f.clock.PendingCount())
	assert.Contains(t, f.recorder.Dismissed(), notify.CodeRideOffer)
}

// TestReceiveOffer_SubSecondTimeout tests that a timeout under one second expires the offer at once
func TestReceiveOffer_SubSecondTimeout(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 500)))

	assert.Nil(t, f.store.Ride().Offer)
	assert.Equal(t, 1, f.socket.Count(protocol.EmitDeclineBooking))
}

// TestReceiveOffer_DefaultTimeout tests that a missing timeout falls back to thirty seconds
func TestReceiveOffer_DefaultTimeout(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 0)))
	assert.Equal(t, 30, f.store.Ride().Countdown)
}

// TestReceiveOffer_Replacement tests that a new offer resets the countdown and the old one never fires
func TestReceiveOffer_Replacement(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 3000)))
	f.clock.Advance(2 * time.Second)

	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B2", 5000)))
	r := f.store.Ride()
	require.NotNil(t, r.Offer)
	assert.Equal(t, "B2", r.Offer.BookingID)
	assert.Equal(t, 5, r.Countdown)

	f.clock.Advance(3 * time.Second)
	assert.Zero(t, f.socket.Count(protocol.EmitDeclineBooking))
	assert.Equal(t, 2, f.store.Ride().Countdown)

	f.clock.Advance(2 * time.Second)
	require.Equal(t, 1, f.socket.Count(protocol.EmitDeclineBooking))
	last, _ := f.socket.Last(protocol.EmitDeclineBooking)
	var d protocol.OfferDecision
	require.NoError(t, last.Decode(&d))
	assert.Equal(t, "B2", d.BookingID)

	assert.Equal(t, []string{"B1", "B2"}, f.alerter.offers)
}

// TestAccept tests the accept intent and its preconditions
func TestAccept(t *testing.T) {
	t.Run("Emits accept and clears the offer", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))

		require.NoError(t, f.coord.Accept())

		last, ok := f.socket.Last(protocol.EmitAcceptBooking)
		require.True(t, ok)
		var d protocol.OfferDecision
		require.NoError(t, last.Decode(&d))
		assert.Equal(t, protocol.OfferDecision{RequestID: "req-B1", BookingID: "B1", DriverID: "d1"}, d)
		assert.Nil(t, f.store.Ride().Offer)

		f.clock.Advance(time.Minute)
		assert.Zero(t, f.socket.Count(protocol.EmitDeclineBooking))
	})

	t.Run("No offer", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		assert.ErrorIs(t, f.coord.Accept(), errors.ErrNoActiveOffer)
	})

	t.Run("Disconnected keeps the offer", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))
		f.socket.Deliver(websocket.EventDisconnect, nil)

		assert.ErrorIs(t, f.coord.Accept(), errors.ErrNotConnected)
		assert.NotNil(t, f.store.Ride().Offer)
	})
}

// TestDecline tests that declining emits once and stops the countdown
func TestDecline(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))

	require.NoError(t, f.coord.Decline())
	assert.Nil(t, f.store.Ride().Offer)

	f.clock.Advance(time.Minute)
	require.Equal(t, 1, f.socket.Count(protocol.EmitDeclineBooking))
	last, _ := f.socket.Last(protocol.EmitDeclineBooking)
	var d protocol.OfferDecision
	require.NoError(t, last.Decode(&d))
	assert.False(t, d.Expired)

	assert.ErrorIs(t, f.coord.Decline(), errors.ErrNoActiveOffer)
}

// TestAcceptResult tests ride creation from the accept result
func TestAcceptResult(t *testing.T) {
	t.Run("Seeds the ride from the offer", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))
		require.NoError(t, f.coord.Accept())

		fare := 260.0
		require.NoError(t, f.coord.AcceptResult(protocol.AcceptResult{
			RideRef:    protocol.RideRef{BookingID: "B1"},
			FareAmount: &fare,
		}))

		active := f.store.Ride().Active
		require.NotNil(t, active)
		assert.Equal(t, ride.StatusAccepted, active.Status)
		assert.Equal(t, "c1", active.Customer.ID)
		assert.Equal(t, "4821", active.SecurityPin)
		assert.Equal(t, "Koramangala", active.Dropoff.Address)
		assert.Equal(t, 260.0, active.FareAmount)
		assert.Equal(t, state.PaymentNone, f.store.Ride().Payment)
		assert.Equal(t, "B1", f.coord.ActiveRideID())
	})

	t.Run("Failure notifies and creates nothing", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))
		require.NoError(t, f.coord.Accept())

		ok := false
		require.NoError(t, f.coord.AcceptResult(protocol.AcceptResult{
			RideRef: protocol.RideRef{BookingID: "B1"},
			Success: &ok,
			Message: "Ride already taken",
		}))

		assert.Nil(t, f.store.Ride().Active)
		assert.Contains(t, f.recorder.Codes(), notify.CodeAcceptFailed)
		assert.False(t, f.coord.Tracks("B1"))
	})
}

// TestTracks tests which ids the coordinator treats as current
func TestTracks(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	assert.False(t, f.coord.Tracks(""))

	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 10000)))
	assert.True(t, f.coord.Tracks("B1"))
	assert.True(t, f.coord.Tracks(""))
	assert.False(t, f.coord.Tracks("B9"))

	require.NoError(t, f.coord.Accept())
	assert.True(t, f.coord.Tracks("B1"), "offer awaiting its result is still tracked")
}

// TestStartRide tests the PIN gate
func TestStartRide(t *testing.T) {
	t.Run("Correct PIN starts the ride", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		f.acceptRide(t, "B1")
		f.tracker.Update(geolocation.Position{Latitude: 12.97, Longitude: 77.59})

		require.NoError(t, f.coord.StartRide(context.Background(), " 4821 "))

		assert.Equal(t, []string{"B1:4821"}, f.api.pins)
		r := f.store.Ride()
		assert.Equal(t, ride.StatusStarted, r.Active.Status)
		assert.NotNil(t, r.Active.StartedAt)
		assert.False(t, r.PinInFlight)

		last, ok := f.socket.Last(protocol.EmitRideStarted)
		require.True(t, ok)
		var p protocol.RideStarted
		require.NoError(t, last.Decode(&p))
		assert.Equal(t, "B1", p.BookingID)
		assert.Equal(t, "c1", p.UserID)
		assert.Equal(t, protocol.Coordinate{Latitude: 12.97, Longitude: 77.59}, p.DriverLocation)
		assert.Contains(t, f.recorder.Codes(), notify.CodeRideStarted)
	})

	t.Run("Wrong PIN keeps the ride accepted", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		f.acceptRide(t, "B1")
		f.api.pinErr = errors.ErrInvalidPin

		err := f.coord.StartRide(context.Background(), "0000")

		assert.ErrorIs(t, err, errors.ErrInvalidPin)
		r := f.store.Ride()
		assert.Equal(t, ride.StatusAccepted, r.Active.Status)
		assert.False(t, r.PinInFlight)
		assert.Equal(t, errors.ErrInvalidPin.Message, r.Inline)
		assert.Zero(t, f.socket.Count(protocol.EmitRideStarted))
		assert.Contains(t, f.recorder.Codes(), errors.ErrInvalidPin.Code)
	})

	t.Run("Empty PIN never reaches the API", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		f.acceptRide(t, "B1")

		assert.ErrorIs(t, f.coord.StartRide(context.Background(), "  "), errors.ErrInvalidPin)
		assert.Empty(t, f.api.pins)
	})

	t.Run("Second submit while in flight", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		f.acceptRide(t, "B1")
		var inner error
		f.api.during = func() { inner = f.coord.StartRide(context.Background(), "4821") }

		require.NoError(t, f.coord.StartRide(context.Background(), "4821"))
		assert.ErrorIs(t, inner, errors.ErrRequestInFlight)
		assert.Len(t, f.api.pins, 1)
	})

	t.Run("No ride", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		assert.ErrorIs(t, f.coord.StartRide(context.Background(), "4821"), errors.ErrNoActiveRide)
	})

	t.Run("Ride cleared while verifying", func(t *testing.T) {
		f := newFixture(t, identity.RoleDriver)
		f.acceptRide(t, "B1")
		f.api.during = func() { f.coord.Reset() }

		assert.ErrorIs(t, f.coord.StartRide(context.Background(), "4821"), errors.ErrNoActiveRide)
		assert.Zero(t, f.socket.Count(protocol.EmitRideStarted))
	})
}

// TestCompleteRide tests the proximity check in front of completion
func TestCompleteRide(t *testing.T) {
	tests := []struct {
		name     string
		position *geolocation.Position
		wantErr  error
		called   bool
	}{
		{
			name:     "At the drop-off",
			position: &geolocation.Position{Latitude: 12.9352, Longitude: 77.6245},
			called:   true,
		},
		{
			name:     "About 55 meters away",
			position: &geolocation.Position{Latitude: 12.9357, Longitude: 77.6245},
			called:   true,
		},
		{
			name:     "Two kilometers away",
			position: &geolocation.Position{Latitude: 12.9532, Longitude: 77.6245},
			wantErr:  errors.ErrTooFarFromDestination,
		},
		{
			name:    "No fix",
			wantErr: errors.ErrLocationUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identity.RoleDriver)
			f.acceptRide(t, "B1")
			require.NoError(t, f.coord.StartRide(context.Background(), "4821"))
			if tt.position != nil {
				f.tracker.Update(*tt.position)
			}

			err := f.coord.CompleteRide(context.Background())

			r := f.store.Ride()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, ride.StatusStarted, r.Active.Status)
				assert.NotEmpty(t, r.Inline)
			} else {
				require.NoError(t, err)
				assert.Equal(t, ride.StatusCompleted, r.Active.Status)
				assert.Equal(t, state.PaymentPending, r.Payment)
			}
			assert.False(t, r.CompletionInFlight)
			if tt.called {
				assert.Equal(t, [][2]string{{"B1", "c1"}}, f.api.completions)
			} else {
				assert.Empty(t, f.api.completions)
			}
		})
	}
}

// TestCompleteRide_RequiresStarted tests that an accepted ride cannot be completed
func TestCompleteRide_RequiresStarted(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	f.acceptRide(t, "B1")
	assert.ErrorIs(t, f.coord.CompleteRide(context.Background()), errors.ErrInvalidTransition)
}

// TestRideCompleted tests the server completion frame for each addressee
func TestRideCompleted(t *testing.T) {
	tests := []struct {
		name        string
		role        string
		wantPayment state.PaymentStatus
		navigates   bool
	}{
		{name: "Rider pays", role: "user", wantPayment: state.PaymentPending, navigates: true},
		{name: "Driver stays on the ride view", role: "driver", wantPayment: state.PaymentPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identity.RoleDriver)
			f.acceptRide(t, "B1")

			require.NoError(t, f.coord.RideCompleted(protocol.RideCompleted{
				RideRef: protocol.RideRef{BookingID: "B1"},
				Role:    tt.role,
			}))

			r := f.store.Ride()
			assert.Equal(t, ride.StatusCompleted, r.Active.Status)
			assert.Equal(t, tt.wantPayment, r.Payment)
			assert.Contains(t, f.recorder.Codes(), notify.CodeRideCompleted)
			if tt.navigates {
				require.Len(t, f.recorder.Navigations(), 1)
				assert.Equal(t, notify.TargetPayment, f.recorder.Navigations()[0].Target)
			} else {
				assert.Empty(t, f.recorder.Navigations())
			}
		})
	}
}

// TestCanceled tests cancellation by either party
func TestCanceled(t *testing.T) {
	tests := []struct {
		name       string
		canceledBy string
		wantCode   string
	}{
		{name: "Cancelled by the local driver", canceledBy: "driver", wantCode: notify.CodeCancelConfirm},
		{name: "Cancelled by the rider", canceledBy: "user", wantCode: notify.CodeRideCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identity.RoleDriver)
			f.acceptRide(t, "B1")
			cleared := 0
			f.coord.OnRideCleared(func() { cleared++ })

			require.NoError(t, f.coord.Canceled(protocol.Canceled{
				RideRef:    protocol.RideRef{RideID: "B1"},
				CanceledBy: tt.canceledBy,
				Reason:     "Changed plans",
			}))

			assert.Nil(t, f.store.Ride().Active)
			assert.Equal(t, 1, cleared)
			assert.Contains(t, f.recorder.Codes(), tt.wantCode)
			navs := f.recorder.Navigations()
			require.Len(t, navs, 1)
			assert.Equal(t, notify.TargetHome, navs[0].Target)

			select {
			case archived := <-f.archiver.archived:
				assert.Equal(t, ride.StatusCancelled, archived.Status)
				assert.Equal(t, "Changed plans", archived.EndReason)
			case <-time.After(time.Second):
				t.Fatal("cancelled ride was not archived")
			}
		})
	}
}

// TestCanceled_PendingOffer tests that cancelling an unanswered offer stops its countdown
func TestCanceled_PendingOffer(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 5000)))

	require.NoError(t, f.coord.Canceled(protocol.Canceled{RideRef: protocol.RideRef{BookingID: "B1"}, CanceledBy: "user"}))

	assert.Nil(t, f.store.Ride().Offer)
	f.clock.Advance(time.Minute)
	assert.Zero(t, f.socket.Count(protocol.EmitDeclineBooking))
}

// TestCancelRide tests the cancel intent
func TestCancelRide(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	assert.ErrorIs(t, f.coord.CancelRide("late"), errors.ErrNoActiveRide)

	f.acceptRide(t, "B1")
	require.NoError(t, f.coord.CancelRide("Vehicle issue"))

	last, ok := f.socket.Last(protocol.EmitCancelRide)
	require.True(t, ok)
	var p protocol.CancelRide
	require.NoError(t, last.Decode(&p))
	assert.Equal(t, protocol.CancelRide{BookingID: "B1", RideID: "B1", CancelledBy: "driver", Reason: "Vehicle issue"}, p)
	assert.NotNil(t, f.store.Ride().Active, "state waits for the canceled frame")
}

// TestLeaveRide tests that only a concluded ride can be left
func TestLeaveRide(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	f.acceptRide(t, "B1")
	assert.ErrorIs(t, f.coord.LeaveRide(), errors.ErrInvalidTransition)

	require.NoError(t, f.coord.RideCompleted(protocol.RideCompleted{RideRef: protocol.RideRef{BookingID: "B1"}, Role: "driver"}))
	require.NoError(t, f.coord.LeaveRide())
	assert.Nil(t, f.store.Ride().Active)
}

// TestReset tests that a reset clears the ride without archiving it
func TestReset(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	f.acceptRide(t, "B1")
	cleared := 0
	f.coord.OnRideCleared(func() { cleared++ })

	f.coord.Reset()

	assert.Nil(t, f.store.Ride().Active)
	assert.Equal(t, 1, cleared)
	assert.Empty(t, f.archiver.archived)
}

// TestHalt tests that teardown silences a pending countdown
func TestHalt(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 3000)))

	f.coord.Halt()
	f.clock.Advance(time.Minute)

	assert.Nil(t, f.store.Ride().Offer)
	assert.Zero(t, f.socket.Count(protocol.EmitDeclineBooking))
}

// TestDriverAssigned tests the requesting side's view of an assignment
func TestDriverAssigned(t *testing.T) {
	f := newFixture(t, identity.RoleRider)
	p := protocol.DriverAssigned{RideRef: protocol.RideRef{BookingID: "B7"}, FareAmount: 180}
	p.Driver.ID = "d9"
	p.Driver.Name = "Ravi"

	require.NoError(t, f.coord.DriverAssigned(p))

	active := f.store.Ride().Active
	require.NotNil(t, active)
	assert.Equal(t, "B7", active.BookingID)
	assert.Equal(t, ride.StatusAccepted, active.Status)
	require.NotNil(t, active.Driver)
	assert.Equal(t, "Ravi", active.Driver.Name)
	assert.True(t, f.coord.Tracks("B7"))

	notes := f.recorder.Notifications()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, notify.CodeDriverAssigned, last.Code)
	assert.Equal(t, "Driver Ravi is on the way", last.Message)
}

// TestNoDrivers tests that an unanswered request only raises a notice
func TestNoDrivers(t *testing.T) {
	tests := []struct {
		name    string
		notice  protocol.Notice
		message string
	}{
		{name: "Default message", message: "No drivers available right now"},
		{name: "Server message", notice: protocol.Notice{Message: "Try again in a minute"}, message: "Try again in a minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identity.RoleRider)

			f.coord.NoDrivers(tt.notice)

			assert.Nil(t, f.store.Ride().Active)
			notes := f.recorder.Notifications()
			require.Len(t, notes, 1)
			assert.Equal(t, notify.CodeNoDrivers, notes[0].Code)
			assert.Equal(t, tt.message, notes[0].Message)
		})
	}
}

// TestAcceptResult_AfterOfferResolved tests that a declined or expired offer
// is no longer tracked and its late accept result creates nothing
func TestAcceptResult_AfterOfferResolved(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(f *fixture)
	}{
		{name: "Declined", resolve: func(f *fixture) { require.NoError(t, f.coord.Decline()) }},
		{name: "Expired", resolve: func(f *fixture) { f.clock.Advance(31 * time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identity.RoleDriver)
			require.NoError(t, f.coord.ReceiveOffer(offerRequest("B1", 30000)))

			tt.resolve(f)

			assert.False(t, f.coord.Tracks("B1"))
			assert.False(t, f.coord.Tracks(""))
			err := f.coord.AcceptResult(protocol.AcceptResult{RideRef: protocol.RideRef{BookingID: "B1"}})
			assert.ErrorIs(t, err, errors.ErrStaleFrame)
			assert.Nil(t, f.store.Ride().Active)
		})
	}
}

// TestAcceptResult_NothingAwaiting tests that an id-less result never
// creates a ride on its own
func TestAcceptResult_NothingAwaiting(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)

	err := f.coord.AcceptResult(protocol.AcceptResult{})

	assert.ErrorIs(t, err, errors.ErrStaleFrame)
	assert.Nil(t, f.store.Ride().Active)
}

// TestStartRide_SurvivesReopen tests that a PIN verified across a channel
// reopen for the same identity still starts the ride
func TestStartRide_SurvivesReopen(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	f.acceptRide(t, "B1")
	f.api.during = func() {
		f.coord.Halt()
		assert.True(t, f.store.Ride().PinInFlight)
	}

	require.NoError(t, f.coord.StartRide(context.Background(), "4821"))

	assert.Equal(t, ride.StatusStarted, f.store.Ride().Active.Status)
	assert.Equal(t, 1, f.socket.Count(protocol.EmitRideStarted))
	assert.False(t, f.store.Ride().PinInFlight)
}

// TestCanceled_Failed tests that a server abort ends the ride as failed
func TestCanceled_Failed(t *testing.T) {
	f := newFixture(t, identity.RoleDriver)
	f.acceptRide(t, "B1")

	require.NoError(t, f.coord.Canceled(protocol.Canceled{
		RideRef:    protocol.RideRef{BookingID: "B1"},
		CanceledBy: "driver",
		Reason:     "Payment authorization failed",
		Status:     "failed",
	}))

	assert.Nil(t, f.store.Ride().Active)
	notes := f.recorder.Notifications()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, notify.LevelError, last.Level)
	assert.Equal(t, "The ride could not continue: Payment authorization failed", last.Message)
	assert.NotContains(t, f.recorder.Codes(), notify.CodeCancelConfirm)

	select {
	case archived := <-f.archiver.archived:
		assert.Equal(t, ride.StatusFailed, archived.Status)
	case <-time.After(time.Second):
		t.Fatal("failed ride was not archived")
	}
}
