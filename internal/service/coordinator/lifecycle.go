package coordinator

import (
	"context"
	"strings"

	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

// StartRide verifies pin and moves the ride to started. It blocks on the
// HTTP call and must be called off the event loop. A second call while one
// is in flight returns ErrRequestInFlight.
func (c *Coordinator) StartRide(ctx context.Context, pin string) error {
	var bookingID string
	var err error
	if doErr := c.exec.Do(func() { bookingID, err = c.beginStart(pin) }); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.APITimeout)
	verifyErr := c.api.VerifyPin(callCtx, bookingID, strings.TrimSpace(pin))
	cancel()

	if doErr := c.exec.Do(func() { err = c.finishStart(ctx, bookingID, verifyErr) }); doErr != nil {
		return doErr
	}
	return err
}

func (c *Coordinator) beginStart(pin string) (string, error) {
	r := c.store.Ride()
	if r.Active == nil {
		return "", errors.ErrNoActiveRide
	}
	if !r.Active.CanStart() {
		return "", errors.ErrInvalidTransition
	}
	if r.PinInFlight {
		return "", errors.ErrRequestInFlight
	}
	if strings.TrimSpace(pin) == "" {
		return "", c.reject(errors.ErrInvalidPin)
	}
	c.store.UpdateRide(func(s *state.Ride) {
		s.PinInFlight = true
		s.Inline = ""
	})
	return r.Active.BookingID, nil
}

func (c *Coordinator) finishStart(ctx context.Context, bookingID string, verifyErr error) error {
	r := c.store.Ride()
	c.store.UpdateRide(func(s *state.Ride) { s.PinInFlight = false })
	if !r.Active.Matches(bookingID) || !r.PinInFlight {
		// The ride ended or the session was torn down while verifying.
		return errors.ErrNoActiveRide
	}
	if verifyErr != nil {
		c.logger.Info("PIN verification failed", logger.String("booking_id", bookingID), logger.Err(verifyErr))
		return c.reject(verifyErr)
	}

	_, userID := c.channel.Identity()
	loc := protocol.Coordinate{Latitude: r.Active.Pickup.Latitude, Longitude: r.Active.Pickup.Longitude}
	if c.location != nil {
		if pos, err := c.location.Current(ctx); err == nil {
			loc = protocol.Coordinate{Latitude: pos.Latitude, Longitude: pos.Longitude}
		}
	}
	err := c.channel.Emit(protocol.EmitRideStarted, protocol.RideStarted{
		BookingID:      bookingID,
		UserID:         r.Active.Customer.ID,
		DriverLocation: loc,
	})
	if err != nil {
		return c.reject(err)
	}

	var transitionErr error
	c.store.UpdateRide(func(s *state.Ride) {
		transitionErr = s.Active.Transition(ride.StatusStarted, c.clock.Now())
	})
	if transitionErr != nil {
		return errors.WithCause(errors.ErrInvalidTransition, transitionErr)
	}
	c.metrics.RideTransition(string(ride.StatusStarted))
	c.notifier.Notify(notify.New(notify.LevelSuccess, notify.CodeRideStarted, "Ride started"))
	c.logger.Info("Ride started",
		logger.String("booking_id", bookingID),
		logger.String("driver_id", userID),
	)
	return nil
}

// CompleteRide checks that the device is within the completion radius of
// the drop-off and reports completion. Like StartRide it blocks and must be
// called off the event loop.
func (c *Coordinator) CompleteRide(ctx context.Context) error {
	var bookingID, userID string
	var err error
	if doErr := c.exec.Do(func() { bookingID, userID, err = c.beginComplete(ctx) }); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.APITimeout)
	apiErr := c.api.CompleteRide(callCtx, bookingID, userID)
	cancel()

	if doErr := c.exec.Do(func() { err = c.finishComplete(bookingID, apiErr) }); doErr != nil {
		return doErr
	}
	return err
}

func (c *Coordinator) beginComplete(ctx context.Context) (string, string, error) {
	r := c.store.Ride()
	if r.Active == nil {
		return "", "", errors.ErrNoActiveRide
	}
	if !r.Active.CanComplete() {
		return "", "", errors.ErrInvalidTransition
	}
	if r.CompletionInFlight {
		return "", "", errors.ErrRequestInFlight
	}
	if c.location == nil {
		return "", "", c.reject(errors.ErrLocationUnavailable)
	}
	pos, err := c.location.Current(ctx)
	if err != nil {
		return "", "", c.reject(errors.WithCause(errors.ErrLocationUnavailable, err))
	}
	dest := r.Active.Dropoff
	distance := geolocation.Distance(pos.Latitude, pos.Longitude, dest.Latitude, dest.Longitude)
	if distance > c.cfg.CompletionRadius {
		c.logger.Info("Completion blocked by proximity check",
			logger.String("booking_id", r.Active.BookingID),
			logger.Float64("distance_m", distance),
			logger.Float64("radius_m", c.cfg.CompletionRadius),
		)
		return "", "", c.reject(errors.ErrTooFarFromDestination)
	}
	c.store.UpdateRide(func(s *state.Ride) {
		s.CompletionInFlight = true
		s.Inline = ""
	})
	return r.Active.BookingID, r.Active.Customer.ID, nil
}

func (c *Coordinator) finishComplete(bookingID string, apiErr error) error {
	r := c.store.Ride()
	c.store.UpdateRide(func(s *state.Ride) { s.CompletionInFlight = false })
	if !r.Active.Matches(bookingID) || !r.CompletionInFlight {
		return errors.ErrNoActiveRide
	}
	if apiErr != nil {
		c.logger.Warn("Ride completion failed", logger.String("booking_id", bookingID), logger.Err(apiErr))
		return c.reject(apiErr)
	}

	var transitionErr error
	c.store.UpdateRide(func(s *state.Ride) {
		transitionErr = s.Active.Transition(ride.StatusCompleted, c.clock.Now())
		if transitionErr == nil {
			s.Payment = state.PaymentPending
		}
	})
	if transitionErr != nil {
		// A rideCompleted frame may have won the race.
		if c.store.Ride().Active.Status == ride.StatusCompleted {
			return nil
		}
		return errors.WithCause(errors.ErrInvalidTransition, transitionErr)
	}
	c.metrics.RideTransition(string(ride.StatusCompleted))
	c.logger.Info("Ride completed by driver", logger.String("booking_id", bookingID))
	return nil
}

// reject surfaces a business rejection inline and as a notification. The
// ride state is left untouched.
func (c *Coordinator) reject(err error) error {
	n := notify.FromError(err)
	c.store.UpdateRide(func(s *state.Ride) { s.Inline = n.Message })
	c.notifier.Notify(n)
	return err
}
