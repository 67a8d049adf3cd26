package dispatch

import (
	"encoding/json"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/websocket"
)

func handleConnect(env *Env, _ json.RawMessage) error {
	env.Session.MarkConnected()
	return nil
}

func handleDisconnect(env *Env, data json.RawMessage) error {
	var p websocket.ErrorPayload
	_ = protocol.Decode(data, &p)
	env.Session.MarkDisconnected(p.Message)
	return nil
}

func handleError(event string) Handler {
	return func(env *Env, data json.RawMessage) error {
		var p websocket.ErrorPayload
		_ = protocol.Decode(data, &p)
		env.Session.MarkError(event, p.Message)
		return nil
	}
}

func handleReconnectFailed(env *Env, _ json.RawMessage) error {
	env.Session.MarkGaveUp()
	return nil
}

func handleTokenRefreshed(env *Env, data json.RawMessage) error {
	var p protocol.TokenRefreshed
	if err := protocol.Decode(data, &p); err != nil {
		return errors.Protocol("INVALID_TOKEN_REFRESH", "Malformed token refresh", err)
	}
	return env.Session.RotateCredentials(p)
}

func handleUserBlocked(env *Env, data json.RawMessage) error {
	var p protocol.UserBlocked
	_ = protocol.Decode(data, &p)
	env.Session.Block(p)
	return nil
}

func handleRideRequest(env *Env, data json.RawMessage) error {
	var req protocol.RideRequest
	err := protocol.Decode(data, &req)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		env.Notifier.Notify(notify.New(notify.LevelError, notify.CodeInvalidOffer, errors.ErrInvalidOffer.Message))
		return errors.WithCause(errors.ErrInvalidOffer, err)
	}
	return env.Rides.ReceiveOffer(req)
}

func handleAcceptResult(env *Env, data json.RawMessage) error {
	var res protocol.AcceptResult
	if err := protocol.Decode(data, &res); err != nil {
		return errors.Protocol("INVALID_ACCEPT_RESULT", "Malformed accept result", err)
	}
	if !env.Rides.Tracks(res.ID()) {
		return errors.ErrStaleFrame
	}
	return env.Rides.AcceptResult(res)
}

func handleDriverAssigned(env *Env, data json.RawMessage) error {
	var p protocol.DriverAssigned
	if err := protocol.Decode(data, &p); err != nil {
		return errors.Protocol("INVALID_ASSIGNMENT", "Malformed driver assignment", err)
	}
	return env.Rides.DriverAssigned(p)
}

func handleNoDrivers(env *Env, data json.RawMessage) error {
	var p protocol.Notice
	_ = protocol.Decode(data, &p)
	env.Rides.NoDrivers(p)
	return nil
}

func handleRideCompleted(env *Env, data json.RawMessage) error {
	var p protocol.RideCompleted
	if err := protocol.Decode(data, &p); err != nil {
		return errors.Protocol("INVALID_COMPLETION", "Malformed ride completion", err)
	}
	if !env.Rides.Tracks(p.ID()) {
		return errors.ErrStaleFrame
	}
	return env.Rides.RideCompleted(p)
}

func handleCanceled(env *Env, data json.RawMessage) error {
	var p protocol.Canceled
	if err := protocol.Decode(data, &p); err != nil {
		return errors.Protocol("INVALID_CANCEL", "Malformed cancellation", err)
	}
	if !env.Rides.Tracks(p.ID()) {
		return errors.ErrStaleFrame
	}
	return env.Rides.Canceled(p)
}

func handleReceiveMessage(env *Env, data json.RawMessage) error {
	var m protocol.ChatMessage
	if err := protocol.Decode(data, &m); err != nil {
		return errors.Protocol("INVALID_MESSAGE", "Malformed chat message", err)
	}
	active := env.Rides.ActiveRideID()
	if active == "" || (m.RideID != "" && m.RideID != active) {
		return errors.ErrStaleFrame
	}
	return env.Chat.Receive(m)
}

// handleTyping only acts for the local role that listens to this frame: a
// driver follows the rider's typing and vice versa.
func handleTyping(listener identity.Role) Handler {
	return func(env *Env, data json.RawMessage) error {
		if role, _ := env.Session.Identity(); role != listener {
			return nil
		}
		var t protocol.Typing
		if err := protocol.Decode(data, &t); err != nil {
			return errors.Protocol("INVALID_TYPING", "Malformed typing frame", err)
		}
		if active := env.Rides.ActiveRideID(); active == "" || t.RideID != active {
			return errors.ErrStaleFrame
		}
		return env.Chat.PeerTyping(t)
	}
}
