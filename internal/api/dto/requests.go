package dto

import (
	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/gocomet/ride-realtime/internal/state"
)

// IdentityRequest logs a role in on this device
type IdentityRequest struct {
	Role         string `json:"role" binding:"required,oneof=rider user driver admin"`
	ID           string `json:"id"`
	Token        string `json:"token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

// StartRideRequest carries the PIN read out by the rider
type StartRideRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// CancelRideRequest carries an optional cancellation reason
type CancelRideRequest struct {
	Reason string `json:"reason"`
}

// SendMessageRequest is a chat message from the composer
type SendMessageRequest struct {
	Message string `json:"message"`
	Type    string `json:"type" binding:"omitempty,oneof=text image"`
	FileURL string `json:"file_url"`
}

// UpdateLocationRequest is a position fix from the device
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Accuracy  float64  `json:"accuracy"`
}

// SessionResponse is the session slice
type SessionResponse struct {
	Status     state.SessionStatus `json:"status"`
	Role       identity.Role       `json:"role,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
	Generation uint64              `json:"generation"`
}

// NewSessionResponse converts the session slice
func NewSessionResponse(s state.Session) SessionResponse {
	return SessionResponse{Status: s.Status, Role: s.Role, UserID: s.UserID, Generation: s.Generation}
}

// RideResponse is the ride slice
type RideResponse struct {
	Offer              *ride.Offer         `json:"offer"`
	Countdown          int                 `json:"countdown"`
	Ride               *ride.Ride          `json:"ride"`
	PaymentStatus      state.PaymentStatus `json:"payment_status,omitempty"`
	PinInFlight        bool                `json:"pin_in_flight"`
	CompletionInFlight bool                `json:"completion_in_flight"`
	Error              string              `json:"error,omitempty"`
}

// NewRideResponse converts the ride slice
func NewRideResponse(r state.Ride) RideResponse {
	return RideResponse{
		Offer:              r.Offer,
		Countdown:          r.Countdown,
		Ride:               r.Active,
		PaymentStatus:      r.Payment,
		PinInFlight:        r.PinInFlight,
		CompletionInFlight: r.CompletionInFlight,
		Error:              r.Inline,
	}
}

// ChatResponse is the chat slice
type ChatResponse struct {
	RideID          string              `json:"ride_id,omitempty"`
	Messages        []chat.Message      `json:"messages"`
	Connection      state.SessionStatus `json:"connection"`
	RecipientTyping bool                `json:"recipient_typing"`
	Unread          int                 `json:"unread"`
	Attached        bool                `json:"attached"`
}

// NewChatResponse converts the chat slice
func NewChatResponse(c state.Chat) ChatResponse {
	return ChatResponse{
		RideID:          c.RideID,
		Messages:        c.Messages,
		Connection:      c.Connection,
		RecipientTyping: c.RecipientTyping,
		Unread:          c.Unread,
		Attached:        c.Attached,
	}
}

// ErrorResponse is returned by failed requests
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse is returned by intents
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
