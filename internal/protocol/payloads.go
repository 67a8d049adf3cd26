package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
)

// Location mirrors a LocationPoint on the wire
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

func (l Location) toDomain() ride.LocationPoint {
	return ride.LocationPoint{Latitude: l.Latitude, Longitude: l.Longitude, Address: l.Address}
}

// Coordinate is a bare position, used for driverLocation
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RideRef is how frames name a ride; servers use either key.
type RideRef struct {
	BookingID string `json:"bookingId,omitempty"`
	RideID    string `json:"rideId,omitempty"`
}

// ID returns whichever identifier the frame carried
func (r RideRef) ID() string {
	if r.BookingID != "" {
		return r.BookingID
	}
	return r.RideID
}

// TokenRefreshed is the payload of token_refreshed
type TokenRefreshed struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// UserBlocked is the payload of user-blocked
type UserBlocked struct {
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// RideRequest is the payload of ride:request
type RideRequest struct {
	RequestID string `json:"requestId"`
	BookingID string `json:"bookingId"`
	Customer  struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"customer"`
	Pickup      Location `json:"pickup"`
	Dropoff     Location `json:"dropoff"`
	RideDetails struct {
		EstimatedDistance json.RawMessage `json:"estimatedDistance"`
		EstimatedDuration json.RawMessage `json:"estimatedDuration"`
		FareAmount        float64         `json:"fareAmount"`
		VehicleType       string          `json:"vehicleType"`
		SecurityPin       json.RawMessage `json:"securityPin"`
	} `json:"rideDetails"`
	// RequestTimeout is in milliseconds.
	RequestTimeout int64 `json:"requestTimeout"`
}

// Validate checks the fields an offer cannot do without
func (r RideRequest) Validate() error {
	if strings.TrimSpace(r.BookingID) == "" {
		return fmt.Errorf("ride request has no booking id")
	}
	return nil
}

// Offer converts the request into a domain offer. A non-positive timeout
// is replaced by fallback.
func (r RideRequest) Offer(receivedAt time.Time, fallback time.Duration) ride.Offer {
	timeout := time.Duration(r.RequestTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = fallback
	}
	return ride.Offer{
		RequestID: r.RequestID,
		BookingID: r.BookingID,
		Customer: ride.Customer{
			ID:        r.Customer.ID,
			Name:      r.Customer.Name,
			AvatarURL: r.Customer.Avatar,
		},
		Pickup:  r.Pickup.toDomain(),
		Dropoff: r.Dropoff.toDomain(),
		Details: ride.Details{
			EstimatedDistance: looseString(r.RideDetails.EstimatedDistance),
			EstimatedDuration: looseString(r.RideDetails.EstimatedDuration),
			FareAmount:        r.RideDetails.FareAmount,
			VehicleType:       r.RideDetails.VehicleType,
			SecurityPin:       looseString(r.RideDetails.SecurityPin),
		},
		RequestTimeout: timeout,
		ReceivedAt:     receivedAt,
	}
}

// AcceptResult is the payload of booking:accept:result
type AcceptResult struct {
	RideRef
	// Success is absent on servers that only report successful accepts.
	Success    *bool     `json:"success,omitempty"`
	Message    string    `json:"message,omitempty"`
	Pickup     *Location `json:"pickup,omitempty"`
	Dropoff    *Location `json:"dropoff,omitempty"`
	FareAmount *float64  `json:"fareAmount,omitempty"`
}

// Succeeded reports whether the server confirmed the accept
func (a AcceptResult) Succeeded() bool {
	return a.Success == nil || *a.Success
}

// Apply overlays the result's fields on a ride seeded from the offer
func (a AcceptResult) Apply(r *ride.Ride) {
	if id := a.ID(); id != "" {
		r.BookingID = id
	}
	if a.Pickup != nil {
		r.Pickup = a.Pickup.toDomain()
	}
	if a.Dropoff != nil {
		r.Dropoff = a.Dropoff.toDomain()
	}
	if a.FareAmount != nil {
		r.FareAmount = *a.FareAmount
	}
}

// DriverAssigned is the payload of booking:driver:assigned
type DriverAssigned struct {
	RideRef
	Message string `json:"message,omitempty"`
	Driver  struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		Phone        string  `json:"phone"`
		Avatar       string  `json:"avatar"`
		VehicleModel string  `json:"vehicleModel"`
		VehiclePlate string  `json:"vehiclePlate"`
		Rating       float64 `json:"rating"`
	} `json:"driver"`
	Pickup      Location        `json:"pickup"`
	Dropoff     Location        `json:"dropoff"`
	FareAmount  float64         `json:"fareAmount"`
	SecurityPin json.RawMessage `json:"securityPin"`
}

// Ride builds the requesting side's ride record
func (d DriverAssigned) Ride(at time.Time) *ride.Ride {
	return &ride.Ride{
		BookingID:  d.ID(),
		Status:     ride.StatusAccepted,
		Pickup:     d.Pickup.toDomain(),
		Dropoff:    d.Dropoff.toDomain(),
		FareAmount: d.FareAmount,
		Driver: &ride.Driver{
			ID:           d.Driver.ID,
			Name:         d.Driver.Name,
			Phone:        d.Driver.Phone,
			AvatarURL:    d.Driver.Avatar,
			VehicleModel: d.Driver.VehicleModel,
			VehiclePlate: d.Driver.VehiclePlate,
			Rating:       d.Driver.Rating,
		},
		SecurityPin: looseString(d.SecurityPin),
		AcceptedAt:  at,
	}
}

// Notice is a payload that only carries a message (booking:no_drivers)
type Notice struct {
	Message string `json:"message,omitempty"`
}

// RideCompleted is the payload of rideCompleted
type RideCompleted struct {
	RideRef
	// Role tags which party the frame is addressed to ("user" or "driver").
	Role       string   `json:"role"`
	FareAmount *float64 `json:"fareAmount,omitempty"`
}

// Canceled is the payload of canceled
type Canceled struct {
	RideRef
	// CanceledBy is "user" or "driver".
	CanceledBy string `json:"canceledBy"`
	Reason     string `json:"reason,omitempty"`
	// Status is "failed" when the server aborted the ride; anything else is a cancellation.
	Status string `json:"status,omitempty"`
}

// Outcome is the terminal status the frame moves the ride to
func (c Canceled) Outcome() ride.Status {
	if ride.Status(strings.ToLower(c.Status)) == ride.StatusFailed {
		return ride.StatusFailed
	}
	return ride.StatusCancelled
}

// ChatMessage is the payload of receiveMessage
type ChatMessage struct {
	RideID    string `json:"rideId"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	FileURL   string `json:"fileUrl,omitempty"`
}

// Domain converts the frame into a chat message
func (m ChatMessage) Domain() chat.Message {
	t := chat.Type(m.Type)
	if !t.IsValid() {
		t = chat.TypeText
	}
	return chat.Message{
		Sender:    chat.Sender(m.Sender),
		Content:   m.Message,
		Timestamp: m.Timestamp,
		Type:      t,
		FileURL:   m.FileURL,
	}
}

// Typing is the payload of userTyping/driverTyping
type Typing struct {
	RideID   string `json:"rideId"`
	IsTyping *bool  `json:"isTyping,omitempty"`
}

// Active reports the typing state; frames without the flag mean "started".
func (t Typing) Active() bool {
	return t.IsTyping == nil || *t.IsTyping
}

// Party identifies the local user in outbound frames as userId or driverId
type Party struct {
	UserID   string `json:"userId,omitempty"`
	DriverID string `json:"driverId,omitempty"`
}

// SendMessage is the outbound sendMessage payload
type SendMessage struct {
	RideID    string      `json:"rideId"`
	Sender    chat.Sender `json:"sender"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Type      chat.Type   `json:"type"`
	FileURL   string      `json:"fileUrl,omitempty"`
	Party
}

// TypingOut is the outbound typing payload
type TypingOut struct {
	RideID   string      `json:"rideId"`
	Sender   chat.Sender `json:"sender"`
	IsTyping bool        `json:"isTyping"`
	Party
}

// RideStarted is the outbound rideStarted payload
type RideStarted struct {
	BookingID      string     `json:"bookingId"`
	UserID         string     `json:"userId"`
	DriverLocation Coordinate `json:"driverLocation"`
}

// OfferDecision is the outbound booking:accept / booking:decline payload
type OfferDecision struct {
	RequestID string `json:"requestId"`
	BookingID string `json:"bookingId"`
	DriverID  string `json:"driverId"`
	// Expired marks a decline produced by the countdown running out.
	Expired bool `json:"expired,omitempty"`
}

// CancelRide is the outbound cancelRide payload
type CancelRide struct {
	BookingID   string `json:"bookingId"`
	RideID      string `json:"rideId"`
	CancelledBy string `json:"cancelledBy"`
	Reason      string `json:"reason,omitempty"`
}

// Decode unmarshals a frame payload into v. Empty data decodes to the
// zero value.
func Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// looseString accepts a JSON string or number and returns its text form.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
