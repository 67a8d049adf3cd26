package ride

import (
	"errors"
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/chat"
)

// Status represents ride status after acceptance
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// LocationPoint is a geographic point with its human readable address
type LocationPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Customer is the requesting party as seen by the driver
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Driver is the fulfilling party as seen by the rider
type Driver struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone,omitempty"`
	AvatarURL    string  `json:"avatarUrl,omitempty"`
	VehicleModel string  `json:"vehicleModel,omitempty"`
	VehiclePlate string  `json:"vehiclePlate,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
}

// Details carries the estimates attached to an offer
type Details struct {
	EstimatedDistance string  `json:"estimatedDistance,omitempty"`
	EstimatedDuration string  `json:"estimatedDuration,omitempty"`
	FareAmount        float64 `json:"fareAmount"`
	VehicleType       string  `json:"vehicleType,omitempty"`
	SecurityPin       string  `json:"securityPin,omitempty"`
}

// Offer is an incoming ride proposal awaiting a decision
type Offer struct {
	RequestID      string        `json:"requestId"`
	BookingID      string        `json:"bookingId"`
	Customer       Customer      `json:"customer"`
	Pickup         LocationPoint `json:"pickup"`
	Dropoff        LocationPoint `json:"dropoff"`
	Details        Details       `json:"rideDetails"`
	RequestTimeout time.Duration `json:"-"`
	ReceivedAt     time.Time     `json:"receivedAt"`
}

// CountdownSeconds converts the request timeout to whole seconds
func (o Offer) CountdownSeconds() int {
	return int(o.RequestTimeout / time.Second)
}

// Ride is the accepted trip record
type Ride struct {
	BookingID    string         `json:"bookingId"`
	Status       Status         `json:"status"`
	Pickup       LocationPoint  `json:"pickup"`
	Dropoff      LocationPoint  `json:"dropoff"`
	FareAmount   float64        `json:"fareAmount"`
	Customer     Customer       `json:"customer"`
	Driver       *Driver        `json:"driver,omitempty"`
	SecurityPin  string         `json:"securityPin,omitempty"`
	VehicleType  string         `json:"vehicleType,omitempty"`
	ChatMessages []chat.Message `json:"chatMessages"`
	AcceptedAt   time.Time      `json:"acceptedAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	EndedAt      *time.Time     `json:"endedAt,omitempty"`
	EndReason    string         `json:"endReason,omitempty"`
}

// Errors
var (
	ErrInvalidStatus = errors.New("invalid status transition")
)

// FromOffer seeds an accepted ride from the offer it came from
func FromOffer(o Offer, at time.Time) *Ride {
	return &Ride{
		BookingID:   o.BookingID,
		Status:      StatusAccepted,
		Pickup:      o.Pickup,
		Dropoff:     o.Dropoff,
		FareAmount:  o.Details.FareAmount,
		Customer:    o.Customer,
		SecurityPin: o.Details.SecurityPin,
		VehicleType: o.Details.VehicleType,
		AcceptedAt:  at,
	}
}

// CanStart checks if ride can be started
func (r *Ride) CanStart() bool {
	return r.Status == StatusAccepted
}

// CanComplete checks if ride can be completed
func (r *Ride) CanComplete() bool {
	return r.Status == StatusStarted
}

// Transition moves the ride forward. accepted -> started -> completed is
// monotonic; cancelled and failed are reachable from any non-terminal status.
func (r *Ride) Transition(to Status, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrInvalidStatus
	}
	switch to {
	case StatusStarted:
		if !r.CanStart() {
			return ErrInvalidStatus
		}
		r.StartedAt = &at
	case StatusCompleted:
		if !r.CanComplete() {
			return ErrInvalidStatus
		}
		r.EndedAt = &at
	case StatusCancelled, StatusFailed:
		r.EndedAt = &at
	default:
		return ErrInvalidStatus
	}
	r.Status = to
	return nil
}

// Matches reports whether id names this ride
func (r *Ride) Matches(id string) bool {
	return r != nil && id != "" && r.BookingID == id
}

// AppendMessage adds a chat message in arrival order
func (r *Ride) AppendMessage(m chat.Message) {
	r.ChatMessages = append(r.ChatMessages, m)
}

// Clone returns a deep copy safe to hand to readers
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	out := *r
	out.ChatMessages = append([]chat.Message(nil), r.ChatMessages...)
	if r.Driver != nil {
		d := *r.Driver
		out.Driver = &d
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return &out
}
