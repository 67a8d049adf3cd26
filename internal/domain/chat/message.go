package chat

import (
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderDriver Sender = "driver"
	SenderUser   Sender = "user"
)

// SenderFor maps a local role to its chat sender tag
func SenderFor(role identity.Role) Sender {
	if role == identity.RoleDriver {
		return SenderDriver
	}
	return SenderUser
}

// Type is the content type of a message
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
)

// IsValid validates the message type
func (t Type) IsValid() bool {
	switch t {
	case TypeText, TypeImage:
		return true
	}
	return false
}

// Message is one chat entry. Messages are append-only and ordered by
// arrival at the client, not by Timestamp.
type Message struct {
	// LocalID is assigned on the client and never reconciled with the server.
	LocalID   string `json:"localId,omitempty"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Type      Type   `json:"type"`
	FileURL   string `json:"fileUrl,omitempty"`
}

// FormatTimestamp renders t the way message timestamps travel on the wire
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
