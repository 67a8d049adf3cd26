package protocol

import ws "github.com/gocomet/ride-realtime/pkg/websocket"

// Inbound frame names
const (
	EventConnect         = ws.EventConnect
	EventDisconnect      = ws.EventDisconnect
	EventConnectError    = ws.EventConnectError
	EventError           = ws.EventError
	EventReconnectFailed = ws.EventReconnectFailed

	EventTokenRefreshed = "token_refreshed"
	EventUserBlocked    = "user-blocked"

	EventRideRequest    = "ride:request"
	EventAcceptResult   = "booking:accept:result"
	EventDriverAssigned = "booking:driver:assigned"
	EventNoDrivers      = "booking:no_drivers"
	EventRideCompleted  = "rideCompleted"
	EventCanceled       = "canceled"
	EventReceiveMessage = "receiveMessage"
	EventUserTyping     = "userTyping"
	EventDriverTyping   = "driverTyping"
)

// Outbound frame names
const (
	EmitSendMessage    = "sendMessage"
	EmitTyping         = "typing"
	EmitRideStarted    = "rideStarted"
	EmitAcceptBooking  = "booking:accept"
	EmitDeclineBooking = "booking:decline"
	EmitCancelRide     = "cancelRide"
)

// Connection parameter names passed at channel-open time
const (
	ParamToken        = "token"
	ParamRefreshToken = "refreshToken"
)
