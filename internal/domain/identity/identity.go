package identity

import "strings"

// Role is the tagged variant every role-conditional branch of the realtime
// core switches on
type Role string

const (
	RoleNone   Role = ""
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// ParseRole maps a role name to a Role, RoleNone when unknown
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleRider, "user":
		return RoleRider
	case RoleDriver:
		return RoleDriver
	case RoleAdmin:
		return RoleAdmin
	}
	return RoleNone
}

// IsValid reports whether r names an actual role
func (r Role) IsValid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Counterpart returns the other party of a ride
func (r Role) Counterpart() Role {
	switch r {
	case RoleRider:
		return RoleDriver
	case RoleDriver:
		return RoleRider
	}
	return RoleNone
}

// WireName is the role tag used by the server in frames: the requesting
// party is "user", the fulfilling party "driver".
func (r Role) WireName() string {
	switch r {
	case RoleRider:
		return "user"
	case RoleDriver:
		return "driver"
	case RoleAdmin:
		return "admin"
	}
	return ""
}

// AllRoles lists every role that can hold a session
var AllRoles = []Role{RoleRider, RoleDriver, RoleAdmin}

// Binding is the identity the realtime session is opened for
type Binding struct {
	Role         Role
	ID           string
	AuthToken    string
	RefreshToken string

	// LoggedIn lists every role that currently reports an authenticated
	// session, including Role itself.
	LoggedIn []Role
}

// Conflicting reports whether more than one role is logged in at once
func (b Binding) Conflicting() bool {
	seen := make(map[Role]bool, len(b.LoggedIn))
	for _, r := range b.LoggedIn {
		if r.IsValid() {
			seen[r] = true
		}
	}
	return len(seen) > 1
}

// Complete reports whether a channel can be opened for b
func (b Binding) Complete() bool {
	return b.Role.IsValid() && b.ID != "" && b.AuthToken != ""
}

// Same reports whether two bindings address the same session
func (b Binding) Same(other Binding) bool {
	return b.Role == other.Role && b.ID == other.ID
}
