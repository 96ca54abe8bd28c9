package presence

import "github.com/clinicride/escort-booking/internal/model"

// Inbound message types.
const (
	TypeAuth           = "auth"
	TypeJoinBooking    = "join_booking"
	TypeLocationUpdate = "location_update"
	TypePing           = "ping"
)

// Outbound message types.
const (
	TypeAuthenticated   = "authenticated"
	TypeJoinedBooking   = "joined_booking"
	TypeLocationUpdated = "location_updated"
	TypePong            = "pong"
	TypeError           = "error"
)

// inbound is the union of every client frame.  Only Type is mandatory.
type inbound struct {
	Type      string       `json:"type"`
	Token     string       `json:"token,omitempty"`
	BookingID string       `json:"bookingId,omitempty"`
	Location  *locationFix `json:"location,omitempty"`
}

// locationFix is a client-reported position.  Any client timestamp is
// ignored, whatever its JSON type.
type locationFix struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Speed   *float64 `json:"speed,omitempty"`
	Heading *float64 `json:"heading,omitempty"`
}

// Location is a position fix as relayed to peers.  Timestamp is the
// server's clock in Unix milliseconds.
type Location struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

type authenticatedMsg struct {
	Type   string     `json:"type"`
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
}

type joinedMsg struct {
	Type      string `json:"type"`
	BookingID string `json:"bookingId"`
}

type locationMsg struct {
	Type     string     `json:"type"`
	UserID   string     `json:"userId"`
	Role     model.Role `json:"role"`
	Location Location   `json:"location"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type typeOnly struct {
	Type string `json:"type"`
}
