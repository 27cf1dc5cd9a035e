package moderation

// Event is a normalized notification delivered by a Transport.
type Event interface {
	isEvent()
}

// PresenceSnapshot lists the occupants of a room, typically right after join.
type PresenceSnapshot struct {
	Room         string
	Participants []string
}

// Activity is a message, action or join attributed to a participant.
type Activity struct {
	Room        string
	Participant string
}

// Departure is a part or kick from a single room.
type Departure struct {
	Room        string
	Participant string
}

// Disconnect is a quit or connection kill covering every room the
// participant was in.
type Disconnect struct {
	Participant string
	Rooms       []string
}

// IdentityChange is a rename observed in the listed rooms.
type IdentityChange struct {
	Old   string
	New   string
	Rooms []string
}

// ModeChange signals that membership modes changed in a room.
type ModeChange struct {
	Room string
}

// InboundMessage is raw text addressed to a room or to the bot directly.
type InboundMessage struct {
	Participant string
	Target      string
	Text        string
}

// TransportError is a protocol-level error reported by the transport.
type TransportError struct {
	Message string
}

func (PresenceSnapshot) isEvent() {}
func (Activity) isEvent()         {}
func (Departure) isEvent()        {}
func (Disconnect) isEvent()       {}
func (IdentityChange) isEvent()   {}
func (ModeChange) isEvent()       {}
func (InboundMessage) isEvent()   {}
func (TransportError) isEvent()   {}
