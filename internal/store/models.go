package store

import "time"

// Session is one trainee's run through a flight mode.
type Session struct {
	ID            string
	UserID        string
	ModeID        string
	CurrentPhase  string
	DepartureICAO string
	ArrivalICAO   string
	// ActiveICAO is the airport context messages are generated against.
	// It starts at the departure field and, in one-way modes, flips to
	// the arrival field at the mode's switch phase.
	ActiveICAO string
	Squawk     string
	// Scratch holds session-scoped simulator state (expected runway and
	// pattern direction) as JSON. Owned by the simulator.
	Scratch   string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhaseEvent is one row of the append-only phase audit trail. Exactly one
// row exists per phase visit; the simulator anchors its per-visit state to
// the row via the Scratch column.
type PhaseEvent struct {
	ID        string
	SessionID string
	FromPhase string
	ToPhase   string
	// Scratch is reserved for the runway situation simulator.
	Scratch   string
	CreatedAt time.Time
}

// Speaker values for transmissions.
const (
	SpeakerPilot    = "pilot"
	SpeakerFacility = "facility"
)

// Transmission is one recorded radio exchange line. Facility rows are
// written even when the message is empty: staying silent is a decision
// worth auditing.
type Transmission struct {
	ID        string
	SessionID string
	Speaker   string
	Phase     string
	Trigger   string
	Message   string
	CreatedAt time.Time
}
