// Package reasoning defines the boundary to the external message
// generation service. The orchestrator only ever sees the Collaborator
// interface; the Gemini client and the deterministic static client are
// the two implementations.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Trigger identifies why the facility is being asked to speak.
const (
	TriggerPhaseEntry = "phase-entry"
	TriggerPilotSpoke = "pilot-spoke"
)

// ErrMalformedResponse reports a collaborator reply that does not match
// the expected shape. The orchestrator treats it as a collaborator
// failure.
var ErrMalformedResponse = errors.New("malformed collaborator response")

// HistoryLine is one prior transmission, pilot or facility.
type HistoryLine struct {
	Speaker string `json:"speaker"`
	Message string `json:"message"`
}

// PhaseInfo is the guidance metadata of the phase being entered.
type PhaseInfo struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	Description    string   `json:"description"`
	MessageFocus   string   `json:"message_focus"`
	ExamplePhrases []string `json:"example_phrases,omitempty"`
}

// AirportInfo is the reference data of the session's active airport.
type AirportInfo struct {
	ICAO       string `json:"icao"`
	Name       string `json:"name"`
	TowerFreq  string `json:"tower_freq,omitempty"`
	GroundFreq string `json:"ground_freq,omitempty"`
	CTAF       string `json:"ctaf,omitempty"`
}

// Request is the context bundle handed to the collaborator.
type Request struct {
	Phase   PhaseInfo     `json:"phase"`
	History []HistoryLine `json:"history,omitempty"`
	Airport AirportInfo   `json:"airport"`
	Trigger string        `json:"trigger"`

	// Pilot utterance, set only for pilot-spoke triggers.
	PilotMessage string `json:"pilot_message,omitempty"`

	// Ground truth from the runway situation simulator.
	TakeoffSituation string `json:"takeoff_situation,omitempty"`
	LandingSituation string `json:"landing_situation,omitempty"`
	ExpectedRunway   string `json:"expected_runway,omitempty"`
	PatternDirection string `json:"pattern_direction,omitempty"`
	SituationNotes   string `json:"situation_notes,omitempty"`
}

// Response is the collaborator's reply. An empty Message means the
// facility chose to stay silent; that is a valid outcome, not an error.
type Response struct {
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Collaborator generates one facility transmission from a context bundle.
// Implementations must be safe for concurrent use.
type Collaborator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// parseResponse validates the wire shape of a collaborator reply: a JSON
// object with a string "message" field. Anything else is malformed.
func parseResponse(data []byte) (Response, error) {
	var wire struct {
		Message  *string           `json:"message"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Message == nil {
		return Response{}, fmt.Errorf("%w: missing message field", ErrMalformedResponse)
	}
	return Response{Message: *wire.Message, Metadata: wire.Metadata}, nil
}
