// Package simulator produces randomized-but-stable runway occupancy facts
// for the message generator: what the departure runway looks like, what
// the landing sequence looks like, and which runway the session should
// expect. Situation state is scoped to one phase visit (one phase-event
// row); the runway assignment is scoped to the whole session.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"readback/internal/fsm"
	"readback/internal/store"
)

// ErrNoPhaseVisit is returned when situations are queried before the
// session's first phase advance, so there is no event row to anchor on.
var ErrNoPhaseVisit = errors.New("no phase visit to anchor situation state")

// fallbackRunway is used when the active airport has no known open
// runway ends.
const fallbackRunway = "36"

// Outcome is one situation answer: the fact plus a short narration the
// message generator can lean on.
type Outcome struct {
	Situation Situation
	Notes     string
}

// RunwayAssignment is the session-stable expected runway and pattern.
type RunwayAssignment struct {
	Runway  string `json:"runway"`
	Pattern string `json:"pattern"` // "left" or "right"
	Notes   string `json:"-"`
}

// trackState is the per-visit state of one situation track. A nil
// *trackState means the track has not been queried this visit; otherwise
// Stage is "pending" (drawn, not yet changed) or "resolved" (changed,
// frozen).
type trackState struct {
	Stage     string    `json:"stage"`
	Situation Situation `json:"situation"`
}

const (
	stagePending  = "pending"
	stageResolved = "resolved"
)

// visitScratch is the JSON layout of the phase-event scratch column.
type visitScratch struct {
	Takeoff *trackState `json:"takeoff,omitempty"`
	Landing *trackState `json:"landing,omitempty"`
}

// Simulator answers situation queries for one session. It is cheap to
// construct per request; all state lives in the store.
type Simulator struct {
	store     *store.Store
	sessionID string
	rng       *rand.Rand
}

// New creates a simulator bound to a session.
func New(st *store.Store, sessionID string, rng *rand.Rand) *Simulator {
	return &Simulator{store: st, sessionID: sessionID, rng: rng}
}

// TakeoffSituation runs the per-visit protocol for the takeoff track,
// restricted to the situations the phase declares valid.
func (s *Simulator) TakeoffSituation(ctx context.Context, phase *fsm.Phase) (Outcome, error) {
	return s.track(ctx, "takeoff", takeoffOrder, takeoffSpecs, phase.TakeoffSituations)
}

// LandingSituation runs the per-visit protocol for the landing track.
func (s *Simulator) LandingSituation(ctx context.Context, phase *fsm.Phase) (Outcome, error) {
	return s.track(ctx, "landing", landingOrder, landingSpecs, phase.LandingSituations)
}

// track implements the three-stage protocol: prior draw on first query,
// at most one improvement on the second, pure reads afterwards.
func (s *Simulator) track(ctx context.Context, name string, order []Situation, specs map[Situation]situationSpec, valid []string) (Outcome, error) {
	ev, err := s.store.LatestEvent(ctx, s.sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, ErrNoPhaseVisit
		}
		return Outcome{}, err
	}

	var scratch visitScratch
	if ev.Scratch != "" {
		if err := json.Unmarshal([]byte(ev.Scratch), &scratch); err != nil {
			return Outcome{}, fmt.Errorf("corrupt visit state for event %s: %w", ev.ID, err)
		}
	}

	st := scratch.Takeoff
	if name == "landing" {
		st = scratch.Landing
	}

	switch {
	case st == nil:
		// First query this visit: weighted draw from the phase-valid
		// prior, stored as pending.
		sit := s.drawPrior(order, specs, valid)
		st = &trackState{Stage: stagePending, Situation: sit}
		if err := s.saveTrack(ctx, ev, &scratch, name, st); err != nil {
			return Outcome{}, err
		}
		return Outcome{Situation: sit, Notes: fmt.Sprintf("%s runway check: %s", name, sit)}, nil

	case st.Stage == stagePending:
		// Second query: improve once if the phase-valid improves-to set
		// is non-empty, otherwise the situation is already optimal and
		// the state freezes as-is.
		improved := restrict(specs[st.Situation].improvesTo, valid)
		if len(improved) == 0 {
			return Outcome{Situation: st.Situation, Notes: fmt.Sprintf("%s runway still %s", name, st.Situation)}, nil
		}
		was := st.Situation
		next := improved[s.rng.Intn(len(improved))]
		st = &trackState{Stage: stageResolved, Situation: next}
		if err := s.saveTrack(ctx, ev, &scratch, name, st); err != nil {
			return Outcome{}, err
		}
		return Outcome{Situation: next, Notes: fmt.Sprintf("%s runway was %s, now %s", name, was, next)}, nil

	default:
		// Third and later queries are pure reads.
		return Outcome{Situation: st.Situation, Notes: fmt.Sprintf("%s runway still %s", name, st.Situation)}, nil
	}
}

// drawPrior performs cumulative-weight selection over the phase-valid
// situations. Falls back to the first valid candidate if weights sum to
// zero (cannot happen with the shipped specs).
func (s *Simulator) drawPrior(order []Situation, specs map[Situation]situationSpec, valid []string) Situation {
	candidates := restrict(order, valid)
	if len(candidates) == 0 {
		candidates = order
	}
	total := 0
	for _, c := range candidates {
		total += specs[c].weight
	}
	if total <= 0 {
		return candidates[0]
	}
	draw := s.rng.Intn(total)
	for _, c := range candidates {
		draw -= specs[c].weight
		if draw < 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func (s *Simulator) saveTrack(ctx context.Context, ev *store.PhaseEvent, scratch *visitScratch, name string, st *trackState) error {
	if name == "landing" {
		scratch.Landing = st
	} else {
		scratch.Takeoff = st
	}
	data, err := json.Marshal(scratch)
	if err != nil {
		return err
	}
	return s.store.SetEventScratch(ctx, ev.ID, string(data))
}

// ExpectedRunway returns the session's assigned runway end and pattern
// direction, assigning them on first call. Repeated calls within one
// session return identical values.
func (s *Simulator) ExpectedRunway(ctx context.Context) (RunwayAssignment, error) {
	sess, err := s.store.Session(ctx, s.sessionID)
	if err != nil {
		return RunwayAssignment{}, err
	}

	if sess.Scratch != "" {
		var ra RunwayAssignment
		if err := json.Unmarshal([]byte(sess.Scratch), &ra); err != nil {
			return RunwayAssignment{}, fmt.Errorf("corrupt session state for %s: %w", sess.ID, err)
		}
		if ra.Runway != "" {
			ra.Notes = "previously assigned"
			return ra, nil
		}
	}

	ra := RunwayAssignment{Runway: fallbackRunway, Notes: "no runway data, using fallback"}
	if a, err := s.store.Airport(ctx, sess.ActiveICAO); err == nil {
		if open := a.OpenRunways(); len(open) > 0 {
			ra.Runway = open[s.rng.Intn(len(open))].Designator
			ra.Notes = fmt.Sprintf("assigned from %s runway list", a.ICAO)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return RunwayAssignment{}, err
	}
	if s.rng.Intn(2) == 0 {
		ra.Pattern = "left"
	} else {
		ra.Pattern = "right"
	}

	data, err := json.Marshal(ra)
	if err != nil {
		return RunwayAssignment{}, err
	}
	if err := s.store.SetSessionScratch(ctx, sess.ID, string(data)); err != nil {
		return RunwayAssignment{}, err
	}
	return ra, nil
}
