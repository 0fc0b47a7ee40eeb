// Package session owns the phase-transition orchestrator: it validates a
// requested phase advance against the flight mode's operative graph,
// commits the change and the audit event, and decides when the facility
// speaks first.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"readback/internal/fsm"
	"readback/internal/reasoning"
	"readback/internal/simulator"
	"readback/internal/store"
)

// historyDepth is how many recent transmissions ride along in the
// collaborator's context bundle.
const historyDepth = 12

// Orchestrator coordinates the graph registry, the record store, the
// situation simulator and the reasoning collaborator for one process.
type Orchestrator struct {
	registry *fsm.Registry
	store    *store.Store
	collab   reasoning.Collaborator
	logger   *zap.Logger
	rng      *rand.Rand

	// MaxActiveSessions caps concurrently active sessions per user on
	// StartSession. Zero disables the ceiling.
	MaxActiveSessions int

	// LLMTimeout bounds each collaborator call. Zero leaves the caller's
	// context deadline (if any) in charge.
	LLMTimeout time.Duration
}

// NewOrchestrator wires an orchestrator. rng seeds the simulator and
// squawk draws; pass nil for a time-seeded source.
func NewOrchestrator(reg *fsm.Registry, st *store.Store, collab reasoning.Collaborator, logger *zap.Logger, rng *rand.Rand) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Orchestrator{
		registry: reg,
		store:    st,
		collab:   collab,
		logger:   logger,
		rng:      rng,
	}
}

// AdvanceResult is the outcome of a committed phase advance.
type AdvanceResult struct {
	NewPhase fsm.PhaseID
	Complete bool
	// ProactiveMessage is the facility's phase-entry transmission, empty
	// when the phase does not call for one or the facility stayed silent.
	ProactiveMessage string
	// ActiveAirport is the session's airport context after the advance,
	// reflecting any directional switch that fired on this transition.
	ActiveAirport string
}

// StartSession creates a session for a user in the given mode. The
// initial phase is the not-started sentinel; the first Advance must
// target the mode's start phase. Returns ErrSessionLimit (from the
// store) when the user is at their active-session ceiling.
func (o *Orchestrator) StartSession(ctx context.Context, userID string, modeID fsm.ModeID, departureICAO, arrivalICAO string) (*store.Session, error) {
	g, err := o.registry.Graph(modeID)
	if err != nil {
		return nil, err
	}
	squawk, err := g.InitialSquawk(o.rng)
	if err != nil {
		return nil, err
	}

	active := departureICAO
	if g.Mode().Location.Start == "arrival" && arrivalICAO != "" {
		active = arrivalICAO
	}

	sess := &store.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		ModeID:        string(modeID),
		CurrentPhase:  string(fsm.PhaseNotStarted),
		DepartureICAO: departureICAO,
		ArrivalICAO:   arrivalICAO,
		ActiveICAO:    active,
		Squawk:        squawk.String(),
	}
	if err := o.store.CreateSession(ctx, sess, o.MaxActiveSessions); err != nil {
		return nil, err
	}
	o.logger.Info("session started",
		zap.String("session", sess.ID),
		zap.String("user", userID),
		zap.String("mode", string(modeID)),
		zap.String("squawk", sess.Squawk))
	return sess, nil
}

// Advance validates and commits a phase change.
//
// All validation failures are local and leave no mutation. After the
// change is committed, a collaborator failure during the proactive
// notification is returned wrapped in ErrCollaborator together with the
// non-nil result: the advance stands. A missing proactive transmission
// is an acceptable degraded outcome; a stuck phase is not.
func (o *Orchestrator) Advance(ctx context.Context, sessionID, actorID string, current, target fsm.PhaseID) (*AdvanceResult, error) {
	sess, err := o.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	g, err := o.registry.Graph(fsm.ModeID(sess.ModeID))
	if err != nil {
		return nil, err
	}
	mode := g.Mode()

	// Validation. Order matters: the sentinel rule first, then the
	// outbound-edge check, then the reachable-set check.
	if fsm.PhaseID(sess.CurrentPhase) != current {
		return nil, fmt.Errorf("%w: session is in %q, not %q (phase already moved?)",
			ErrIllegalTransition, sess.CurrentPhase, current)
	}
	if current == fsm.PhaseNotStarted {
		if target != mode.StartPhase {
			return nil, fmt.Errorf("%w: mode %s starts at %q, not %q",
				ErrIllegalInitialPhase, mode.ID, mode.StartPhase, target)
		}
	} else if !g.CanAdvance(current, target) {
		return nil, fmt.Errorf("%w: no allowed edge %s -> %s in mode %s",
			ErrIllegalTransition, current, target, mode.ID)
	}
	if !g.IsReachable(target) {
		return nil, fmt.Errorf("%w: %q in mode %s", ErrUnknownTarget, target, mode.ID)
	}

	// Directional context switch: in one-way modes, reaching the switch
	// phase flips the active airport to the arrival field, atomically
	// with the phase change.
	newActive := ""
	if mode.Location.SwitchPhase == target && sess.ArrivalICAO != "" && sess.ActiveICAO != sess.ArrivalICAO {
		newActive = sess.ArrivalICAO
	}

	complete := g.IsTerminal(target)
	event := &store.PhaseEvent{
		ID:        uuid.NewString(),
		FromPhase: string(current),
		ToPhase:   string(target),
	}
	if err := o.store.AdvancePhase(ctx, sessionID, event, newActive, complete); err != nil {
		return nil, err
	}

	result := &AdvanceResult{
		NewPhase:      target,
		Complete:      complete,
		ActiveAirport: sess.ActiveICAO,
	}
	if newActive != "" {
		result.ActiveAirport = newActive
	}
	o.logger.Info("phase advanced",
		zap.String("session", sessionID),
		zap.String("actor", actorID),
		zap.String("from", string(current)),
		zap.String("to", string(target)),
		zap.Bool("complete", complete))

	// Terminal phases end the exchange; the collaborator is never
	// consulted for them.
	if complete {
		return result, nil
	}

	phase, err := g.Phase(target)
	if err != nil {
		return result, err
	}
	if !phase.ProactiveSpeak {
		return result, nil
	}

	// The facility speaks first on this phase. The phase change above is
	// committed either way.
	msg, err := o.proactiveTransmission(ctx, sessionID, result.ActiveAirport, phase)
	if err != nil {
		o.logger.Warn("proactive transmission failed; phase advance stands",
			zap.String("session", sessionID),
			zap.String("phase", string(target)),
			zap.Error(err))
		return result, err
	}
	result.ProactiveMessage = msg
	return result, nil
}

// collabContext derives the context collaborator calls run under: the
// caller's context bounded by the configured timeout, so a wedged
// upstream request cannot hold an advance open indefinitely.
func (o *Orchestrator) collabContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.LLMTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.LLMTimeout)
}

// proactiveTransmission assembles the context bundle, invokes the
// collaborator with the phase-entry trigger and records the reply. An
// empty reply still produces a transmission record: the facility's
// silence is a decision.
func (o *Orchestrator) proactiveTransmission(ctx context.Context, sessionID, activeICAO string, phase *fsm.Phase) (string, error) {
	req, err := o.buildRequest(ctx, sessionID, activeICAO, phase, reasoning.TriggerPhaseEntry, "")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCollaborator, err)
	}

	cctx, cancel := o.collabContext(ctx)
	defer cancel()
	resp, err := o.collab.Generate(cctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCollaborator, err)
	}

	tr := &store.Transmission{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Speaker:   store.SpeakerFacility,
		Phase:     string(phase.ID),
		Trigger:   reasoning.TriggerPhaseEntry,
		Message:   resp.Message,
	}
	if err := o.store.AppendTransmission(ctx, tr); err != nil {
		return "", fmt.Errorf("%w: record transmission: %w", ErrCollaborator, err)
	}
	return resp.Message, nil
}

// Respond handles a pilot-initiated exchange: the pilot's utterance is
// recorded, the collaborator is invoked with the pilot-spoke trigger, and
// the facility reply is recorded and returned.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, actorID, utterance string) (string, error) {
	sess, err := o.store.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	g, err := o.registry.Graph(fsm.ModeID(sess.ModeID))
	if err != nil {
		return "", err
	}
	phase, err := g.Phase(fsm.PhaseID(sess.CurrentPhase))
	if err != nil {
		return "", err
	}

	pilot := &store.Transmission{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Speaker:   store.SpeakerPilot,
		Phase:     sess.CurrentPhase,
		Trigger:   reasoning.TriggerPilotSpoke,
		Message:   utterance,
	}
	if err := o.store.AppendTransmission(ctx, pilot); err != nil {
		return "", err
	}

	req, err := o.buildRequest(ctx, sessionID, sess.ActiveICAO, phase, reasoning.TriggerPilotSpoke, utterance)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCollaborator, err)
	}
	cctx, cancel := o.collabContext(ctx)
	defer cancel()
	resp, err := o.collab.Generate(cctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCollaborator, err)
	}

	facility := &store.Transmission{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Speaker:   store.SpeakerFacility,
		Phase:     sess.CurrentPhase,
		Trigger:   reasoning.TriggerPilotSpoke,
		Message:   resp.Message,
	}
	if err := o.store.AppendTransmission(ctx, facility); err != nil {
		return "", fmt.Errorf("%w: record transmission: %w", ErrCollaborator, err)
	}
	return resp.Message, nil
}

// buildRequest assembles the collaborator context bundle: the phase's
// guidance metadata, recent transmission history, the active airport's
// reference data and the simulator's current outputs.
func (o *Orchestrator) buildRequest(ctx context.Context, sessionID, activeICAO string, phase *fsm.Phase, trigger, pilotMessage string) (reasoning.Request, error) {
	req := reasoning.Request{
		Phase: reasoning.PhaseInfo{
			ID:             string(phase.ID),
			Label:          phase.Label,
			Description:    phase.Description,
			MessageFocus:   phase.MessageFocus,
			ExamplePhrases: phase.ExamplePhrases,
		},
		Trigger:      trigger,
		PilotMessage: pilotMessage,
	}

	history, err := o.store.RecentTransmissions(ctx, sessionID, historyDepth)
	if err != nil {
		return reasoning.Request{}, err
	}
	for _, tr := range history {
		req.History = append(req.History, reasoning.HistoryLine{Speaker: tr.Speaker, Message: tr.Message})
	}

	req.Airport = reasoning.AirportInfo{ICAO: activeICAO}
	if a, err := o.store.Airport(ctx, activeICAO); err == nil {
		req.Airport = reasoning.AirportInfo{
			ICAO:       a.ICAO,
			Name:       a.Name,
			TowerFreq:  a.TowerFreq,
			GroundFreq: a.GroundFreq,
			CTAF:       a.CTAF,
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return reasoning.Request{}, err
	}

	sim := simulator.New(o.store, sessionID, o.rng)
	var notes []string
	if len(phase.TakeoffSituations) > 0 {
		out, err := sim.TakeoffSituation(ctx, phase)
		if err != nil {
			return reasoning.Request{}, err
		}
		req.TakeoffSituation = string(out.Situation)
		notes = append(notes, out.Notes)
	}
	if len(phase.LandingSituations) > 0 {
		out, err := sim.LandingSituation(ctx, phase)
		if err != nil {
			return reasoning.Request{}, err
		}
		req.LandingSituation = string(out.Situation)
		notes = append(notes, out.Notes)
	}
	ra, err := sim.ExpectedRunway(ctx)
	if err != nil {
		return reasoning.Request{}, err
	}
	req.ExpectedRunway = ra.Runway
	req.PatternDirection = ra.Pattern
	if len(notes) > 0 {
		req.SituationNotes = notes[0]
		for _, n := range notes[1:] {
			req.SituationNotes += "; " + n
		}
	}
	return req, nil
}
