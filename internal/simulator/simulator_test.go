package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readback/internal/airport"
	"readback/internal/fsm"
	"readback/internal/store"
)

func setup(t *testing.T) (*store.Store, *store.Session) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	idx, err := airport.Load("")
	require.NoError(t, err)
	require.NoError(t, s.SeedAirports(ctx, idx))

	sess := &store.Session{
		ID:            uuid.NewString(),
		UserID:        "u",
		ModeID:        "VFR_PATTERN",
		CurrentPhase:  string(fsm.PhaseNotStarted),
		DepartureICAO: "KLVK",
		ActiveICAO:    "KLVK",
	}
	require.NoError(t, s.CreateSession(ctx, sess, 0))
	return s, sess
}

func visit(t *testing.T, s *store.Store, sess *store.Session, from, to string) {
	t.Helper()
	ev := &store.PhaseEvent{ID: uuid.NewString(), FromPhase: from, ToPhase: to}
	require.NoError(t, s.AdvancePhase(context.Background(), sess.ID, ev, "", false))
}

func TestTakeoffSituation_Protocol(t *testing.T) {
	s, sess := setup(t)
	ctx := context.Background()
	visit(t, s, sess, "NOT_STARTED", "HOLD_SHORT")

	sim := New(s, sess.ID, rand.New(rand.NewSource(3)))
	phase := &fsm.Phase{ID: "HOLD_SHORT", TakeoffSituations: []string{"occupied", "clear"}}

	// First query: prior draw from the phase-valid subset, persisted as
	// pending.
	first, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Contains(t, []Situation{TakeoffOccupied, TakeoffClear}, first.Situation)

	ev, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	var scratch visitScratch
	require.NoError(t, json.Unmarshal([]byte(ev.Scratch), &scratch))
	require.NotNil(t, scratch.Takeoff)
	assert.Equal(t, stagePending, scratch.Takeoff.Stage)
	assert.Equal(t, first.Situation, scratch.Takeoff.Situation)

	// Second query: improves when an improvement exists, otherwise
	// returns the stored value.
	second, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	if first.Situation == TakeoffOccupied {
		// occupied improves to clear (line_up_and_wait is not valid for
		// this phase).
		assert.Equal(t, TakeoffClear, second.Situation)
	} else {
		assert.Equal(t, first.Situation, second.Situation)
	}

	// Third and later queries are pure reads.
	third, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, second.Situation, third.Situation)
	fourth, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, second.Situation, fourth.Situation)
}

func TestTakeoffSituation_AlreadyOptimalFreezesPending(t *testing.T) {
	s, sess := setup(t)
	ctx := context.Background()
	visit(t, s, sess, "NOT_STARTED", "HOLD_SHORT")

	sim := New(s, sess.ID, rand.New(rand.NewSource(1)))
	phase := &fsm.Phase{ID: "HOLD_SHORT", TakeoffSituations: []string{"clear"}}

	first, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	require.Equal(t, TakeoffClear, first.Situation)

	second, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, TakeoffClear, second.Situation)

	// Clear has no improves-to target, so the stored state is untouched.
	ev, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	var scratch visitScratch
	require.NoError(t, json.Unmarshal([]byte(ev.Scratch), &scratch))
	assert.Equal(t, stagePending, scratch.Takeoff.Stage)
}

func TestSituation_TracksAreIndependent(t *testing.T) {
	s, sess := setup(t)
	ctx := context.Background()
	visit(t, s, sess, "NOT_STARTED", "PATTERN_ENTRY")

	sim := New(s, sess.ID, rand.New(rand.NewSource(11)))
	phase := &fsm.Phase{
		ID:                "PATTERN_ENTRY",
		TakeoffSituations: []string{"clear"},
		LandingSituations: []string{"sequenced"},
	}

	to, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	la, err := sim.LandingSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, TakeoffClear, to.Situation)
	assert.Equal(t, LandingSequenced, la.Situation)

	ev, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	var scratch visitScratch
	require.NoError(t, json.Unmarshal([]byte(ev.Scratch), &scratch))
	require.NotNil(t, scratch.Takeoff)
	require.NotNil(t, scratch.Landing)
}

func TestSituation_ResetsPerPhaseVisit(t *testing.T) {
	s, sess := setup(t)
	ctx := context.Background()
	visit(t, s, sess, "NOT_STARTED", "HOLD_SHORT")

	sim := New(s, sess.ID, rand.New(rand.NewSource(5)))
	phase := &fsm.Phase{ID: "HOLD_SHORT", TakeoffSituations: []string{"occupied"}}

	first, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, TakeoffOccupied, first.Situation)

	// A new phase visit gets fresh, unset state.
	visit(t, s, sess, "HOLD_SHORT", "TAKEOFF")
	ev, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, ev.Scratch)

	again, err := sim.TakeoffSituation(ctx, phase)
	require.NoError(t, err)
	assert.Equal(t, TakeoffOccupied, again.Situation)
}

func TestSituation_NoVisitYet(t *testing.T) {
	s, sess := setup(t)
	sim := New(s, sess.ID, rand.New(rand.NewSource(1)))
	_, err := sim.TakeoffSituation(context.Background(), &fsm.Phase{ID: "HOLD_SHORT"})
	assert.ErrorIs(t, err, ErrNoPhaseVisit)
}

func TestExpectedRunway_StableWithinSession(t *testing.T) {
	s, sess := setup(t)
	ctx := context.Background()

	sim := New(s, sess.ID, rand.New(rand.NewSource(9)))
	first, err := sim.ExpectedRunway(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"07L", "25R", "07R", "25L"}, first.Runway)
	assert.Contains(t, []string{"left", "right"}, first.Pattern)

	// Identical across repeated calls, even with a different rng.
	sim2 := New(s, sess.ID, rand.New(rand.NewSource(1234)))
	for i := 0; i < 3; i++ {
		got, err := sim2.ExpectedRunway(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.Runway, got.Runway)
		assert.Equal(t, first.Pattern, got.Pattern)
	}
}

func TestExpectedRunway_FallbackWhenAirportUnknown(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	sess := &store.Session{
		ID:            uuid.NewString(),
		UserID:        "u",
		ModeID:        "VFR_PATTERN",
		CurrentPhase:  string(fsm.PhaseNotStarted),
		DepartureICAO: "ZZZZ",
		ActiveICAO:    "ZZZZ",
	}
	require.NoError(t, s.CreateSession(ctx, sess, 0))

	sim := New(s, sess.ID, rand.New(rand.NewSource(2)))
	got, err := sim.ExpectedRunway(ctx)
	require.NoError(t, err)
	assert.Equal(t, "36", got.Runway)
}
