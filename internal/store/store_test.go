package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readback/internal/airport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "readback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSession(userID string) *Session {
	return &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		ModeID:        "VFR_PATTERN",
		CurrentPhase:  "NOT_STARTED",
		DepartureICAO: "KPAO",
		ActiveICAO:    "KPAO",
		Squawk:        "1200",
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newTestSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess, 0))

	got, err := s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, "NOT_STARTED", got.CurrentPhase)
	assert.Equal(t, "KPAO", got.ActiveICAO)
	assert.False(t, got.Completed)

	_, err = s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSession_Ceiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newTestSession("user-1"), 2))
	require.NoError(t, s.CreateSession(ctx, newTestSession("user-1"), 2))

	err := s.CreateSession(ctx, newTestSession("user-1"), 2)
	assert.ErrorIs(t, err, ErrSessionLimit)

	// Another user is unaffected.
	assert.NoError(t, s.CreateSession(ctx, newTestSession("user-2"), 2))
}

func TestAdvancePhase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newTestSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess, 0))

	ev := &PhaseEvent{ID: uuid.NewString(), FromPhase: "NOT_STARTED", ToPhase: "PARKING_STARTUP"}
	require.NoError(t, s.AdvancePhase(ctx, sess.ID, ev, "", false))

	got, err := s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "PARKING_STARTUP", got.CurrentPhase)

	latest, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, latest.ID)
	assert.Equal(t, "PARKING_STARTUP", latest.ToPhase)

	// Airport switch happens in the same update.
	ev2 := &PhaseEvent{ID: uuid.NewString(), FromPhase: "PARKING_STARTUP", ToPhase: "CRUISE"}
	require.NoError(t, s.AdvancePhase(ctx, sess.ID, ev2, "KSQL", false))
	got, err = s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "KSQL", got.ActiveICAO)
	assert.Equal(t, "CRUISE", got.CurrentPhase)

	events, err := s.Events(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, ev2.ID, events[1].ID)
}

func TestAdvancePhase_UnknownSession(t *testing.T) {
	s := newTestStore(t)
	ev := &PhaseEvent{ID: uuid.NewString(), FromPhase: "A", ToPhase: "B"}
	err := s.AdvancePhase(context.Background(), "missing", ev, "", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventScratch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newTestSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess, 0))
	ev := &PhaseEvent{ID: uuid.NewString(), FromPhase: "NOT_STARTED", ToPhase: "PARKING_STARTUP"}
	require.NoError(t, s.AdvancePhase(ctx, sess.ID, ev, "", false))

	require.NoError(t, s.SetEventScratch(ctx, ev.ID, `{"takeoff":{"state":"pending"}}`))
	latest, err := s.LatestEvent(ctx, sess.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"takeoff":{"state":"pending"}}`, latest.Scratch)

	assert.ErrorIs(t, s.SetEventScratch(ctx, "missing", "{}"), ErrNotFound)
}

func TestTransmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newTestSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess, 0))

	for i, msg := range []string{"one", "two", "", "four"} {
		tr := &Transmission{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Speaker:   SpeakerFacility,
			Phase:     "CLIMBING",
			Trigger:   "phase-entry",
			Message:   msg,
		}
		require.NoError(t, s.AppendTransmission(ctx, tr), "append %d", i)
	}

	recent, err := s.RecentTransmissions(ctx, sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Oldest first, and empty facility messages are kept.
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "", recent[1].Message)
	assert.Equal(t, "four", recent[2].Message)
}

func TestAirportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idx, err := airport.Load("")
	require.NoError(t, err)
	require.NoError(t, s.SeedAirports(ctx, idx))

	a, err := s.Airport(ctx, "KPAO")
	require.NoError(t, err)
	assert.Equal(t, "Palo Alto", a.Name)
	assert.Len(t, a.Runways, 2)

	_, err = s.Airport(ctx, "ZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}
