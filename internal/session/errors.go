package session

import "errors"

var (
	// ErrIllegalInitialPhase is returned when a not-yet-started session
	// requests any target other than its mode's start phase.
	ErrIllegalInitialPhase = errors.New("first advance must target the mode's start phase")

	// ErrIllegalTransition is returned when the requested target is not a
	// destination of any allowed edge out of the declared current phase,
	// or when the session's stored phase has already moved past the
	// declared one.
	ErrIllegalTransition = errors.New("illegal phase transition")

	// ErrUnknownTarget is returned when the target phase is outside the
	// mode's reachable set. Defends against stale client state.
	ErrUnknownTarget = errors.New("target phase not reachable in this flight mode")

	// ErrCollaborator wraps a failed or malformed reasoning call. When it
	// is returned from Advance, the phase change and audit event have
	// already been committed and are not rolled back.
	ErrCollaborator = errors.New("reasoning collaborator failed")
)
