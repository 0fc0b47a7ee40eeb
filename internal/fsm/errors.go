package fsm

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned when no flight-mode config exists for the
// requested mode id.
var ErrUnknownMode = errors.New("unknown flight mode")

// ErrUnknownPhase is returned by catalog lookups for undefined phase ids.
var ErrUnknownPhase = errors.New("unknown phase")

// DefinitionError reports a dangling reference inside the catalog.
// It is returned from ParseDefinition and is fatal at process startup:
// a catalog that references undefined phases or templates must never
// serve requests.
type DefinitionError struct {
	Kind string // "template" or "mode"
	ID   string // the offending template or mode id
	Ref  string // the id it references
	Msg  string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("catalog %s %q: %s %q", e.Kind, e.ID, e.Msg, e.Ref)
}
