// Package fsm holds the declarative phase catalog and the per-flight-mode
// operative graphs built from it.
//
// The catalog (Definition) is loaded once at startup and is immutable
// afterwards, so it is safe for unsynchronized concurrent reads. Mode
// graphs are derived views: multi-origin transition templates are expanded
// into per-origin edges, edges unreachable from the mode's start phase are
// pruned, and the survivors are indexed for O(1) lookup.
package fsm

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PhaseID names a phase in the catalog.
type PhaseID string

// TemplateID names a transition template in the catalog.
type TemplateID string

// ModeID names a flight-mode configuration.
type ModeID string

// PhaseNotStarted is the reserved sentinel a session carries before its
// first advance. It never appears in the catalog.
const PhaseNotStarted PhaseID = "NOT_STARTED"

// Phase is one named status of a training session (holding short,
// climbing, ...). Catalog entries are immutable after load.
type Phase struct {
	ID             PhaseID  `yaml:"id"`
	Label          string   `yaml:"label"`
	Description    string   `yaml:"description"`
	MessageFocus   string   `yaml:"message_focus"`
	ExamplePhrases []string `yaml:"example_phrases"`
	ProactiveSpeak bool     `yaml:"proactive_speak"`
	Group          string   `yaml:"group"`
	Hooks          []string `yaml:"hooks"`

	// Situation ids valid for this phase, consumed by the runway
	// situation simulator. An empty list means the track is unrestricted.
	TakeoffSituations []string `yaml:"takeoff_situations"`
	LandingSituations []string `yaml:"landing_situations"`
}

// phaseIDList accepts either a single scalar or a sequence in YAML, so
// single-origin templates can be written without list syntax.
type phaseIDList []PhaseID

func (l *phaseIDList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s PhaseID
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = phaseIDList{s}
		return nil
	case yaml.SequenceNode:
		var s []PhaseID
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = phaseIDList(s)
		return nil
	default:
		return fmt.Errorf("from: expected scalar or sequence, got yaml kind %d", value.Kind)
	}
}

// TransitionTemplate is a declarative rule for one allowed move from one
// or more origin phases to a destination phase.
type TransitionTemplate struct {
	ID           TemplateID  `yaml:"id"`
	From         phaseIDList `yaml:"from"`
	To           PhaseID     `yaml:"to"`
	Label        string      `yaml:"label"`
	Description  string      `yaml:"description"`
	Requirements []string    `yaml:"requirements"`
}

// Origins returns the template's origin phases.
func (t *TransitionTemplate) Origins() []PhaseID { return []PhaseID(t.From) }

// LocationPolicy controls which airport context a session starts in and,
// for one-way scenarios, the phase at which the active airport flips from
// departure to arrival.
type LocationPolicy struct {
	Start       string  `yaml:"start"` // "departure" (default) or "arrival"
	SwitchPhase PhaseID `yaml:"switch_phase,omitempty"`
}

// SquawkPolicy selects the initial transponder code for new sessions:
// a fixed code, or a fresh random draw per session.
type SquawkPolicy struct {
	Mode string `yaml:"mode"` // "fixed" or "random"
	Code string `yaml:"code,omitempty"`
}

// FlightModeConfig selects a start phase, terminal phases and the subset
// of transition templates active for one training scenario.
type FlightModeConfig struct {
	ID             ModeID         `yaml:"id"`
	Label          string         `yaml:"label"`
	Description    string         `yaml:"description"`
	StartPhase     PhaseID        `yaml:"start_phase"`
	TerminalPhases []PhaseID      `yaml:"terminal_phases"`
	Location       LocationPolicy `yaml:"location"`
	Squawk         SquawkPolicy   `yaml:"squawk"`
	Transitions    []TemplateID   `yaml:"transitions"`
}

// IsTerminal reports whether the phase belongs to the mode's terminal set.
func (m *FlightModeConfig) IsTerminal(p PhaseID) bool {
	for _, t := range m.TerminalPhases {
		if t == p {
			return true
		}
	}
	return false
}

// Definition is the full immutable catalog: phases, transition templates
// and flight-mode configs, indexed by id.
type Definition struct {
	phases    map[PhaseID]*Phase
	templates map[TemplateID]*TransitionTemplate
	modes     map[ModeID]*FlightModeConfig

	// Declared order, kept for listings and deterministic output.
	phaseOrder []PhaseID
	modeOrder  []ModeID
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Phases      []*Phase              `yaml:"phases"`
	Transitions []*TransitionTemplate `yaml:"transitions"`
	Modes       []*FlightModeConfig   `yaml:"modes"`
}

//go:embed defaults/catalog.yaml
var defaultCatalog []byte

// LoadDefinition reads and validates a catalog file. An empty path loads
// the built-in default catalog.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return ParseDefinition(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes and validates catalog YAML. Any transition
// template whose origin or destination phase is undefined, or any mode
// referencing an unknown phase or template, yields a *DefinitionError.
func ParseDefinition(data []byte) (*Definition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	def := &Definition{
		phases:    make(map[PhaseID]*Phase, len(file.Phases)),
		templates: make(map[TemplateID]*TransitionTemplate, len(file.Transitions)),
		modes:     make(map[ModeID]*FlightModeConfig, len(file.Modes)),
	}

	for _, p := range file.Phases {
		if p.ID == "" {
			return nil, fmt.Errorf("parse catalog: phase with empty id")
		}
		if _, dup := def.phases[p.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate phase %q", p.ID)
		}
		def.phases[p.ID] = p
		def.phaseOrder = append(def.phaseOrder, p.ID)
	}

	for _, t := range file.Transitions {
		if t.ID == "" {
			return nil, fmt.Errorf("parse catalog: transition with empty id")
		}
		if _, dup := def.templates[t.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate transition %q", t.ID)
		}
		if len(t.From) == 0 {
			return nil, &DefinitionError{Kind: "template", ID: string(t.ID), Msg: "has no origin phase", Ref: ""}
		}
		for _, from := range t.From {
			if _, ok := def.phases[from]; !ok {
				return nil, &DefinitionError{Kind: "template", ID: string(t.ID), Msg: "references undefined origin phase", Ref: string(from)}
			}
		}
		if _, ok := def.phases[t.To]; !ok {
			return nil, &DefinitionError{Kind: "template", ID: string(t.ID), Msg: "references undefined destination phase", Ref: string(t.To)}
		}
		def.templates[t.ID] = t
	}

	for _, m := range file.Modes {
		if m.ID == "" {
			return nil, fmt.Errorf("parse catalog: mode with empty id")
		}
		if _, dup := def.modes[m.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate mode %q", m.ID)
		}
		if _, ok := def.phases[m.StartPhase]; !ok {
			return nil, &DefinitionError{Kind: "mode", ID: string(m.ID), Msg: "references undefined start phase", Ref: string(m.StartPhase)}
		}
		for _, term := range m.TerminalPhases {
			if _, ok := def.phases[term]; !ok {
				return nil, &DefinitionError{Kind: "mode", ID: string(m.ID), Msg: "references undefined terminal phase", Ref: string(term)}
			}
		}
		if m.Location.SwitchPhase != "" {
			if _, ok := def.phases[m.Location.SwitchPhase]; !ok {
				return nil, &DefinitionError{Kind: "mode", ID: string(m.ID), Msg: "references undefined switch phase", Ref: string(m.Location.SwitchPhase)}
			}
		}
		for _, tid := range m.Transitions {
			if _, ok := def.templates[tid]; !ok {
				return nil, &DefinitionError{Kind: "mode", ID: string(m.ID), Msg: "references undefined transition", Ref: string(tid)}
			}
		}
		def.modes[m.ID] = m
		def.modeOrder = append(def.modeOrder, m.ID)
	}

	return def, nil
}

// Phase returns the catalog entry for a phase id.
func (d *Definition) Phase(id PhaseID) (*Phase, bool) {
	p, ok := d.phases[id]
	return p, ok
}

// Template returns the catalog entry for a transition template id.
func (d *Definition) Template(id TemplateID) (*TransitionTemplate, bool) {
	t, ok := d.templates[id]
	return t, ok
}

// Mode returns the flight-mode config for a mode id.
func (d *Definition) Mode(id ModeID) (*FlightModeConfig, bool) {
	m, ok := d.modes[id]
	return m, ok
}

// PhaseIDs lists all phase ids in declaration order.
func (d *Definition) PhaseIDs() []PhaseID {
	out := make([]PhaseID, len(d.phaseOrder))
	copy(out, d.phaseOrder)
	return out
}

// ModeIDs lists all mode ids in declaration order.
func (d *Definition) ModeIDs() []ModeID {
	out := make([]ModeID, len(d.modeOrder))
	copy(out, d.modeOrder)
	return out
}
