package fsm

import "fmt"

// Edge is one expanded transition: a single origin, a single destination,
// carrying the parent template's label, description and requirements.
// Templates with N origins expand into N edges; expanded edges get an
// origin-qualified id so they stay distinguishable.
type Edge struct {
	ID           string
	Template     TemplateID
	From         PhaseID
	To           PhaseID
	Label        string
	Description  string
	Requirements []string
}

// ModeGraph is the operative subgraph for one flight mode: the edges the
// mode allows, restricted to those whose origin is reachable from the
// mode's start phase, plus lookup indices over the survivors.
//
// Construction is deterministic for a given (Definition, mode id) pair.
// A built graph is immutable and safe for concurrent reads.
type ModeGraph struct {
	mode *FlightModeConfig
	def  *Definition

	edges     map[string]*Edge
	outbound  map[PhaseID][]*Edge
	inbound   map[PhaseID][]*Edge
	reachable map[PhaseID]bool

	// Edge ids the mode allowed but that were pruned because their origin
	// cannot be reached from the start phase. Surfaced so authoring
	// mistakes don't vanish silently.
	DroppedEdges []string
}

// BuildModeGraph expands, prunes and indexes the operative graph for a
// flight mode.
func BuildModeGraph(def *Definition, modeID ModeID) (*ModeGraph, error) {
	mode, ok := def.Mode(modeID)
	if !ok {
		return nil, fmt.Errorf("build graph: %w: %q", ErrUnknownMode, modeID)
	}

	// Expansion: one edge per (template, origin) pair, restricted to the
	// mode's allowed-transition list.
	var expanded []*Edge
	for _, tid := range mode.Transitions {
		tmpl, ok := def.Template(tid)
		if !ok {
			// Validated at load; unreachable unless the Definition was
			// constructed by hand.
			return nil, &DefinitionError{Kind: "mode", ID: string(modeID), Msg: "references undefined transition", Ref: string(tid)}
		}
		origins := tmpl.Origins()
		for _, from := range origins {
			id := string(tmpl.ID)
			if len(origins) > 1 {
				id = fmt.Sprintf("%s@%s", tmpl.ID, from)
			}
			expanded = append(expanded, &Edge{
				ID:           id,
				Template:     tmpl.ID,
				From:         from,
				To:           tmpl.To,
				Label:        tmpl.Label,
				Description:  tmpl.Description,
				Requirements: tmpl.Requirements,
			})
		}
	}

	// Reachability: breadth-first closure over destination pointers from
	// the start phase. Plain adjacency map; no graph library needed.
	adjacency := make(map[PhaseID][]PhaseID)
	for _, e := range expanded {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	reachable := map[PhaseID]bool{mode.StartPhase: true}
	queue := []PhaseID{mode.StartPhase}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	g := &ModeGraph{
		mode:      mode,
		def:       def,
		edges:     make(map[string]*Edge),
		outbound:  make(map[PhaseID][]*Edge),
		inbound:   make(map[PhaseID][]*Edge),
		reachable: reachable,
	}

	// Pruning + indexing: keep an edge only if its origin is in the
	// closure. Allowed-but-unreachable edges usually belong to a
	// different scenario's flow.
	for _, e := range expanded {
		if !reachable[e.From] {
			g.DroppedEdges = append(g.DroppedEdges, e.ID)
			continue
		}
		g.edges[e.ID] = e
		g.outbound[e.From] = append(g.outbound[e.From], e)
		g.inbound[e.To] = append(g.inbound[e.To], e)
	}

	return g, nil
}

// Mode returns the flight-mode config the graph was built for.
func (g *ModeGraph) Mode() *FlightModeConfig { return g.mode }

// Phase returns the catalog descriptor for a phase id. Descriptors come
// from the process-wide catalog, not the mode-scoped reachable set.
func (g *ModeGraph) Phase(id PhaseID) (*Phase, error) {
	p, ok := g.def.Phase(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, id)
	}
	return p, nil
}

// ReachablePhases lists every phase reachable from the mode's start phase,
// the start phase included.
func (g *ModeGraph) ReachablePhases() []PhaseID {
	out := make([]PhaseID, 0, len(g.reachable))
	for id := range g.reachable {
		out = append(out, id)
	}
	return out
}

// IsReachable reports whether the phase is in the mode's reachable set.
func (g *ModeGraph) IsReachable(id PhaseID) bool { return g.reachable[id] }

// Edge returns a retained edge by id.
func (g *ModeGraph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// Outbound lists retained edges leaving the phase.
func (g *ModeGraph) Outbound(from PhaseID) []*Edge { return g.outbound[from] }

// Inbound lists retained edges arriving at the phase.
func (g *ModeGraph) Inbound(to PhaseID) []*Edge { return g.inbound[to] }

// EdgeCount returns the number of retained edges.
func (g *ModeGraph) EdgeCount() int { return len(g.edges) }

// IsTerminal reports terminal-set membership for the mode.
func (g *ModeGraph) IsTerminal(id PhaseID) bool { return g.mode.IsTerminal(id) }

// CanAdvance reports whether some retained edge goes from -> to.
func (g *ModeGraph) CanAdvance(from, to PhaseID) bool {
	for _, e := range g.outbound[from] {
		if e.To == to {
			return true
		}
	}
	return false
}
