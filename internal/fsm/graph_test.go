package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yaml string) *Definition {
	t.Helper()
	def, err := ParseDefinition([]byte(yaml))
	require.NoError(t, err)
	return def
}

func TestBuildModeGraph_ExpansionAndIndices(t *testing.T) {
	def := mustParse(t, fixtureCatalog)

	g, err := BuildModeGraph(def, "main")
	require.NoError(t, err)

	// t_multi has 2 origins and expands into 2 edges with origin-qualified
	// ids carrying the shared destination and label.
	eb, ok := g.Edge("t_multi@B")
	require.True(t, ok, "expanded edge t_multi@B missing")
	ec, ok := g.Edge("t_multi@C")
	require.True(t, ok, "expanded edge t_multi@C missing")
	assert.Equal(t, PhaseID("D"), eb.To)
	assert.Equal(t, PhaseID("D"), ec.To)
	assert.Equal(t, eb.Label, ec.Label)
	assert.Equal(t, TemplateID("t_multi"), eb.Template)

	// Single-origin templates keep their template id as the edge id.
	_, ok = g.Edge("t_ab")
	assert.True(t, ok)

	assert.Len(t, g.Outbound("B"), 2) // t_bc and t_multi@B
	assert.Len(t, g.Inbound("D"), 2)
	assert.True(t, g.CanAdvance("A", "B"))
	assert.False(t, g.CanAdvance("A", "D"))
	assert.True(t, g.IsTerminal("D"))
	assert.False(t, g.IsTerminal("A"))
}

func TestBuildModeGraph_ReachabilityPruning(t *testing.T) {
	def := mustParse(t, fixtureCatalog)

	g, err := BuildModeGraph(def, "main")
	require.NoError(t, err)

	// The reachable set always contains the start phase, and every
	// retained edge's origin is a member of it.
	assert.True(t, g.IsReachable("A"))
	for _, from := range []PhaseID{"A", "B", "C"} {
		for _, e := range g.Outbound(from) {
			assert.True(t, g.IsReachable(e.From), "edge %s has unreachable origin", e.ID)
		}
	}
	assert.Empty(t, g.DroppedEdges)
}

func TestBuildModeGraph_IndependentPruningAcrossModes(t *testing.T) {
	def := mustParse(t, fixtureCatalog)

	// Mode "short" starts at B and allows t_ab and t_multi. A cannot be
	// reached from B, and neither can C, so t_ab and t_multi@C are
	// dropped while t_multi@B survives.
	g, err := BuildModeGraph(def, "short")
	require.NoError(t, err)

	_, ok := g.Edge("t_multi@B")
	assert.True(t, ok)
	_, ok = g.Edge("t_multi@C")
	assert.False(t, ok)
	_, ok = g.Edge("t_ab")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"t_ab", "t_multi@C"}, g.DroppedEdges)

	// Same template id, different retained set than mode "main".
	main, err := BuildModeGraph(def, "main")
	require.NoError(t, err)
	_, ok = main.Edge("t_multi@C")
	assert.True(t, ok)
}

func TestBuildModeGraph_UnknownMode(t *testing.T) {
	def := mustParse(t, fixtureCatalog)
	_, err := BuildModeGraph(def, "nope")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModeGraph_PhaseDescriptorsComeFromCatalog(t *testing.T) {
	def := mustParse(t, fixtureCatalog)
	g, err := BuildModeGraph(def, "short")
	require.NoError(t, err)

	// A is not reachable in "short" but its descriptor still resolves:
	// descriptors are catalog-wide.
	p, err := g.Phase("A")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", p.Label)

	_, err = g.Phase("NOPE")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestBuildModeGraph_DefaultCatalog(t *testing.T) {
	def, err := LoadDefinition("")
	require.NoError(t, err)

	for _, modeID := range def.ModeIDs() {
		g, err := BuildModeGraph(def, modeID)
		require.NoError(t, err, "mode %s", modeID)
		assert.True(t, g.IsReachable(g.Mode().StartPhase))
		assert.Empty(t, g.DroppedEdges, "default catalog should not ship unreachable transitions in %s", modeID)
	}

	// The cross-country mode reaches PATTERN_ENTRY from both DESCENT and
	// CRUISE via the multi-origin join template.
	g, err := BuildModeGraph(def, "VFR_CROSS_COUNTRY")
	require.NoError(t, err)
	_, ok := g.Edge("t_join_pattern@DESCENT")
	assert.True(t, ok)
	_, ok = g.Edge("t_join_pattern@CRUISE")
	assert.True(t, ok)
}
