package fsm

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// graphCacheSize comfortably exceeds the number of modes any catalog has
// shipped with; the cache exists for lifetime memoization, not eviction.
const graphCacheSize = 64

// Registry couples a loaded Definition with a per-mode graph cache. It is
// constructed explicitly and passed through call context rather than held
// as package state, so tests can substitute a fixture catalog.
type Registry struct {
	def    *Definition
	logger *zap.Logger

	mu     sync.Mutex
	graphs *lru.Cache[ModeID, *ModeGraph]
}

// NewRegistry wraps a validated Definition.
func NewRegistry(def *Definition, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[ModeID, *ModeGraph](graphCacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{def: def, logger: logger, graphs: cache}, nil
}

// Definition returns the underlying catalog.
func (r *Registry) Definition() *Definition { return r.def }

// Graph returns the memoized operative graph for a mode, building it on
// first use. Repeated calls for the same mode return the same *ModeGraph.
func (r *Registry) Graph(modeID ModeID) (*ModeGraph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.graphs.Get(modeID); ok {
		return g, nil
	}
	g, err := BuildModeGraph(r.def, modeID)
	if err != nil {
		return nil, err
	}
	if len(g.DroppedEdges) > 0 {
		r.logger.Warn("mode allows transitions unreachable from its start phase",
			zap.String("mode", string(modeID)),
			zap.Strings("dropped_edges", g.DroppedEdges))
	}
	r.graphs.Add(modeID, g)
	return g, nil
}

// WarmUp builds every mode's graph concurrently so definition problems and
// dropped-edge warnings surface at startup instead of first request.
func (r *Registry) WarmUp(ctx context.Context) error {
	eg, _ := errgroup.WithContext(ctx)
	for _, modeID := range r.def.ModeIDs() {
		eg.Go(func() error {
			_, err := r.Graph(modeID)
			return err
		})
	}
	return eg.Wait()
}
