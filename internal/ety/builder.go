package ety

import (
	"log/slog"

	"etygraph/internal/graph"
	"etygraph/internal/item"
	"etygraph/internal/sense"
)

// Builder emits edges for parsed templates, routing citations through the
// disambiguator and guarding the ancestry-cycle invariant.
type Builder struct {
	log      *slog.Logger
	items    *item.Store
	graph    *graph.Graph
	disambig *sense.Disambiguator
	Stats    Stats
}

func NewBuilder(log *slog.Logger, items *item.Store, g *graph.Graph, disambig *sense.Disambiguator) *Builder {
	return &Builder{
		log:      log,
		items:    items,
		graph:    g,
		disambig: disambig,
	}
}

// Process resolves every component of the template and inserts the edges
// for child. A template any of whose edges would close an ancestry cycle
// is dropped whole, so compositional order-index sets stay contiguous.
func (b *Builder) Process(child item.ID, raw *RawTemplate) error {
	if raw == nil {
		return nil
	}
	if b.graph.HasParents(child) {
		return nil
	}

	parents := make([]item.ID, 0, len(raw.Terms))
	for i := range raw.Terms {
		gk := item.GroupKey{Lang: raw.Langs[i], Term: raw.Terms[i]}
		res, newlyImputed, err := b.disambig.ResolveOrImpute(gk, child)
		if err != nil {
			return err
		}
		if newlyImputed {
			b.Stats.NewlyImputed++
		}
		parents = append(parents, res.ID)
	}

	for _, p := range parents {
		if b.graph.WouldCycle(child, p) {
			b.Stats.CyclesDropped++
			b.log.Warn("dropping ety template: would create ancestry cycle",
				slog.Uint64("child", uint64(child)),
				slog.Uint64("parent", uint64(p)),
				slog.String("mode", raw.Mode.String()),
			)
			return nil
		}
	}
	for i, p := range parents {
		b.graph.AddEdge(child, p, raw.Mode, uint8(i))
		b.Stats.EdgesAdded++
	}
	return nil
}

// AddRootEdge links an item that ended the build without any parents to
// its cited root, imputing the root item if needed.
func (b *Builder) AddRootEdge(child item.ID, root *RootCitation) error {
	if root == nil || b.graph.HasParents(child) {
		return nil
	}
	gk := item.GroupKey{Lang: root.Lang, Term: root.Term}
	res, newlyImputed, err := b.disambig.ResolveOrImpute(gk, child)
	if err != nil {
		return err
	}
	if newlyImputed {
		b.Stats.NewlyImputed++
	}
	if b.graph.WouldCycle(child, res.ID) {
		b.Stats.CyclesDropped++
		return nil
	}
	b.graph.AddEdge(child, res.ID, graph.ModeRoot, 0)
	b.Stats.EdgesAdded++
	b.Stats.RootEdges++
	return nil
}
