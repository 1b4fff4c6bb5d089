// Package pipeline orchestrates the two-pass build: pass 1 streams the
// dump into the item store and redirect table, pass 2 re-reads it to
// collect citations, warms the embedding cache, builds edges, and hands
// the finished graph to the serializer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"etygraph/internal/desc"
	"etygraph/internal/embed"
	"etygraph/internal/ety"
	"etygraph/internal/graph"
	"etygraph/internal/intern"
	"etygraph/internal/item"
	"etygraph/internal/lang"
	"etygraph/internal/sense"
	"etygraph/internal/serialize"
	"etygraph/internal/wikt"
)

// Error kinds that map to process exit codes at the command layer.
// Embedding failures carry embed.ErrEmbedFailed.
var (
	// ErrInput covers unreadable input and serialization failures.
	ErrInput = errors.New("input or serialization error")
	// ErrReference covers missing reference data at startup.
	ErrReference = errors.New("reference data missing")
)

// Config selects inputs, outputs, and the embedding backend.
type Config struct {
	InputPath         string
	SerializationPath string
	TurtlePath        string // empty disables turtle output
	LanguageDataPath  string
	CacheDir          string
	BatchSize         int
	Embeddings        embed.Options
}

// PhaseResult is the outcome of one pipeline phase.
type PhaseResult struct {
	Items    int
	Edges    int
	Skipped  int
	Errors   int
	Duration time.Duration
	Err      error
}

// Counters are the non-fatal diagnostics reported at end of run.
type Counters struct {
	Lines            int
	MalformedLines   int
	SkippedRecords   int
	Redirects        int
	RedirectLoops    int
	RealItems        int
	ImputedItems     int
	RefMissing       int
	CycleViolations  int
	DescConflicts    int
	DescAgreements   int
	EmbeddingHits    int
	EmbeddingMisses  int
	EdgesRewritten   int
	SelfLoopsDropped int
}

// allPhases defines the canonical execution order.
var allPhases = []string{
	"reference", "pass1", "collect", "embed", "etymology", "descendants", "roots", "serialize",
}

// Pipeline runs the build. A non-nil embedder overrides the configured
// provider; tests inject deterministic stubs this way.
type Pipeline struct {
	log      *slog.Logger
	cfg      Config
	embedder embed.Embedder
	results  map[string]PhaseResult
	counters Counters

	pool      *intern.Pool
	langs     *lang.Registry
	items     *item.Store
	redirects *item.Redirects
	graph     *graph.Graph
	cache     *embed.Cache
	service   *embed.Service
	disambig  *sense.Disambiguator

	rawEty  map[item.ID]*ety.RawTemplate
	rawDesc map[item.ID][]desc.Line
	rawRoot map[item.ID]*ety.RootCitation

	etyStats  ety.Stats
	descStats desc.Stats
}

func New(log *slog.Logger, cfg Config, embedder embed.Embedder) *Pipeline {
	return &Pipeline{
		log:      log,
		cfg:      cfg,
		embedder: embedder,
		results:  make(map[string]PhaseResult),
		rawEty:   make(map[item.ID]*ety.RawTemplate),
		rawDesc:  make(map[item.ID][]desc.Line),
		rawRoot:  make(map[item.ID]*ety.RootCitation),
	}
}

// Results returns phase results after Run completes.
func (p *Pipeline) Results() map[string]PhaseResult {
	return p.results
}

// CountersSnapshot returns the non-fatal diagnostic counters.
func (p *Pipeline) CountersSnapshot() Counters {
	return p.counters
}

// Run executes all phases in order, stopping at the first fatal error.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, phase := range allPhases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInput, err)
		}
		start := time.Now()
		p.log.Info("starting phase", slog.String("phase", phase))

		var result PhaseResult
		switch phase {
		case "reference":
			result = p.runReference()
		case "pass1":
			result = p.runPass1(ctx)
		case "collect":
			result = p.runCollect(ctx)
		case "embed":
			result = p.runEmbed(ctx)
		case "etymology":
			result = p.runEtymology()
		case "descendants":
			result = p.runDescendants()
		case "roots":
			result = p.runRoots()
		case "serialize":
			result = p.runSerialize()
		}
		result.Duration = time.Since(start)
		p.results[phase] = result

		if result.Err != nil {
			p.log.Error("phase failed",
				slog.String("phase", phase),
				slog.String("error", result.Err.Error()),
				slog.Duration("duration", result.Duration),
			)
			p.closeService()
			return result.Err
		}
		p.log.Info("phase completed",
			slog.String("phase", phase),
			slog.Int("items", result.Items),
			slog.Int("edges", result.Edges),
			slog.Int("skipped", result.Skipped),
			slog.Duration("duration", result.Duration),
		)
	}
	p.logSummary()
	p.closeService()
	return nil
}

// closeService drains the batch worker and releases the cache. The cache
// stays consistent on abort: every flushed batch is already durable.
func (p *Pipeline) closeService() {
	if p.service != nil {
		_ = p.service.Flush()
	}
	if p.cache != nil {
		_ = p.cache.Close()
	}
}

// runReference loads the language table and reserves the first id blocks
// of the interning pool.
func (p *Pipeline) runReference() PhaseResult {
	p.pool = intern.NewPool()
	graph.RegisterModes(p.pool.Modes)

	langs, err := lang.Load(p.cfg.LanguageDataPath, p.pool.Langs)
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("%w: %v", ErrReference, err)}
	}
	p.langs = langs
	p.items = item.NewStore()
	p.redirects = item.NewRedirects()
	p.graph = graph.New(p.items, langs)
	return PhaseResult{Items: langs.Len()}
}

// runPass1 streams the dump once, building items and the redirect table.
func (p *Pipeline) runPass1(ctx context.Context) PhaseResult {
	var result PhaseResult
	err := wikt.StreamLines(p.cfg.InputPath, func(n int, line []byte) error {
		if n%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		p.counters.Lines++
		entry, redirect, err := wikt.ParseLine(line)
		if err != nil {
			p.counters.MalformedLines++
			return nil
		}
		switch {
		case redirect != nil:
			p.recordRedirect(redirect)
		case entry != nil:
			if p.insertEntry(entry) {
				result.Items++
			}
		default:
			p.counters.SkippedRecords++
			result.Skipped++
		}
		return nil
	})
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
	}

	p.redirects.Flatten()
	p.counters.Redirects = p.redirects.Len()
	p.counters.RedirectLoops = p.redirects.Loops()
	p.counters.RealItems = p.items.Len()
	return result
}

func (p *Pipeline) recordRedirect(r *wikt.Redirect) {
	if r == nil {
		return
	}
	if r.Reconstruction {
		fromLang, okFrom := p.langs.ByName(r.FromLangName)
		toLang, okTo := p.langs.ByName(r.ToLangName)
		if !okFrom || !okTo {
			p.counters.RefMissing++
			return
		}
		p.redirects.AddReconstruction(
			item.GroupKey{Lang: fromLang, Term: p.pool.Terms.Intern(r.FromTerm)},
			item.GroupKey{Lang: toLang, Term: p.pool.Terms.Intern(r.ToTerm)},
		)
		return
	}
	p.redirects.AddRegular(
		p.pool.Terms.Intern(r.FromTerm),
		p.pool.Terms.Intern(r.ToTerm),
	)
}

// insertEntry adds one parsed entry to the store, one sense at a time so
// POS and gloss lists stay aligned per sense. Reports whether a new item
// was created.
func (p *Pipeline) insertEntry(e *wikt.Entry) bool {
	langID, ok := p.langs.ByCode(e.LangCode)
	if !ok {
		p.counters.RefMissing++
		p.counters.SkippedRecords++
		return false
	}
	key := item.Key{
		Lang:   langID,
		Term:   p.pool.Terms.Intern(e.Term),
		EtyNum: clampEtyNum(e.EtyNum),
	}
	created := false
	inserted := false
	for _, s := range e.Senses {
		if s.Gloss == "" {
			continue
		}
		_, c := p.items.Insert(key, e.Reconstructed, e.POS, s.Gloss, e.Romanization)
		created = created || c
		inserted = true
	}
	if !inserted {
		_, c := p.items.Insert(key, e.Reconstructed, e.POS, "", e.Romanization)
		created = created || c
	}
	return created
}

func clampEtyNum(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// runCollect re-reads the dump, attaching raw templates, descendants
// lines, and root citations to the items pass 1 created.
func (p *Pipeline) runCollect(ctx context.Context) PhaseResult {
	cache, err := embed.OpenCache(p.cfg.CacheDir, p.cfg.Embeddings.Model)
	if err != nil {
		if errors.Is(err, embed.ErrEmbedFailed) {
			return PhaseResult{Err: err}
		}
		return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
	}

	embedder := p.embedder
	if embedder == nil {
		embedder, err = embed.New(ctx, p.cfg.Embeddings)
		if err != nil {
			return PhaseResult{Err: fmt.Errorf("%w: %v", embed.ErrEmbedFailed, err)}
		}
	}
	p.cache = cache
	p.service = embed.NewService(ctx, cache, embedder, p.cfg.BatchSize)
	p.disambig = sense.New(p.items, p.redirects, p.langs, p.service)

	var result PhaseResult
	err = wikt.StreamLines(p.cfg.InputPath, func(n int, line []byte) error {
		if n%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		entry, _, err := wikt.ParseLine(line)
		if err != nil || entry == nil {
			return nil
		}
		langID, ok := p.langs.ByCode(entry.LangCode)
		if !ok {
			return nil
		}
		key := item.Key{
			Lang:   langID,
			Term:   p.pool.Terms.Intern(entry.Term),
			EtyNum: clampEtyNum(entry.EtyNum),
		}
		id, ok := p.items.Lookup(key)
		if !ok {
			return nil
		}
		if _, seen := p.rawEty[id]; !seen {
			if raw := ety.ParseFirst(entry, langID, p.langs, p.pool.Terms, &p.etyStats); raw != nil {
				p.rawEty[id] = raw
				result.Items++
			}
		}
		if _, seen := p.rawDesc[id]; !seen && len(entry.Descendants) > 0 {
			lines := desc.ParseLines(entry, p.langs, p.pool.Terms, &p.descStats)
			if len(lines) > 0 {
				p.rawDesc[id] = lines
			}
		}
		if _, seen := p.rawRoot[id]; !seen {
			if root := ety.ParseRoot(entry, entry.LangCode, p.langs, p.pool.Terms); root != nil {
				p.rawRoot[id] = root
			}
		}
		return nil
	})
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
	}
	return result
}

// runEmbed warms the cache: every text the disambiguator might compare is
// registered, batched through the model on miss, and flushed. Only items
// in ambiguous groups (and their citing contexts) need vectors; the many
// single-sense inflection entries never do.
func (p *Pipeline) runEmbed(ctx context.Context) PhaseResult {
	var result PhaseResult
	need := func(text string) error {
		return p.service.Need(text)
	}

	requireGroup := func(gk item.GroupKey, contextID item.ID, isContext bool) error {
		gk = p.disambig.Rectify(gk)
		group := p.items.Group(gk)
		if len(group) <= 1 && !isContext {
			return nil
		}
		if err := need(p.items.Get(contextID).CanonicalText()); err != nil {
			return err
		}
		for _, cand := range group {
			if err := need(p.items.Get(cand).CanonicalText()); err != nil {
				return err
			}
		}
		return nil
	}

	snapshot := p.items.Len()
	for i := 0; i < snapshot; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
			}
		}
		id := item.ID(i)
		if raw, ok := p.rawEty[id]; ok {
			for j := range raw.Terms {
				gk := item.GroupKey{Lang: raw.Langs[j], Term: raw.Terms[j]}
				if err := requireGroup(gk, id, false); err != nil {
					return PhaseResult{Err: err}
				}
			}
		}
		if root, ok := p.rawRoot[id]; ok {
			gk := item.GroupKey{Lang: root.Lang, Term: root.Term}
			if err := requireGroup(gk, id, false); err != nil {
				return PhaseResult{Err: err}
			}
		}
		for _, line := range p.rawDesc[id] {
			if line.Kind != desc.KindDesc {
				continue
			}
			for j := range line.Terms {
				gk := item.GroupKey{Lang: line.Lang, Term: line.Terms[j]}
				// Descendant items act as parents (contexts) for deeper
				// lines, so their texts are registered unconditionally.
				if err := requireGroup(gk, id, j == 0); err != nil {
					return PhaseResult{Err: err}
				}
			}
		}
	}

	if err := p.service.Flush(); err != nil {
		return PhaseResult{Err: err}
	}
	p.counters.EmbeddingHits, p.counters.EmbeddingMisses = p.service.Stats()
	result.Items = p.counters.EmbeddingMisses
	result.Skipped = p.counters.EmbeddingHits
	return result
}

// runEtymology inserts ancestry and compositional edges from the first
// applicable template of each item, in item-id order for determinism.
func (p *Pipeline) runEtymology() PhaseResult {
	builder := ety.NewBuilder(p.log, p.items, p.graph, p.disambig)
	builder.Stats = p.etyStats
	cyclesBefore := builder.Stats.CyclesDropped
	snapshot := p.items.Len()
	for i := 0; i < snapshot; i++ {
		id := item.ID(i)
		raw, ok := p.rawEty[id]
		if !ok {
			continue
		}
		if err := builder.Process(id, raw); err != nil {
			return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
		}
	}
	p.etyStats = builder.Stats
	p.counters.CycleViolations += builder.Stats.CyclesDropped - cyclesBefore
	p.counters.RefMissing += builder.Stats.RefMissing
	return PhaseResult{Edges: builder.Stats.EdgesAdded}
}

// runDescendants walks Descendants trees, reconciling against the
// etymology edges already present.
func (p *Pipeline) runDescendants() PhaseResult {
	builder := desc.NewBuilder(p.log, p.items, p.graph, p.disambig)
	builder.Stats = p.descStats
	snapshot := p.items.Len()
	edgesBefore := builder.Stats.EdgesAdded
	cyclesBefore := builder.Stats.CyclesDropped
	for i := 0; i < snapshot; i++ {
		id := item.ID(i)
		lines, ok := p.rawDesc[id]
		if !ok {
			continue
		}
		if err := builder.Process(id, lines); err != nil {
			return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
		}
	}
	p.descStats = builder.Stats
	p.counters.CycleViolations += builder.Stats.CyclesDropped - cyclesBefore
	p.counters.DescConflicts = builder.Stats.Conflicts
	p.counters.DescAgreements = builder.Stats.Agreements
	p.counters.RefMissing += builder.Stats.RefMissing
	return PhaseResult{Edges: builder.Stats.EdgesAdded - edgesBefore}
}

// runRoots links items that still have no parents to their cited roots.
func (p *Pipeline) runRoots() PhaseResult {
	builder := ety.NewBuilder(p.log, p.items, p.graph, p.disambig)
	builder.Stats = p.etyStats
	snapshot := p.items.Len()
	before := builder.Stats.RootEdges
	cyclesBefore := builder.Stats.CyclesDropped
	for i := 0; i < snapshot; i++ {
		id := item.ID(i)
		root, ok := p.rawRoot[id]
		if !ok {
			continue
		}
		if err := builder.AddRootEdge(id, root); err != nil {
			return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
		}
	}
	p.etyStats = builder.Stats
	p.counters.CycleViolations += builder.Stats.CyclesDropped - cyclesBefore
	return PhaseResult{Edges: builder.Stats.RootEdges - before}
}

func (p *Pipeline) runSerialize() PhaseResult {
	p.counters.ImputedItems = p.etyStats.NewlyImputed + p.descStats.NewlyImputed

	in := serialize.Input{
		Items:  p.items,
		Graph:  p.graph,
		Langs:  p.langs,
		Terms:  p.pool.Terms,
		Source: p.cfg.InputPath,
	}
	stats, err := serialize.Write(p.cfg.SerializationPath, in)
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
	}
	p.counters.EdgesRewritten = stats.EdgesRewritten
	p.counters.SelfLoopsDropped = stats.SelfLoopsDropped

	if p.cfg.TurtlePath != "" {
		if err := serialize.WriteTurtle(p.cfg.TurtlePath, in); err != nil {
			return PhaseResult{Err: fmt.Errorf("%w: %v", ErrInput, err)}
		}
	}
	return PhaseResult{Items: stats.ItemsWritten, Edges: stats.EdgesWritten}
}

func (p *Pipeline) logSummary() {
	c := p.counters
	p.log.Info("run summary",
		slog.Int("lines", c.Lines),
		slog.Int("malformed_lines", c.MalformedLines),
		slog.Int("skipped_records", c.SkippedRecords),
		slog.Int("redirects", c.Redirects),
		slog.Int("redirect_loops", c.RedirectLoops),
		slog.Int("real_items", c.RealItems),
		slog.Int("imputed_items", c.ImputedItems),
		slog.Int("edges", p.graph.EdgeCount()),
		slog.Int("reference_missing", c.RefMissing),
		slog.Int("cycle_violations", c.CycleViolations),
		slog.Int("descendants_conflicts", c.DescConflicts),
		slog.Int("descendants_agreements", c.DescAgreements),
		slog.Int("embedding_cache_hits", c.EmbeddingHits),
		slog.Int("embedding_cache_misses", c.EmbeddingMisses),
		slog.Int("edges_rewritten", c.EdgesRewritten),
		slog.Int("self_loops_dropped", c.SelfLoopsDropped),
	)
}
