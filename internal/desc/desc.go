// Package desc parses Descendants sections — indent-structured trees of
// terms in descendant languages — and emits descent edges, reconciling
// them against ancestry edges already in the graph.
package desc

import (
	"log/slog"
	"strconv"

	"etygraph/internal/graph"
	"etygraph/internal/intern"
	"etygraph/internal/item"
	"etygraph/internal/lang"
	"etygraph/internal/sense"
	"etygraph/internal/wikt"
)

// LineKind classifies a Descendants line.
type LineKind uint8

const (
	// KindDesc lines carry resolvable (lang, term, mode) descendants.
	KindDesc LineKind = iota
	// KindBareLang lines name a language with no term, e.g. {{desc|osp|-}}.
	KindBareLang
	// KindBareText lines have no templates, e.g. "Unsorted formations".
	KindBareText
	// KindOther covers unhandled templates; skipped.
	KindOther
)

// Line is one parsed Descendants line. For KindDesc, Terms and Modes are
// aligned.
type Line struct {
	Depth int
	Kind  LineKind
	Lang  lang.ID
	Terms []intern.Sym
	Modes []graph.Mode
	Text  string
}

// Stats counts descendants parsing and edge building outcomes.
type Stats struct {
	LinesParsed   int
	RefMissing    int
	NewlyImputed  int
	EdgesAdded    int
	Agreements    int
	Conflicts     int
	CyclesDropped int
}

// modeArgs are the {{desc}} arguments that switch a descendant's mode
// away from the default inheritance.
var modeArgs = []string{"bor", "lbor", "slb", "clq", "pclq", "sml", "translit"}

// ParseLines converts an entry's Descendants block to lines.
func ParseLines(e *wikt.Entry, langs *lang.Registry, terms *intern.Table, stats *Stats) []Line {
	var lines []Line
	for i := range e.Descendants {
		lines = append(lines, parseLine(&e.Descendants[i], langs, terms, stats))
		stats.LinesParsed++
	}
	return lines
}

func parseLine(dl *wikt.DescLine, langs *lang.Registry, terms *intern.Table, stats *Stats) Line {
	if len(dl.Templates) == 0 {
		if dl.Text != "" {
			return Line{Depth: dl.Depth, Kind: KindBareText, Text: dl.Text}
		}
		return Line{Depth: dl.Depth, Kind: KindOther}
	}

	// {{desc|xxx|-}} and the like: a language heading with no terms.
	if len(dl.Templates) == 1 {
		t := &dl.Templates[0]
		if t.Name == "desc" || t.Name == "descendant" {
			code, okLang := t.Arg("1")
			_, hasTerm := t.Arg("2")
			_, hasAlt := t.Arg("alt")
			if okLang && !hasTerm && !hasAlt {
				if id, ok := langs.ByCode(code); ok {
					return Line{Depth: dl.Depth, Kind: KindBareLang, Lang: id}
				}
				stats.RefMissing++
				return Line{Depth: dl.Depth, Kind: KindOther}
			}
		}
	}

	isDerivation := false
	for _, tag := range dl.Tags {
		if tag == "derived" {
			isDerivation = true
		}
	}

	langSet := make(map[lang.ID]bool)
	var l lang.ID
	var termList []intern.Sym
	var modeList []graph.Mode
	for i := range dl.Templates {
		tl, tTerms, tModes, ok := parseLineTemplate(&dl.Templates[i], isDerivation, langs, terms, stats)
		if !ok {
			continue
		}
		l = tl
		langSet[tl] = true
		termList = append(termList, tTerms...)
		modeList = append(modeList, tModes...)
	}
	if len(langSet) == 1 && len(termList) > 0 && len(termList) == len(modeList) {
		return Line{Depth: dl.Depth, Kind: KindDesc, Lang: l, Terms: termList, Modes: modeList}
	}
	return Line{Depth: dl.Depth, Kind: KindOther}
}

func parseLineTemplate(t *wikt.Template, isDerivation bool, langs *lang.Registry, terms *intern.Table, stats *Stats) (lang.ID, []intern.Sym, []graph.Mode, bool) {
	switch t.Name {
	case "desc", "descendant":
		return parseDescTemplate(t, langs, terms, stats)
	case "l", "link":
		return parseLinkTemplate(t, isDerivation, langs, terms, stats)
	case "desctree", "descendants tree":
		return parseDesctreeTemplate(t, langs, terms, stats)
	}
	return 0, nil, nil, false
}

// {{desc|lang|term|term2|...}}: "2" is the first term with alt "alt",
// "3" the second with "alt2", and so on.
func parseDescTemplate(t *wikt.Template, langs *lang.Registry, terms *intern.Table, stats *Stats) (lang.ID, []intern.Sym, []graph.Mode, bool) {
	code, ok := t.Arg("1")
	if !ok {
		return 0, nil, nil, false
	}
	l, ok := langs.ByCode(code)
	if !ok {
		stats.RefMissing++
		return 0, nil, nil, false
	}
	var termList []intern.Sym
	var modeList []graph.Mode
	for n := 1; ; n++ {
		term, ok := t.Arg(strconv.Itoa(n + 1))
		if !ok {
			altKey := "alt"
			if n > 1 {
				altKey = "alt" + strconv.Itoa(n)
			}
			if term, ok = t.Arg(altKey); !ok {
				break
			}
		}
		termList = append(termList, terms.Intern(term))
		modeList = append(modeList, descMode(t, n))
	}
	if len(termList) == 0 {
		return 0, nil, nil, false
	}
	return l, termList, modeList, true
}

// {{l|lang|term}}: unspecified relation, conventionally "derived"; lines
// tagged derived are within-language morphological derivations.
func parseLinkTemplate(t *wikt.Template, isDerivation bool, langs *lang.Registry, terms *intern.Table, stats *Stats) (lang.ID, []intern.Sym, []graph.Mode, bool) {
	code, ok := t.Arg("1")
	if !ok {
		return 0, nil, nil, false
	}
	l, ok := langs.ByCode(code)
	if !ok {
		stats.RefMissing++
		return 0, nil, nil, false
	}
	term, ok := t.Arg("2")
	if !ok {
		if term, ok = t.Arg("3"); !ok {
			return 0, nil, nil, false
		}
	}
	mode := graph.ModeDerived
	if isDerivation {
		mode = graph.ModeMorphologicalDerivation
	}
	return l, []intern.Sym{terms.Intern(term)}, []graph.Mode{mode}, true
}

// {{desctree|lang|term}}: one descendant whose own Descendants section is
// inlined by wiktionary; only the head pair matters here.
func parseDesctreeTemplate(t *wikt.Template, langs *lang.Registry, terms *intern.Table, stats *Stats) (lang.ID, []intern.Sym, []graph.Mode, bool) {
	code, ok := t.Arg("1")
	if !ok {
		return 0, nil, nil, false
	}
	l, ok := langs.ByCode(code)
	if !ok {
		stats.RefMissing++
		return 0, nil, nil, false
	}
	term, ok := t.Arg("2")
	if !ok {
		return 0, nil, nil, false
	}
	return l, []intern.Sym{terms.Intern(term)}, []graph.Mode{descMode(t, 1)}, true
}

func descMode(t *wikt.Template, n int) graph.Mode {
	for _, arg := range modeArgs {
		if _, ok := t.Args[arg]; ok {
			if m, found := graph.ModeFromTemplate(arg); found {
				return m
			}
		}
		if _, ok := t.Args[arg+strconv.Itoa(n)]; ok {
			if m, found := graph.ModeFromTemplate(arg); found {
				return m
			}
		}
	}
	return graph.ModeInherited
}

// ancestors tracks the current parent for each indentation depth.
type ancestors struct {
	ids    []item.ID
	depths []int
}

func newAncestors(root item.ID) *ancestors {
	return &ancestors{ids: []item.ID{root}, depths: []int{-1}}
}

func (a *ancestors) pruneAndParent(depth int) item.ID {
	for len(a.ids) > 1 && depth <= a.depths[len(a.depths)-1] {
		a.ids = a.ids[:len(a.ids)-1]
		a.depths = a.depths[:len(a.depths)-1]
	}
	return a.ids[len(a.ids)-1]
}

func (a *ancestors) add(id item.ID, depth int) {
	a.ids = append(a.ids, id)
	a.depths = append(a.depths, depth)
}

// Builder emits descent edges, reconciling against ancestry edges the
// etymology phase already inserted: the etymology source is authoritative,
// so a conflicting descent edge is logged and skipped.
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

// Process walks the parsed lines of root's Descendants block. The first
// term of each line becomes the parent for deeper-nested lines.
func (b *Builder) Process(root item.ID, lines []Line) error {
	anc := newAncestors(root)
	for _, line := range lines {
		parent := anc.pruneAndParent(line.Depth)
		if line.Kind != KindDesc {
			continue
		}
		type resolved struct {
			id   item.ID
			mode graph.Mode
		}
		var targets []resolved
		skipLine := false
		for i := range line.Terms {
			gk := item.GroupKey{Lang: line.Lang, Term: line.Terms[i]}
			res, newlyImputed, err := b.disambig.ResolveOrImpute(gk, parent)
			if err != nil {
				return err
			}
			if newlyImputed {
				b.Stats.NewlyImputed++
			}
			// A root listed inside a descendants tree is nearly always a
			// "compound of" aside, not a descent relation; trust the
			// root's own etymology section instead.
			if b.hasRootPOS(res.ID) {
				skipLine = true
				break
			}
			if i == 0 {
				anc.add(res.ID, line.Depth)
			}
			targets = append(targets, resolved{id: res.ID, mode: line.Modes[i]})
		}
		if skipLine {
			continue
		}
		for _, tgt := range targets {
			b.addDescent(tgt.id, parent, tgt.mode)
		}
	}
	return nil
}

func (b *Builder) hasRootPOS(id item.ID) bool {
	for _, pos := range b.items.Get(id).POS {
		if pos == "root" {
			return true
		}
	}
	return false
}

// addDescent inserts child -> parent unless the child already has an
// authoritative relation. A descent edge agreeing with an existing edge
// is counted as corroboration; a disagreeing one as a conflict.
func (b *Builder) addDescent(child, parent item.ID, mode graph.Mode) {
	if b.graph.HasParents(child) {
		for _, e := range b.graph.ParentEdges(child) {
			if e.Parent == parent {
				b.Stats.Agreements++
				return
			}
		}
		b.Stats.Conflicts++
		b.log.Warn("descendants line disagrees with etymology; keeping etymology",
			slog.Uint64("child", uint64(child)),
			slog.Uint64("descendants_parent", uint64(parent)),
		)
		return
	}
	if b.graph.WouldCycle(child, parent) {
		b.Stats.CyclesDropped++
		b.log.Warn("dropping descent edge: would create ancestry cycle",
			slog.Uint64("child", uint64(child)),
			slog.Uint64("parent", uint64(parent)),
		)
		return
	}
	b.graph.AddEdge(child, parent, mode, 0)
	b.Stats.EdgesAdded++
}
