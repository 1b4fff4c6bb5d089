package ety

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etygraph/internal/graph"
	"etygraph/internal/intern"
	"etygraph/internal/item"
	"etygraph/internal/lang"
	"etygraph/internal/sense"
	"etygraph/internal/wikt"
)

type env struct {
	langs    *lang.Registry
	terms    *intern.Table
	items    *item.Store
	graph    *graph.Graph
	disambig *sense.Disambiguator
	builder  *Builder
	en       lang.ID
	enm      lang.ID
	ine      lang.ID
}

type noVectors struct{}

func (noVectors) Vector(string) ([]float32, bool, error) { return nil, false, nil }

func newEnv(t *testing.T) *env {
	t.Helper()
	data := `{"code":"en","canonicalName":"English","family":"gmw","ancestors":["ine-pro","gem-pro","ang","enm"],"kind":"regular"}
{"code":"enm","canonicalName":"Middle English","family":"gmw","ancestors":["ine-pro","gem-pro","ang"],"kind":"regular"}
{"code":"ang","canonicalName":"Old English","family":"gmw","ancestors":["ine-pro","gem-pro"],"kind":"regular"}
{"code":"gem-pro","canonicalName":"Proto-Germanic","family":"gem","ancestors":["ine-pro"],"kind":"reconstructed"}
{"code":"ine-pro","canonicalName":"Proto-Indo-European","family":"ine","ancestors":[],"kind":"reconstructed"}
{"code":"la","canonicalName":"Latin","family":"itc","ancestors":["ine-pro"],"kind":"regular"}
`
	path := filepath.Join(t.TempDir(), "languages.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	table := intern.NewTable()
	langs, err := lang.Load(path, table)
	require.NoError(t, err)

	e := &env{
		langs: langs,
		terms: intern.NewTable(),
		items: item.NewStore(),
	}
	e.en, _ = langs.ByCode("en")
	e.enm, _ = langs.ByCode("enm")
	e.ine, _ = langs.ByCode("ine-pro")
	e.graph = graph.New(e.items, langs)
	redirects := item.NewRedirects()
	e.disambig = sense.New(e.items, redirects, langs, noVectors{})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.builder = NewBuilder(log, e.items, e.graph, e.disambig)
	return e
}

func (e *env) insert(t *testing.T, l lang.ID, term, pos, gloss string) item.ID {
	t.Helper()
	id, _ := e.items.Insert(item.Key{Lang: l, Term: e.terms.Intern(term)}, false, pos, gloss, "")
	return id
}

func tmpl(name string, args map[string]string) wikt.Template {
	return wikt.Template{Name: name, Args: args}
}

func TestParseFirst_InheritedTemplate(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("inh", map[string]string{"1": "en", "2": "enm", "3": "glowen"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModeInherited, raw.Mode)
	require.Len(t, raw.Terms, 1)
	assert.Equal(t, e.enm, raw.Langs[0])
	assert.Equal(t, "glowen", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, 1, stats.TemplatesParsed)
}

func TestParseFirst_OnlyFirstRecognizedCounts(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("etymon", nil), // unrecognized, skipped
			tmpl("bor", map[string]string{"1": "en", "2": "la", "3": "arsenicum"}),
			tmpl("inh", map[string]string{"1": "en", "2": "enm", "3": "arsenik"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModeBorrowed, raw.Mode, "later templates are ignored")
	assert.Equal(t, "arsenicum", e.terms.Resolve(raw.Terms[0]))
}

func TestParseFirst_WrongChildLangRejected(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("inh", map[string]string{"1": "enm", "2": "ang", "3": "glowen"}),
		},
	}
	var stats Stats
	assert.Nil(t, ParseFirst(entry, e.en, e.langs, e.terms, &stats))
}

func TestParseFirst_UnknownLangCountsRefMissing(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("bor", map[string]string{"1": "en", "2": "xx-unknown", "3": "blah"}),
		},
	}
	var stats Stats
	assert.Nil(t, ParseFirst(entry, e.en, e.langs, e.terms, &stats))
	assert.Equal(t, 1, stats.RefMissing)
}

func TestParseFirst_PrefixHyphens(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("prefix", map[string]string{"1": "en", "2": "re", "3": "do"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModePrefix, raw.Mode)
	require.Len(t, raw.Terms, 2)
	assert.Equal(t, "re-", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, "do", e.terms.Resolve(raw.Terms[1]))
}

func TestParseFirst_SuffixHyphens(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("suffix", map[string]string{"1": "en", "2": "glow", "3": "ing"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, "glow", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, "-ing", e.terms.Resolve(raw.Terms[1]))
}

func TestParseFirst_ConfixThreeTerm(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("confix", map[string]string{"1": "en", "2": "be", "3": "dew", "4": "ed"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModeConfix, raw.Mode)
	require.Len(t, raw.Terms, 3)
	assert.Equal(t, "be-", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, "dew", e.terms.Resolve(raw.Terms[1]))
	assert.Equal(t, "-ed", e.terms.Resolve(raw.Terms[2]))
}

func TestParseFirst_ConfixTwoTerm(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("con", map[string]string{"1": "en", "2": "be", "3": "ed"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	require.Len(t, raw.Terms, 2)
	assert.Equal(t, "be-", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, "-ed", e.terms.Resolve(raw.Terms[1]))
}

func TestParseFirst_CompoundWithLangOverride(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("compound", map[string]string{"1": "en", "2": "over", "3": "caballus", "lang3": "la"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	la, _ := e.langs.ByCode("la")
	assert.Equal(t, []lang.ID{e.en, la}, raw.Langs)
}

func TestParseFirst_VrddhiArgOrder(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "sa",
		EtyTemplates: []wikt.Template{
			tmpl("vrd", map[string]string{"1": "ine-pro", "2": "wódr̥"}),
		},
	}
	var stats Stats
	raw := ParseFirst(entry, 0, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModeVrddhi, raw.Mode)
	assert.Equal(t, e.ine, raw.Langs[0], "arg 1 is the source language for vrddhi")
}

func TestParseFirst_FormOfFallback(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		Senses:   []wikt.Sense{{AltOf: "happening"}},
	}
	var stats Stats
	raw := ParseFirst(entry, e.en, e.langs, e.terms, &stats)
	require.NotNil(t, raw)
	assert.Equal(t, graph.ModeForm, raw.Mode)
	assert.Equal(t, "happening", e.terms.Resolve(raw.Terms[0]))
	assert.Equal(t, 1, stats.FormFallbacks)
}

func TestBuilder_EmitsOrderedCompositionalEdges(t *testing.T) {
	e := newEnv(t)
	redo := e.insert(t, e.en, "redo", "verb", "to do again")
	re := e.insert(t, e.en, "re-", "prefix", "again")
	do := e.insert(t, e.en, "do", "verb", "to perform")

	raw := &RawTemplate{
		Mode:  graph.ModePrefix,
		Langs: []lang.ID{e.en, e.en},
		Terms: []intern.Sym{e.terms.Intern("re-"), e.terms.Intern("do")},
	}
	require.NoError(t, e.builder.Process(redo, raw))

	parents := e.graph.ParentEdges(redo)
	require.Len(t, parents, 2)
	assert.Equal(t, re, parents[0].Parent)
	assert.Equal(t, uint8(0), parents[0].Order)
	assert.Equal(t, do, parents[1].Parent)
	assert.Equal(t, uint8(1), parents[1].Order)
	assert.Equal(t, 2, e.builder.Stats.EdgesAdded)
}

func TestBuilder_ImputesMissingCitation(t *testing.T) {
	e := newEnv(t)
	glowan := e.insert(t, e.enm, "glowen", "verb", "to glow")
	gem, _ := e.langs.ByCode("gem-pro")

	raw := &RawTemplate{
		Mode:  graph.ModeInherited,
		Langs: []lang.ID{gem},
		Terms: []intern.Sym{e.terms.Intern("glōaną")},
	}
	require.NoError(t, e.builder.Process(glowan, raw))

	assert.Equal(t, 1, e.builder.Stats.NewlyImputed)
	parents := e.graph.ParentEdges(glowan)
	require.Len(t, parents, 1)
	imp := e.items.Get(parents[0].Parent)
	assert.True(t, imp.Imputed)
	assert.True(t, imp.Reconstructed, "proto-language placeholders are reconstructed")

	// A second citation reuses the same placeholder.
	other := e.insert(t, e.en, "gleam", "verb", "to gleam")
	require.NoError(t, e.builder.Process(other, raw))
	assert.Equal(t, 1, e.builder.Stats.NewlyImputed)
	assert.Equal(t, parents[0].Parent, e.graph.ParentEdges(other)[0].Parent)
}

func TestBuilder_DropsCycleTemplate(t *testing.T) {
	e := newEnv(t)
	a := e.insert(t, e.en, "a", "noun", "first")
	bTerm := e.terms.Intern("b")
	b := e.insert(t, e.enm, "b", "noun", "second")

	require.NoError(t, e.builder.Process(a, &RawTemplate{
		Mode:  graph.ModeInherited,
		Langs: []lang.ID{e.enm},
		Terms: []intern.Sym{bTerm},
	}))
	require.Equal(t, 1, e.graph.EdgeCount())

	// b inheriting from a would close the cycle; the edge is dropped.
	require.NoError(t, e.builder.Process(b, &RawTemplate{
		Mode:  graph.ModeInherited,
		Langs: []lang.ID{e.en},
		Terms: []intern.Sym{e.terms.Intern("a")},
	}))
	assert.Equal(t, 1, e.graph.EdgeCount())
	assert.Equal(t, 1, e.builder.Stats.CyclesDropped)
	assert.False(t, e.graph.HasParents(b))
}

func TestBuilder_SkipsChildWithExistingParents(t *testing.T) {
	e := newEnv(t)
	a := e.insert(t, e.en, "a", "noun", "first")
	b := e.insert(t, e.enm, "b", "noun", "second")
	c := e.insert(t, e.enm, "c", "noun", "third")
	e.graph.AddEdge(a, b, graph.ModeInherited, 0)

	require.NoError(t, e.builder.Process(a, &RawTemplate{
		Mode:  graph.ModeBorrowed,
		Langs: []lang.ID{e.enm},
		Terms: []intern.Sym{e.terms.Intern("c")},
	}))
	parents := e.graph.ParentEdges(a)
	require.Len(t, parents, 1)
	assert.Equal(t, b, parents[0].Parent, "first relation source wins")
	_ = c
}

func TestParseRoot_Template(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		EtyTemplates: []wikt.Template{
			tmpl("root", map[string]string{"1": "en", "2": "ine-pro", "3": "bʰel- (shiny)"}),
		},
	}
	root := ParseRoot(entry, "en", e.langs, e.terms)
	require.NotNil(t, root)
	assert.Equal(t, e.ine, root.Lang)
	assert.Equal(t, "bʰel-", e.terms.Resolve(root.Term))
	assert.Equal(t, "shiny", root.SenseID)
}

func TestParseRoot_Category(t *testing.T) {
	e := newEnv(t)
	entry := &wikt.Entry{
		LangCode: "en",
		Categories: []string{
			"English lemmas",
			"English terms derived from the Proto-Indo-European root *ǵʰel- (shine)",
		},
	}
	root := ParseRoot(entry, "en", e.langs, e.terms)
	require.NotNil(t, root)
	assert.Equal(t, e.ine, root.Lang)
	assert.Equal(t, "ǵʰel-", e.terms.Resolve(root.Term))
	assert.Equal(t, "shine", root.SenseID)
}

func TestAddRootEdge_OnlyWhenParentless(t *testing.T) {
	e := newEnv(t)
	gold := e.insert(t, e.en, "gold", "noun", "metal")
	root := &RootCitation{Lang: e.ine, Term: e.terms.Intern("ǵʰelh₃-")}

	require.NoError(t, e.builder.AddRootEdge(gold, root))
	require.Len(t, e.graph.ParentEdges(gold), 1)
	assert.Equal(t, graph.ModeRoot, e.graph.ParentEdges(gold)[0].Mode)
	assert.Equal(t, 1, e.builder.Stats.RootEdges)

	// An item that already has ancestry keeps it.
	glow := e.insert(t, e.en, "glow", "verb", "to glow")
	glowen := e.insert(t, e.enm, "glowen", "verb", "to glow")
	e.graph.AddEdge(glow, glowen, graph.ModeInherited, 0)
	require.NoError(t, e.builder.AddRootEdge(glow, root))
	require.Len(t, e.graph.ParentEdges(glow), 1)
	assert.Equal(t, graph.ModeInherited, e.graph.ParentEdges(glow)[0].Mode)
}
