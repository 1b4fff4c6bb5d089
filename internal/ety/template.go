// Package ety turns etymology-section templates into labeled ancestry and
// compositional edges, imputing placeholder items for citations that have
// no entry.
package ety

import (
	"regexp"
	"strconv"
	"strings"

	"etygraph/internal/graph"
	"etygraph/internal/intern"
	"etygraph/internal/lang"
	"etygraph/internal/wikt"
)

// RawTemplate is a parsed citation: a mode plus aligned (lang, term)
// components in source order.
type RawTemplate struct {
	Mode  graph.Mode
	Langs []lang.ID
	Terms []intern.Sym
}

// Stats counts what template parsing and edge building saw; the pipeline
// folds these into its end-of-run summary.
type Stats struct {
	TemplatesParsed int
	FormFallbacks   int
	RefMissing      int
	CyclesDropped   int
	NewlyImputed    int
	EdgesAdded      int
	RootEdges       int
}

// ParseFirst selects the first applicable ety template of the entry: the
// first whose name is in the recognized-modes table and whose arguments
// parse. Remaining templates are deliberately ignored; see the repo design
// notes. When no template applies, the entry's alt-of/form-of sense link
// yields a same-language form citation.
func ParseFirst(e *wikt.Entry, selfLang lang.ID, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	for i := range e.EtyTemplates {
		t := &e.EtyTemplates[i]
		mode, ok := graph.ModeFromTemplate(t.Name)
		if !ok {
			continue
		}
		if raw := parseTemplate(t, mode, e.LangCode, selfLang, langs, terms, stats); raw != nil {
			stats.TemplatesParsed++
			return raw
		}
	}

	// Fallback: "happenin'" has no ety section but is an alt_of of
	// "happening"; record that as a form relation.
	if len(e.Senses) > 0 {
		alt := e.Senses[0].AltOf
		if alt == "" {
			alt = e.Senses[0].FormOf
		}
		if alt = cleanCited(alt); alt != "" {
			stats.FormFallbacks++
			return &RawTemplate{
				Mode:  graph.ModeForm,
				Langs: []lang.ID{selfLang},
				Terms: []intern.Sym{terms.Intern(alt)},
			}
		}
	}
	return nil
}

func parseTemplate(t *wikt.Template, mode graph.Mode, selfCode string, selfLang lang.ID, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	switch mode.Kind() {
	case graph.KindDerived:
		return parseDerived(t, mode, selfCode, langs, terms, stats)
	case graph.KindAbbreviation:
		return parseAbbrev(t, mode, selfCode, selfLang, terms)
	case graph.KindCompound:
		switch mode {
		case graph.ModePrefix:
			return parsePrefix(t, selfCode, selfLang, terms)
		case graph.ModeSuffix:
			return parseSuffix(t, selfCode, selfLang, terms)
		case graph.ModeInfix:
			return parseInfix(t, selfCode, selfLang, terms)
		case graph.ModeConfix:
			return parseConfix(t, selfCode, selfLang, terms)
		case graph.ModeCircumfix:
			return parseCircumfix(t, selfCode, selfLang, terms)
		default:
			return parseCompound(t, mode, selfCode, selfLang, langs, terms, stats)
		}
	case graph.KindVrddhi:
		return parseVrddhi(t, mode, langs, terms, stats)
	default:
		if mode == graph.ModeMention {
			return parseMention(t, langs, terms, stats)
		}
		return nil
	}
}

// Derived-kind: 1=child lang, 2=source lang, 3=source term.
func parseDerived(t *wikt.Template, mode graph.Mode, selfCode string, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	srcCode, ok := t.Arg("2")
	if !ok {
		return nil
	}
	srcLang, ok := langs.ByCode(srcCode)
	if !ok {
		stats.RefMissing++
		return nil
	}
	term, ok := t.Arg("3")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  mode,
		Langs: []lang.ID{srcLang},
		Terms: []intern.Sym{terms.Intern(term)},
	}
}

// Abbreviation-kind: 1=lang, 2=source term, within the same language.
func parseAbbrev(t *wikt.Template, mode graph.Mode, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	term, ok := t.Arg("2")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  mode,
		Langs: []lang.ID{selfLang},
		Terms: []intern.Sym{terms.Intern(term)},
	}
}

// Mention: 1=lang of the mentioned term, 2=term. Not a proper ety
// template, but ety sections lean on it when no dedicated mode fits.
func parseMention(t *wikt.Template, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	code, ok := t.Arg("1")
	if !ok {
		return nil
	}
	l, ok := langs.ByCode(code)
	if !ok {
		stats.RefMissing++
		return nil
	}
	term, ok := t.Arg("2")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  graph.ModeMention,
		Langs: []lang.ID{l},
		Terms: []intern.Sym{terms.Intern(term)},
	}
}

// Vrddhi-kind: unusually, 1=source lang, 2=source term.
func parseVrddhi(t *wikt.Template, mode graph.Mode, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	code, ok := t.Arg("1")
	if !ok {
		return nil
	}
	l, ok := langs.ByCode(code)
	if !ok {
		stats.RefMissing++
		return nil
	}
	term, ok := t.Arg("2")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  mode,
		Langs: []lang.ID{l},
		Terms: []intern.Sym{terms.Intern(term)},
	}
}

// Compound-kind general case: components at 2..N, each with an optional
// langN override. Left-to-right order is semantic and preserved.
func parseCompound(t *wikt.Template, mode graph.Mode, selfCode string, selfLang lang.ID, langs *lang.Registry, terms *intern.Table, stats *Stats) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	raw := &RawTemplate{Mode: mode}
	for n := 2; ; n++ {
		term, ok := t.Arg(itoa(n))
		if !ok {
			break
		}
		l := selfLang
		if code, ok := t.Arg("lang" + itoa(n)); ok {
			overrideLang, ok := langs.ByCode(code)
			if !ok {
				stats.RefMissing++
				return nil
			}
			l = overrideLang
		}
		raw.Terms = append(raw.Terms, terms.Intern(term))
		raw.Langs = append(raw.Langs, l)
	}
	if len(raw.Terms) == 0 {
		return nil
	}
	return raw
}

// Prefix: {{prefix|lang|pre|term}} stores "pre-" then the stem.
func parsePrefix(t *wikt.Template, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	pre, ok := t.Arg("2")
	if !ok {
		return nil
	}
	term, ok := t.Arg("3")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  graph.ModePrefix,
		Langs: []lang.ID{selfLang, selfLang},
		Terms: []intern.Sym{terms.Intern(hyphenSuffixed(pre)), terms.Intern(term)},
	}
}

// Suffix: {{suffix|lang|term|suf}} stores the stem then "-suf".
func parseSuffix(t *wikt.Template, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	term, ok := t.Arg("2")
	if !ok {
		return nil
	}
	suf, ok := t.Arg("3")
	if !ok {
		return nil
	}
	return &RawTemplate{
		Mode:  graph.ModeSuffix,
		Langs: []lang.ID{selfLang, selfLang},
		Terms: []intern.Sym{terms.Intern(term), terms.Intern(hyphenPrefixed(suf))},
	}
}

// Infix: {{infix|lang|term|in}} stores the stem then "-in-".
func parseInfix(t *wikt.Template, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	term, ok := t.Arg("2")
	if !ok {
		return nil
	}
	in, ok := t.Arg("3")
	if !ok {
		return nil
	}
	infix := hyphenPrefixed(hyphenSuffixed(in))
	return &RawTemplate{
		Mode:  graph.ModeInfix,
		Langs: []lang.ID{selfLang, selfLang},
		Terms: []intern.Sym{terms.Intern(term), terms.Intern(infix)},
	}
}

// Confix: {{confix|lang|pre|term|suf}} stores "pre-", the stem, "-suf";
// the three-arg variant has no stem.
func parseConfix(t *wikt.Template, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	pre, ok := t.Arg("2")
	if !ok {
		return nil
	}
	second, ok := t.Arg("3")
	if !ok {
		return nil
	}
	raw := &RawTemplate{Mode: graph.ModeConfix}
	if third, ok := t.Arg("4"); ok {
		raw.Terms = []intern.Sym{
			terms.Intern(hyphenSuffixed(pre)),
			terms.Intern(second),
			terms.Intern(hyphenPrefixed(third)),
		}
		raw.Langs = []lang.ID{selfLang, selfLang, selfLang}
		return raw
	}
	raw.Terms = []intern.Sym{
		terms.Intern(hyphenSuffixed(pre)),
		terms.Intern(hyphenPrefixed(second)),
	}
	raw.Langs = []lang.ID{selfLang, selfLang}
	return raw
}

// Circumfix: {{circumfix|lang|pre|term|suf}} stores the stem then the
// joined "pre- -suf" circumfix as one component.
func parseCircumfix(t *wikt.Template, selfCode string, selfLang lang.ID, terms *intern.Table) *RawTemplate {
	if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
		return nil
	}
	pre, ok := t.Arg("2")
	if !ok {
		return nil
	}
	term, ok := t.Arg("3")
	if !ok {
		return nil
	}
	suf, ok := t.Arg("4")
	if !ok {
		return nil
	}
	circ := hyphenSuffixed(pre) + " " + hyphenPrefixed(suf)
	return &RawTemplate{
		Mode:  graph.ModeCircumfix,
		Langs: []lang.ID{selfLang, selfLang},
		Terms: []intern.Sym{terms.Intern(term), terms.Intern(circ)},
	}
}

func hyphenSuffixed(s string) string {
	if strings.HasSuffix(s, "-") {
		return s
	}
	return s + "-"
}

func hyphenPrefixed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "-" + s
}

func cleanCited(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "*")
	if s == "-" {
		return ""
	}
	return s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// RootCitation is a {{root}} citation (or the equivalent category): the
// deep ancestor an item without an etymology chain still descends from.
type RootCitation struct {
	Lang    lang.ID
	Term    intern.Sym
	SenseID string
}

var rootCategory = regexp.MustCompile(`^(.+) terms derived from the (.+) root \*([^ ]+?)(?: \((.+)\))?$`)

// ParseRoot extracts a root citation from the entry's templates, falling
// back to "X terms derived from the Y root *Z" categories.
func ParseRoot(e *wikt.Entry, selfCode string, langs *lang.Registry, terms *intern.Table) *RootCitation {
	for i := range e.EtyTemplates {
		t := &e.EtyTemplates[i]
		if t.Name != "root" {
			continue
		}
		if childLang, ok := t.Arg("1"); !ok || childLang != selfCode {
			continue
		}
		code, ok := t.Arg("2")
		if !ok {
			continue
		}
		rootLang, ok := langs.ByCode(code)
		if !ok {
			continue
		}
		term, ok := t.Arg("3")
		if !ok {
			continue
		}
		if _, multi := t.Arg("4"); multi {
			// Multi-root templates are skipped wholesale rather than
			// guessed at.
			continue
		}
		sense := ""
		// A senseid sometimes rides in parentheses after the term.
		if l := strings.LastIndex(term, " ("); l >= 0 && strings.HasSuffix(term, ")") {
			sense = term[l+2 : len(term)-1]
			term = term[:l]
		} else if id, ok := t.Arg("id"); ok {
			sense = id
		}
		return &RootCitation{Lang: rootLang, Term: terms.Intern(term), SenseID: sense}
	}

	selfName := ""
	if id, ok := langs.ByCode(selfCode); ok {
		if l, ok := langs.Get(id); ok {
			selfName = l.Name
		}
	}
	for _, cat := range e.Categories {
		m := rootCategory.FindStringSubmatch(cat)
		if m == nil || m[1] != selfName {
			continue
		}
		rootLang, ok := langs.ByName(m[2])
		if !ok {
			continue
		}
		return &RootCitation{Lang: rootLang, Term: terms.Intern(m[3]), SenseID: m[4]}
	}
	return nil
}
