package graph

import "etygraph/internal/intern"

// Mode labels an edge with its etymological relation. The numbering is
// dense so a Mode doubles as its interned id.
type Mode uint8

const (
	// Derived-kind templates: 1=child lang, 2=source lang, 3=source term.
	ModeDerived Mode = iota
	ModeInherited
	ModeBorrowed
	ModeLearnedBorrowing
	ModeSemiLearnedBorrowing
	ModeUnadaptedBorrowing
	ModeOrthographicBorrowing
	ModeSemanticLoan
	ModeCalque
	ModePartialCalque
	ModePhonoSemanticMatching
	ModeUndefinedDerivation
	ModeTransliteration
	// Abbreviation-kind templates: 1=lang, 2=source term (same language).
	ModeAbbreviation
	ModeAdverbialAccusative
	ModeContraction
	ModeReduplication
	ModeSyncopicForm
	ModeRebracketing
	ModeNominalization
	ModeEllipsis
	ModeAcronym
	ModeInitialism
	ModeConversion
	ModeClipping
	ModeCausative
	ModeBackFormation
	ModeDeverbal
	ModeApocopicForm
	ModeApheticForm
	// Compound-kind templates: 1=lang, 2..N=component terms.
	ModeCompound
	ModeUniverbation
	ModeTransfix
	ModeSurfaceAnalysis
	ModeSuffix
	ModePrefix
	ModeInfix
	ModeConfix
	ModeCircumfix
	ModeBlend
	ModeAffix
	// Vrddhi-kind templates: 1=source lang, 2=source term.
	ModeVrddhi
	ModeVrddhiYa
	// Mention is not a true ety mode, but ety sections commonly use it
	// to indicate a relation no dedicated template covers.
	ModeMention
	// Ad-hoc modes, never parsed from a template of that name.
	ModeRoot
	ModeForm
	ModeMorphologicalDerivation

	modeCount
)

// TemplateKind groups modes by template argument convention.
type TemplateKind uint8

const (
	KindNone TemplateKind = iota
	KindDerived
	KindAbbreviation
	KindCompound
	KindVrddhi
)

var modeNames = [modeCount]string{
	ModeDerived:                 "derived",
	ModeInherited:               "inherited",
	ModeBorrowed:                "borrowed",
	ModeLearnedBorrowing:        "learned borrowing",
	ModeSemiLearnedBorrowing:    "semi-learned borrowing",
	ModeUnadaptedBorrowing:      "unadapted borrowing",
	ModeOrthographicBorrowing:   "orthographic borrowing",
	ModeSemanticLoan:            "semantic loan",
	ModeCalque:                  "calque",
	ModePartialCalque:           "partial calque",
	ModePhonoSemanticMatching:   "phono-semantic matching",
	ModeUndefinedDerivation:     "undefined derivation",
	ModeTransliteration:         "transliteration",
	ModeAbbreviation:            "abbreviation",
	ModeAdverbialAccusative:     "adverbial accusative",
	ModeContraction:             "contraction",
	ModeReduplication:           "reduplication",
	ModeSyncopicForm:            "syncopic form",
	ModeRebracketing:            "rebracketing",
	ModeNominalization:          "nominalization",
	ModeEllipsis:                "ellipsis",
	ModeAcronym:                 "acronym",
	ModeInitialism:              "initialism",
	ModeConversion:              "conversion",
	ModeClipping:                "clipping",
	ModeCausative:               "causative",
	ModeBackFormation:           "back-formation",
	ModeDeverbal:                "deverbal",
	ModeApocopicForm:            "apocopic form",
	ModeApheticForm:             "aphetic form",
	ModeCompound:                "compound",
	ModeUniverbation:            "univerbation",
	ModeTransfix:                "transfix",
	ModeSurfaceAnalysis:         "surface analysis",
	ModeSuffix:                  "suffix",
	ModePrefix:                  "prefix",
	ModeInfix:                   "infix",
	ModeConfix:                  "confix",
	ModeCircumfix:               "circumfix",
	ModeBlend:                   "blend",
	ModeAffix:                   "affix",
	ModeVrddhi:                  "vṛddhi",
	ModeVrddhiYa:                "vṛddhi-ya",
	ModeMention:                 "mention",
	ModeRoot:                    "root",
	ModeForm:                    "form",
	ModeMorphologicalDerivation: "morphological derivation",
}

// templateAliases maps wiktionary template names and their shortcuts to
// modes. The der+/inh+/bor+/com+ variants are deliberately absent: their
// expansions emit the plain templates alongside them, so recognizing both
// would double-count.
var templateAliases = map[string]Mode{
	"der": ModeDerived, "der-lite": ModeDerived,
	"inh": ModeInherited, "inh-lite": ModeInherited,
	"bor":  ModeBorrowed,
	"lbor": ModeLearnedBorrowing,
	"slbor": ModeSemiLearnedBorrowing, "slb": ModeSemiLearnedBorrowing,
	"ubor": ModeUnadaptedBorrowing,
	"obor": ModeOrthographicBorrowing,
	"sl":   ModeSemanticLoan, "sml": ModeSemanticLoan,
	"cal": ModeCalque, "clq": ModeCalque,
	"pcal": ModePartialCalque, "pclq": ModePartialCalque,
	"psm":  ModePhonoSemanticMatching,
	"uder": ModeUndefinedDerivation, "der?": ModeUndefinedDerivation,
	"translit": ModeTransliteration,
	"abbrev":   ModeAbbreviation,
	"contr":    ModeContraction,
	"rdp":      ModeReduplication,
	"sync":     ModeSyncopicForm,
	"nom":      ModeNominalization,
	"back-form": ModeBackFormation, "bf": ModeBackFormation,
	"com":  ModeCompound,
	"univ": ModeUniverbation,
	"surf": ModeSurfaceAnalysis,
	"suf":  ModeSuffix,
	"pre":  ModePrefix,
	"con":  ModeConfix,
	"af":   ModeAffix,
	"vrddhi": ModeVrddhi, "vrd": ModeVrddhi,
	"vrddhi-ya": ModeVrddhiYa, "vrd-ya": ModeVrddhiYa,
	"m": ModeMention,
}

var nameToMode = func() map[string]Mode {
	m := make(map[string]Mode, int(modeCount)+len(templateAliases))
	for mode, name := range modeNames {
		m[name] = Mode(mode)
	}
	for alias, mode := range templateAliases {
		m[alias] = mode
	}
	// Full names that are never template names resolve for writing but
	// must not match templates; ModeFromTemplate filters them.
	return m
}()

func (m Mode) String() string {
	return modeNames[m]
}

// ModeFromTemplate resolves a wiktionary template name (full or shortcut)
// to its mode. Ad-hoc modes never match a template.
func ModeFromTemplate(name string) (Mode, bool) {
	m, ok := nameToMode[name]
	if !ok {
		return 0, false
	}
	switch m {
	case ModeRoot, ModeForm, ModeMorphologicalDerivation:
		return 0, false
	}
	return m, true
}

// Kind reports the template argument convention for the mode.
func (m Mode) Kind() TemplateKind {
	switch {
	case m <= ModeTransliteration:
		return KindDerived
	case m <= ModeApheticForm:
		return KindAbbreviation
	case m <= ModeAffix:
		return KindCompound
	case m == ModeVrddhi || m == ModeVrddhiYa:
		return KindVrddhi
	default:
		return KindNone
	}
}

// Compositional reports whether the mode carries multiple ordered parents
// per child. Everything else is an ancestry mode with one parent per edge.
func (m Mode) Compositional() bool {
	return m.Kind() == KindCompound
}

// RegisterModes pre-populates the ety-mode interning table so that
// intern.Sym(mode) equals the mode's own numbering.
func RegisterModes(t *intern.Table) {
	for _, name := range modeNames {
		t.Intern(name)
	}
}
