// Package lang loads the pre-exported language reference table and answers
// ancestry and relatedness queries over it. The table is immutable after
// load; language ids are the first block of ids in the shared lang-code
// interning table.
package lang

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"etygraph/internal/intern"
)

// ID is a language id: an intern.Sym in the lang-code table, guaranteed to
// index into the registry vector for every code present in the reference
// file.
type ID = intern.Sym

// Kind classifies how a language participates in etymologies.
type Kind uint8

const (
	Regular Kind = iota
	EtymologyOnly
	Reconstructed
	AppendixConstructed
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regular", "":
		return Regular, nil
	case "etymology-only":
		return EtymologyOnly, nil
	case "reconstructed":
		return Reconstructed, nil
	case "appendix-constructed":
		return AppendixConstructed, nil
	}
	return Regular, fmt.Errorf("unknown language kind %q", s)
}

func (k Kind) String() string {
	switch k {
	case EtymologyOnly:
		return "etymology-only"
	case Reconstructed:
		return "reconstructed"
	case AppendixConstructed:
		return "appendix-constructed"
	default:
		return "regular"
	}
}

// Language is one row of the reference table.
type Language struct {
	Code      string
	Name      string
	Family    string
	MainCode  string // for etymology-only languages, the code entries live under
	Ancestors []string
	Kind      Kind
	Scripts   []string
	Wikidata  string
}

// Reconstructed languages have no mainspace pages; their terms live under
// the Reconstruction namespace and carry a star in citations.
func (l *Language) IsReconstructed() bool {
	return l.Kind == Reconstructed
}

// row mirrors the JSONL export format of the reference table.
type row struct {
	Code      string   `json:"code"`
	Canonical string   `json:"canonicalName"`
	Family    string   `json:"family"`
	MainCode  string   `json:"mainCode"`
	Ancestors []string `json:"ancestors"`
	Kind      string   `json:"kind"`
	Scripts   []string `json:"scripts"`
	Wikidata  string   `json:"wikidataItem"`
}

// Unrelated is the Distance sentinel for language pairs that share no
// ancestor.
const Unrelated = -1

// Registry is the loaded reference table. Read-only after Load.
type Registry struct {
	table  *intern.Table
	langs  []Language // indexed by ID
	byName map[string]ID
	main   map[ID]ID       // etymology-only code -> main code
	chains map[ID][]ID     // code -> ancestor ids, oldest first
}

// Load reads the JSONL reference file and pre-populates codes into the
// shared lang-code interning table. It must run before any entry parsing
// so that the reserved id block covers every known code.
func Load(path string, table *intern.Table) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open language reference: %w", err)
	}
	defer f.Close()

	r := &Registry{
		table:  table,
		byName: make(map[string]ID),
		main:   make(map[ID]ID),
		chains: make(map[ID][]ID),
	}

	var rows []row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rw row
		if err := json.Unmarshal([]byte(line), &rw); err != nil {
			return nil, fmt.Errorf("language reference line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read language reference: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("language reference %s is empty", path)
	}

	// First pass: reserve a dense id per code so that the langs vector is
	// indexable by ID without holes.
	for _, rw := range rows {
		id := table.Intern(rw.Code)
		for int(id) >= len(r.langs) {
			r.langs = append(r.langs, Language{})
		}
		kind, err := ParseKind(rw.Kind)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", rw.Code, err)
		}
		mainCode := rw.MainCode
		if mainCode == "" {
			mainCode = rw.Code
		}
		r.langs[id] = Language{
			Code:      rw.Code,
			Name:      rw.Canonical,
			Family:    rw.Family,
			MainCode:  mainCode,
			Ancestors: rw.Ancestors,
			Kind:      kind,
			Scripts:   rw.Scripts,
			Wikidata:  rw.Wikidata,
		}
		r.byName[rw.Canonical] = id
	}

	// Second pass: resolve main codes and ancestor chains now that every
	// code has an id.
	for id := range r.langs {
		l := &r.langs[id]
		if l.Code == "" {
			continue
		}
		if mainID, ok := table.Lookup(l.MainCode); ok {
			r.main[ID(id)] = mainID
		} else {
			r.main[ID(id)] = ID(id)
		}
		var chain []ID
		for _, code := range l.Ancestors {
			if aid, ok := table.Lookup(code); ok {
				chain = append(chain, aid)
			}
		}
		r.chains[ID(id)] = chain
	}
	return r, nil
}

// Len reports how many ids are reserved for language codes.
func (r *Registry) Len() int {
	return len(r.langs)
}

// Get returns the language for an id issued by this registry.
func (r *Registry) Get(id ID) (*Language, bool) {
	if int(id) >= len(r.langs) || r.langs[id].Code == "" {
		return nil, false
	}
	return &r.langs[id], true
}

// ByCode resolves an external code string to its id.
func (r *Registry) ByCode(code string) (ID, bool) {
	id, ok := r.table.Lookup(code)
	if !ok || int(id) >= len(r.langs) || r.langs[id].Code == "" {
		return 0, false
	}
	return id, true
}

// ByName resolves a canonical language name to its id.
func (r *Registry) ByName(name string) (ID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Main maps an etymology-only language to the language its entries live
// under; regular languages map to themselves.
func (r *Registry) Main(id ID) ID {
	if m, ok := r.main[id]; ok {
		return m
	}
	return id
}

// Ancestors returns the proto-language chain for id, oldest first.
func (r *Registry) Ancestors(id ID) []ID {
	return r.chains[id]
}

// Distance measures steps along the combined ancestry chains of a and b:
// 0 for the same language, 1 for immediate parent/child, Unrelated when
// the two share no ancestor. Display/tiebreak only; the graph build never
// depends on it.
func (r *Registry) Distance(a, b ID) int {
	if a == b {
		return 0
	}
	// Each chain is ancestors oldest-first plus the language itself.
	ca := append(append([]ID{}, r.chains[a]...), a)
	cb := append(append([]ID{}, r.chains[b]...), b)
	common := 0
	for common < len(ca) && common < len(cb) && ca[common] == cb[common] {
		common++
	}
	if common == 0 {
		return Unrelated
	}
	return (len(ca) - common) + (len(cb) - common)
}
