package item

import (
	"etygraph/internal/intern"
	"etygraph/internal/lang"
)

// Redirects maps cited terms through page redirects. Two independent
// tables: reconstruction redirects are scoped to a (language, term) pair,
// regular ones rewrite the term alone. Chains are flattened once after
// pass 1 so lookups reach a fixed point in a single step.
type Redirects struct {
	regular        map[intern.Sym]intern.Sym
	reconstruction map[GroupKey]GroupKey
	loops          int
}

func NewRedirects() *Redirects {
	return &Redirects{
		regular:        make(map[intern.Sym]intern.Sym),
		reconstruction: make(map[GroupKey]GroupKey),
	}
}

func (r *Redirects) AddRegular(from, to intern.Sym) {
	if from == to {
		r.loops++
		return
	}
	r.regular[from] = to
}

func (r *Redirects) AddReconstruction(from, to GroupKey) {
	if from == to {
		r.loops++
		return
	}
	r.reconstruction[from] = to
}

// Flatten collapses redirect chains so every entry points at its terminus.
// Cycles are broken at the entry that closes them; each break counts as a
// loop diagnostic.
func (r *Redirects) Flatten() {
	flat := make(map[intern.Sym]intern.Sym, len(r.regular))
	for from := range r.regular {
		seen := map[intern.Sym]bool{from: true}
		to := r.regular[from]
		for {
			next, ok := r.regular[to]
			if !ok {
				break
			}
			if seen[to] {
				r.loops++
				break
			}
			seen[to] = true
			to = next
		}
		flat[from] = to
	}
	r.regular = flat

	flatRec := make(map[GroupKey]GroupKey, len(r.reconstruction))
	for from := range r.reconstruction {
		seen := map[GroupKey]bool{from: true}
		to := r.reconstruction[from]
		for {
			next, ok := r.reconstruction[to]
			if !ok {
				break
			}
			if seen[to] {
				r.loops++
				break
			}
			seen[to] = true
			to = next
		}
		flatRec[from] = to
	}
	r.reconstruction = flatRec
}

// Loops reports how many loop diagnostics were recorded: one per
// self-redirect plus one per entry whose chain ran into a cycle (a two-entry
// cycle counts twice).
func (r *Redirects) Loops() int {
	return r.loops
}

// Len reports how many redirects are recorded across both tables.
func (r *Redirects) Len() int {
	return len(r.regular) + len(r.reconstruction)
}

// Resolve rewrites a citation target through the redirect tables.
// Reconstruction redirects may move the citation to another language.
func (r *Redirects) Resolve(gk GroupKey) GroupKey {
	if to, ok := r.reconstruction[gk]; ok {
		return to
	}
	if to, ok := r.regular[gk.Term]; ok {
		return GroupKey{Lang: gk.Lang, Term: to}
	}
	return gk
}

// Rectify is the full citation rewrite: etymology-only languages map to
// the language their entries live under, then redirects apply.
func (r *Redirects) Rectify(gk GroupKey, langs *lang.Registry) GroupKey {
	gk.Lang = langs.Main(gk.Lang)
	return r.Resolve(gk)
}
