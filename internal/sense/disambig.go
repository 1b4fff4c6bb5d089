// Package sense resolves which item a (language, term) citation refers to
// when several share the pair, by cosine similarity of gloss embeddings.
package sense

import (
	"math"
	"sort"

	"etygraph/internal/item"
	"etygraph/internal/lang"
)

// VectorSource supplies cached embeddings for canonical texts. The
// embedding service satisfies it after its flush.
type VectorSource interface {
	Vector(text string) ([]float32, bool, error)
}

// Resolution is the outcome of a citation lookup. Found is false when no
// real item exists for the (rectified) pair; the caller imputes then.
type Resolution struct {
	ID         item.ID
	Confidence float32
	Found      bool
}

type Disambiguator struct {
	items     *item.Store
	redirects *item.Redirects
	langs     *lang.Registry
	vectors   VectorSource
}

func New(items *item.Store, redirects *item.Redirects, langs *lang.Registry, vectors VectorSource) *Disambiguator {
	return &Disambiguator{
		items:     items,
		redirects: redirects,
		langs:     langs,
		vectors:   vectors,
	}
}

// Rectify applies the etymology-only-language mapping and the redirect
// table to a citation target.
func (d *Disambiguator) Rectify(gk item.GroupKey) item.GroupKey {
	return d.redirects.Rectify(gk, d.langs)
}

// Resolve picks the best item for a citation from the context item ctx.
// The citation is rectified first; the rectified key is returned so the
// caller can impute against it on a miss.
func (d *Disambiguator) Resolve(gk item.GroupKey, ctx item.ID) (Resolution, item.GroupKey, error) {
	gk = d.Rectify(gk)
	group := d.items.Group(gk)
	if len(group) == 0 {
		return Resolution{}, gk, nil
	}
	if len(group) == 1 {
		return Resolution{ID: group[0], Confidence: 1, Found: true}, gk, nil
	}

	// Candidates ordered by ety-number then id, so the similarity argmax
	// tie-breaks toward the lowest ety-number and the no-embedding
	// fallback is simply the first candidate.
	candidates := append([]item.ID(nil), group...)
	sort.Slice(candidates, func(i, j int) bool {
		a, b := d.items.Get(candidates[i]), d.items.Get(candidates[j])
		if a.EtyNum != b.EtyNum {
			return a.EtyNum < b.EtyNum
		}
		return candidates[i] < candidates[j]
	})

	ctxVec, ok, err := d.vectors.Vector(d.items.Get(ctx).CanonicalText())
	if err != nil {
		return Resolution{}, gk, err
	}
	if !ok {
		return Resolution{ID: candidates[0], Found: true}, gk, nil
	}

	best := candidates[0]
	bestSim := float32(math.Inf(-1))
	usable := false
	for _, cand := range candidates {
		vec, ok, err := d.vectors.Vector(d.items.Get(cand).CanonicalText())
		if err != nil {
			return Resolution{}, gk, err
		}
		if !ok {
			continue
		}
		sim := Cosine(ctxVec, vec)
		if !usable || sim > bestSim {
			usable = true
			best = cand
			bestSim = sim
		}
	}
	if !usable {
		return Resolution{ID: candidates[0], Found: true}, gk, nil
	}
	return Resolution{ID: best, Confidence: bestSim, Found: true}, gk, nil
}

// ResolveOrImpute resolves a citation, allocating a placeholder item when
// no real entry exists. newlyImputed reports a fresh allocation; the
// placeholder is reconstructed when its language is a proto-language.
func (d *Disambiguator) ResolveOrImpute(gk item.GroupKey, ctx item.ID) (res Resolution, newlyImputed bool, err error) {
	res, rectified, err := d.Resolve(gk, ctx)
	if err != nil || res.Found {
		return res, false, err
	}
	if id, ok := d.items.Imputed(rectified); ok {
		return Resolution{ID: id, Found: true}, false, nil
	}
	reconstructed := false
	if l, ok := d.langs.Get(rectified.Lang); ok {
		reconstructed = l.IsReconstructed()
	}
	id := d.items.AddImputed(rectified, reconstructed)
	return Resolution{ID: id, Found: true}, true, nil
}

// Cosine is the similarity between two vectors; 0 when either has no
// magnitude or the dimensions disagree.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var ab, aa, bb float64
	for i := range a {
		ab += float64(a[i]) * float64(b[i])
		aa += float64(a[i]) * float64(a[i])
		bb += float64(b[i]) * float64(b[i])
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return float32(ab / (math.Sqrt(aa) * math.Sqrt(bb)))
}
