// Package serialize writes the finished graph: a compact JSON envelope
// (gzip-compressed by path suffix) and an optional RDF/Turtle rendering.
//
// The write is two-pass: pass A emits the id-ordered item list, pass B the
// edges, rewriting endpoints that point at imputed items shadowed by a
// later real entry. Embeddings are never exported.
package serialize

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"etygraph/internal/graph"
	"etygraph/internal/intern"
	"etygraph/internal/item"
	"etygraph/internal/lang"
)

// Input is everything the writers read. Frozen for the duration of the
// write.
type Input struct {
	Items *item.Store
	Graph *graph.Graph
	Langs *lang.Registry
	Terms *intern.Table
	// Source names the input the graph was built from.
	Source string
}

// Stats reports what the write did.
type Stats struct {
	ItemsWritten     int
	EdgesWritten     int
	EdgesRewritten   int
	SelfLoopsDropped int
	ShadowedImputed  int
}

// formatVersion bumps when the envelope layout changes.
const formatVersion = 1

// Envelope is the serialized graph layout.
type Envelope struct {
	Metadata Metadata  `json:"metadata"`
	Langs    []LangRow `json:"langs"`
	Items    []ItemRow `json:"items"`
	Edges    []EdgeRow `json:"edges"`
}

type Metadata struct {
	Version int    `json:"version"`
	Source  string `json:"source,omitempty"`
	Items   int    `json:"items"`
	Edges   int    `json:"edges"`
}

type LangRow struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Family string `json:"family,omitempty"`
	Kind   string `json:"kind"`
}

type ItemRow struct {
	ID            item.ID  `json:"id"`
	Lang          string   `json:"lang"`
	Term          string   `json:"term"`
	EtyNum        uint8    `json:"etyNum"`
	Reconstructed bool     `json:"reconstructed"`
	Imputed       bool     `json:"imputed"`
	POS           []string `json:"pos,omitempty"`
	Gloss         []string `json:"gloss,omitempty"`
	Romanization  string   `json:"romanization,omitempty"`
	URL           string   `json:"url,omitempty"`
}

type EdgeRow struct {
	From  item.ID `json:"from"`
	To    item.ID `json:"to"`
	Mode  string  `json:"mode"`
	Order uint8   `json:"order"`
}

// Write serializes the graph to path. A ".gz" suffix selects compression.
// Partial output is deleted on error.
func Write(path string, in Input) (Stats, error) {
	stats, env := Build(in)

	f, err := os.Create(path)
	if err != nil {
		return stats, fmt.Errorf("create serialization output: %w", err)
	}
	if err := writeEnvelope(f, path, env); err != nil {
		f.Close()
		os.Remove(path)
		return stats, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return stats, fmt.Errorf("close serialization output: %w", err)
	}
	return stats, nil
}

func writeEnvelope(f *os.File, path string, env *Envelope) error {
	bw := bufio.NewWriterSize(f, 1<<20)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		return fmt.Errorf("serialize graph: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("serialize graph: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("serialize graph: %w", err)
	}
	return nil
}

// Build assembles the envelope without touching disk.
func Build(in Input) (Stats, *Envelope) {
	var stats Stats
	shadow := in.Items.Shadow()
	stats.ShadowedImputed = len(shadow)

	env := &Envelope{}

	// Pass A: items in id order, dropping imputed items that a real entry
	// shadows (their edges are rewritten in pass B, leaving them
	// unreferenced).
	usedLangs := make(map[lang.ID]bool)
	in.Items.All(func(it *item.Item) {
		if _, shadowed := shadow[it.ID]; shadowed {
			return
		}
		usedLangs[it.Lang] = true
		code := ""
		if l, ok := in.Langs.Get(it.Lang); ok {
			code = l.Code
		}
		env.Items = append(env.Items, ItemRow{
			ID:            it.ID,
			Lang:          code,
			Term:          in.Terms.Resolve(it.Term),
			EtyNum:        it.EtyNum,
			Reconstructed: it.Reconstructed,
			Imputed:       it.Imputed,
			POS:           nonEmpty(it.POS),
			Gloss:         nonEmpty(it.Gloss),
			Romanization:  it.Romanization,
			URL:           it.URL(in.Terms, in.Langs),
		})
		stats.ItemsWritten++
	})

	// Langs section: only the subset the items reference, in id order.
	langIDs := make([]lang.ID, 0, len(usedLangs))
	for id := range usedLangs {
		langIDs = append(langIDs, id)
	}
	sort.Slice(langIDs, func(i, j int) bool { return langIDs[i] < langIDs[j] })
	for _, id := range langIDs {
		if l, ok := in.Langs.Get(id); ok {
			env.Langs = append(env.Langs, LangRow{
				Code:   l.Code,
				Name:   l.Name,
				Family: l.Family,
				Kind:   l.Kind.String(),
			})
		}
	}

	// Pass B: edges in child-id order, endpoints rewritten through the
	// shadow map. A rewrite that collapses an edge onto itself drops it.
	in.Items.All(func(it *item.Item) {
		for _, e := range in.Graph.ParentEdges(it.ID) {
			from, to := e.Child, e.Parent
			rewritten := false
			if r, ok := shadow[from]; ok {
				from, rewritten = r, true
			}
			if r, ok := shadow[to]; ok {
				to, rewritten = r, true
			}
			if from == to {
				stats.SelfLoopsDropped++
				continue
			}
			if rewritten {
				stats.EdgesRewritten++
			}
			env.Edges = append(env.Edges, EdgeRow{
				From:  from,
				To:    to,
				Mode:  e.Mode.String(),
				Order: e.Order,
			})
			stats.EdgesWritten++
		}
	})

	env.Metadata = Metadata{
		Version: formatVersion,
		Source:  in.Source,
		Items:   stats.ItemsWritten,
		Edges:   stats.EdgesWritten,
	}
	return stats, env
}

func nonEmpty(ss []string) []string {
	for _, s := range ss {
		if s != "" {
			return ss
		}
	}
	return nil
}

// Read loads an envelope back; the query server and the round-trip tests
// use it.
func Read(path string) (*Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
