// Package item holds the canonical item arena: every lexical unit the
// graph can reference, real or imputed, addressed by a dense 32-bit id.
package item

import (
	"net/url"
	"strconv"
	"strings"

	"etygraph/internal/intern"
	"etygraph/internal/lang"
)

// ID is a dense item id; ids are assigned in first-appearance order during
// pass 1 and are stable across runs on identical input.
type ID uint32

// Key uniquely identifies a real item.
type Key struct {
	Lang   lang.ID
	Term   intern.Sym
	EtyNum uint8
}

// GroupKey addresses a disambiguation group: all items sharing a language
// and term.
type GroupKey struct {
	Lang lang.ID
	Term intern.Sym
}

// Item is one lexical unit. POS and Gloss are aligned: Gloss[i] is the
// newline-joined gloss text of the sense group with part of speech POS[i].
type Item struct {
	ID            ID
	Lang          lang.ID
	Term          intern.Sym
	EtyNum        uint8
	Reconstructed bool
	Imputed       bool
	POS           []string
	Gloss         []string
	Romanization  string
}

// URL reconstructs the source page location for a real item.
func (it *Item) URL(pool *intern.Table, langs *lang.Registry) string {
	if it.Imputed {
		return ""
	}
	l, ok := langs.Get(it.Lang)
	if !ok {
		return ""
	}
	term := pool.Resolve(it.Term)
	if it.Reconstructed {
		return "https://en.wiktionary.org/wiki/Reconstruction:" +
			url.PathEscape(l.Name) + "/" + url.PathEscape(term)
	}
	anchor := strings.ReplaceAll(l.Name, " ", "_")
	return "https://en.wiktionary.org/wiki/" + url.PathEscape(term) + "#" + anchor
}

// Store is the append-only item arena plus the indexes pass 2 resolves
// citations through. Single-writer during the build.
type Store struct {
	items   []Item
	byKey   map[Key]ID
	groups  map[GroupKey][]ID // real items only, in id order
	imputed map[GroupKey]ID   // each imputed item sits in its own group
}

func NewStore() *Store {
	return &Store{
		byKey:   make(map[Key]ID),
		groups:  make(map[GroupKey][]ID),
		imputed: make(map[GroupKey]ID),
	}
}

func (s *Store) Len() int {
	return len(s.items)
}

// Get returns the item for an issued id. The returned pointer stays valid
// only until the next insertion.
func (s *Store) Get(id ID) *Item {
	return &s.items[id]
}

// Insert adds a real item for the key, or merges POS/gloss lists into the
// existing one. Returns the item id and whether a new item was created.
func (s *Store) Insert(key Key, reconstructed bool, pos, gloss, romanization string) (ID, bool) {
	if id, ok := s.byKey[key]; ok {
		it := &s.items[id]
		it.POS = append(it.POS, pos)
		it.Gloss = append(it.Gloss, gloss)
		if it.Romanization == "" {
			it.Romanization = romanization
		}
		if reconstructed {
			it.Reconstructed = true
		}
		return id, false
	}
	id := ID(len(s.items))
	s.items = append(s.items, Item{
		ID:            id,
		Lang:          key.Lang,
		Term:          key.Term,
		EtyNum:        key.EtyNum,
		Reconstructed: reconstructed,
		POS:           []string{pos},
		Gloss:         []string{gloss},
		Romanization:  romanization,
	})
	s.byKey[key] = id
	gk := GroupKey{Lang: key.Lang, Term: key.Term}
	s.groups[gk] = append(s.groups[gk], id)
	return id, true
}

// Lookup returns the real item for a key, if pass 1 saw one.
func (s *Store) Lookup(key Key) (ID, bool) {
	id, ok := s.byKey[key]
	return id, ok
}

// Group returns the disambiguation group for (lang, term): all real item
// ids sharing it, in id order. Imputed items never appear here.
func (s *Store) Group(gk GroupKey) []ID {
	return s.groups[gk]
}

// Imputed returns the placeholder item for (lang, term) if one exists.
func (s *Store) Imputed(gk GroupKey) (ID, bool) {
	id, ok := s.imputed[gk]
	return id, ok
}

// AddImputed allocates a placeholder item for a citation with no real
// entry. At most one placeholder exists per (lang, term).
func (s *Store) AddImputed(gk GroupKey, reconstructed bool) ID {
	if id, ok := s.imputed[gk]; ok {
		return id
	}
	id := ID(len(s.items))
	s.items = append(s.items, Item{
		ID:            id,
		Lang:          gk.Lang,
		Term:          gk.Term,
		Reconstructed: reconstructed,
		Imputed:       true,
	})
	s.imputed[gk] = id
	return id
}

// Shadow maps every imputed item that a real (lang, term) entry has since
// appeared for onto that entry's lowest-id item. Serialization rewrites
// edges through this map.
func (s *Store) Shadow() map[ID]ID {
	shadow := make(map[ID]ID)
	for gk, impID := range s.imputed {
		if real := s.groups[gk]; len(real) > 0 {
			shadow[impID] = real[0]
		}
	}
	return shadow
}

// All iterates items in id order.
func (s *Store) All(fn func(*Item)) {
	for i := range s.items {
		fn(&s.items[i])
	}
}

// CanonicalText is the deterministic text embedded for an item:
// "<POS>: <gloss>" lines, one per sense group in sense order, newline
// joined; empty when the item has no glosses.
func (it *Item) CanonicalText() string {
	var b strings.Builder
	for i, gloss := range it.Gloss {
		if gloss == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		pos := ""
		if i < len(it.POS) {
			pos = it.POS[i]
		}
		b.WriteString(pos)
		b.WriteString(": ")
		b.WriteString(gloss)
	}
	return b.String()
}

// Describe renders a key for diagnostics.
func (k Key) Describe(pool *intern.Table, langs *lang.Registry) string {
	code := "?"
	if l, ok := langs.Get(k.Lang); ok {
		code = l.Code
	}
	return code + "/" + pool.Resolve(k.Term) + "#" + strconv.Itoa(int(k.EtyNum))
}
