package serialize

import (
	"bufio"
	"fmt"
	"os"

	"etygraph/internal/item"
)

const (
	wiktionaryPre     = "k:"
	wiktionaryURL     = "https://en.wiktionary.org/wiki/"
	reconstructionPre = "r:"
	reconstructionURL = "https://en.wiktionary.org/wiki/Reconstruction:"
	predPre           = "p:"
	itemPre           = "w:"

	predTerm            = "p:term"
	predLang            = "p:lang"
	predURL             = "p:url"
	predPOS             = "p:pos"
	predGloss           = "p:gloss"
	predEtyNum          = "p:etyNum"
	predIsImputed       = "p:isImputed"
	predIsReconstructed = "p:isReconstructed"
	predMode            = "p:mode"
	predSource          = "p:source"
	predItem            = "p:item"
	predOrder           = "p:order"
)

// WriteTurtle renders the graph as RDF/Turtle: one subject per item, one
// source blank node per edge with the ety mode as predicate object.
// Partial output is deleted on error.
func WriteTurtle(path string, in Input) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create turtle output: %w", err)
	}
	if err := writeTurtle(f, in); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close turtle output: %w", err)
	}
	return nil
}

func writeTurtle(f *os.File, in Input) error {
	w := bufio.NewWriterSize(f, 1<<20)
	for _, p := range [][2]string{
		{wiktionaryPre, wiktionaryURL},
		{reconstructionPre, reconstructionURL},
		{predPre, predPre},
		{itemPre, itemPre},
	} {
		if _, err := fmt.Fprintf(w, "@prefix %s <%s> .\n", p[0], p[1]); err != nil {
			return err
		}
	}

	shadow := in.Items.Shadow()
	var werr error
	in.Items.All(func(it *item.Item) {
		if werr != nil {
			return
		}
		if _, shadowed := shadow[it.ID]; shadowed {
			return
		}
		werr = writeTurtleItem(w, in, shadow, it)
	})
	if werr != nil {
		return fmt.Errorf("write turtle: %w", werr)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write turtle: %w", err)
	}
	return nil
}

func writeTurtleItem(w *bufio.Writer, in Input, shadow map[item.ID]item.ID, it *item.Item) error {
	fmt.Fprintf(w, "%s%d\n", itemPre, it.ID)
	writeQuotedProp(w, predTerm, in.Terms.Resolve(it.Term))
	if l, ok := in.Langs.Get(it.Lang); ok {
		writeQuotedProp(w, predLang, l.Name)
	}
	if url := it.URL(in.Terms, in.Langs); url != "" {
		writeQuotedProp(w, predURL, url)
	}
	fmt.Fprintf(w, "  %s %d ;\n", predEtyNum, it.EtyNum)
	if it.Imputed {
		fmt.Fprintf(w, "  %s true ;\n", predIsImputed)
	}
	if it.Reconstructed {
		fmt.Fprintf(w, "  %s true ;\n", predIsReconstructed)
	}
	if pos := nonEmpty(it.POS); pos != nil {
		fmt.Fprintf(w, "  %s ", predPOS)
		for i, p := range pos {
			writeQuoted(w, p)
			writeListDelim(w, i, len(pos))
		}
	}
	if gloss := nonEmpty(it.Gloss); gloss != nil {
		fmt.Fprintf(w, "  %s ", predGloss)
		for i, g := range gloss {
			writeQuoted(w, g)
			writeListDelim(w, i, len(gloss))
		}
	}

	if edges := in.Graph.ParentEdges(it.ID); len(edges) > 0 {
		writeQuotedProp(w, predMode, edges[0].Mode.String())
		fmt.Fprintf(w, "  %s ", predSource)
		emitted := 0
		for _, e := range edges {
			parent := e.Parent
			if r, ok := shadow[parent]; ok {
				parent = r
			}
			if emitted > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "[ %s %s%d; %s %d ]", predItem, itemPre, parent, predOrder, e.Order)
			emitted++
		}
		fmt.Fprint(w, " ;\n")
	}
	if _, err := fmt.Fprintln(w, "."); err != nil {
		return err
	}
	return nil
}

func writeQuotedProp(w *bufio.Writer, pred, obj string) {
	fmt.Fprintf(w, "  %s ", pred)
	writeQuoted(w, obj)
	fmt.Fprint(w, " ;\n")
}

// writeQuoted escapes a turtle string literal.
func writeQuoted(w *bufio.Writer, s string) {
	w.WriteByte('"')
	for _, c := range s {
		switch c {
		case '\n':
			w.WriteString(`\n`)
		case '\r':
			w.WriteString(`\r`)
		case '"':
			w.WriteString(`\"`)
		case '\\':
			w.WriteString(`\\`)
		default:
			w.WriteRune(c)
		}
	}
	w.WriteByte('"')
}

func writeListDelim(w *bufio.Writer, i, n int) {
	if i+1 < n {
		fmt.Fprint(w, ", ")
	} else {
		fmt.Fprint(w, " ;\n")
	}
}
