package wikt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maxLineSize is the buffer size for bufio.Scanner (16 MB). Some pages
// (notably high-frequency function words) serialize to multi-megabyte
// lines.
const maxLineSize = 16 << 20

// ignoredNamespaces are page-title prefixes whose redirects carry no
// lexical content.
var ignoredNamespaces = map[string]bool{
	"Index": true, "Help": true, "MediaWiki": true, "Citations": true,
	"Concordance": true, "Rhymes": true, "Thread": true, "Summary": true,
	"File": true, "Transwiki": true, "Category": true, "Appendix": true,
	"Wiktionary": true, "Thesaurus": true, "Module": true, "Template": true,
}

// StreamLines feeds each line of a JSONL file (gzip-compressed when the
// path ends in .gz) to fn along with its 0-based line number. fn errors
// abort the stream.
func StreamLines(path string, fn func(lineNum int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip input: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	n := 0
	for scanner.Scan() {
		if err := fn(n, scanner.Bytes()); err != nil {
			return err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

// ParseLine parses one JSONL record. It returns exactly one of:
// an Entry for a lexical record, a Redirect for a redirect record, or
// neither for records we skip (category pages, statistics, ignored
// namespaces). A non-nil error means the line was malformed JSON.
func ParseLine(line []byte) (*Entry, *Redirect, error) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, nil, fmt.Errorf("malformed record: %w", err)
	}

	if raw.Redirect != "" && raw.Word == "" {
		return nil, parseRedirect(&raw), nil
	}
	if raw.LangCode == "" || raw.Word == "" {
		return nil, nil, nil
	}
	return parseEntry(&raw), nil, nil
}

func parseEntry(raw *rawEntry) *Entry {
	e := &Entry{
		LangCode:   raw.LangCode,
		PageTerm:   raw.Word,
		EtyNum:     raw.EtyNum,
		POS:        raw.POS,
		Categories: raw.Categories,
	}

	// The canonical form is what ety templates on other pages cite; it may
	// carry diacritics the page title lacks.
	e.Term = raw.Word
	for _, form := range raw.Forms {
		if form.Form == "" {
			continue
		}
		for _, tag := range form.Tags {
			switch tag {
			case "canonical":
				if e.Term == raw.Word {
					e.Term = form.Form
				}
			case "romanization":
				if e.Romanization == "" {
					e.Romanization = form.Form
				}
			}
		}
	}

	for _, rs := range raw.Senses {
		s := Sense{
			ID:   rs.ID,
			Tags: rs.Tags,
		}
		var glosses []string
		for _, g := range rs.Glosses {
			if g = strings.TrimSpace(g); g != "" {
				glosses = append(glosses, g)
			}
		}
		s.Gloss = strings.Join(glosses, "\n")
		if len(rs.AltOf) > 0 {
			s.AltOf = rs.AltOf[0].Word
		}
		if len(rs.FormOf) > 0 {
			s.FormOf = rs.FormOf[0].Word
		}
		if s.Tagged("reconstruction") {
			e.Reconstructed = true
		}
		e.Senses = append(e.Senses, s)
	}

	// The stored term never carries the reconstruction star; the flag
	// does.
	if strings.HasPrefix(e.Term, "*") && e.Reconstructed {
		e.Term = e.Term[1:]
	} else if strings.HasPrefix(e.Term, "*") && looksReconstructed(raw) {
		e.Reconstructed = true
		e.Term = e.Term[1:]
	}

	for _, rt := range raw.EtyTmpls {
		e.EtyTemplates = append(e.EtyTemplates, convertTemplate(rt))
	}
	for _, rd := range raw.Desc {
		dl := DescLine{
			Depth: rd.Depth,
			Text:  rd.Text,
			Tags:  rd.Tags,
		}
		for _, rt := range rd.Templates {
			dl.Templates = append(dl.Templates, convertTemplate(rt))
		}
		e.Descendants = append(e.Descendants, dl)
	}
	return e
}

// looksReconstructed covers proto-language entries whose senses omit the
// reconstruction tag but whose headword still carries the star.
func looksReconstructed(raw *rawEntry) bool {
	return strings.HasPrefix(raw.Word, "*")
}

func convertTemplate(rt rawTemplate) Template {
	t := Template{
		Name:      rt.Name,
		Expansion: rt.Expansion,
		Args:      make(map[string]string, len(rt.Args)),
	}
	for k, v := range rt.Args {
		switch val := v.(type) {
		case string:
			t.Args[k] = val
		case float64:
			t.Args[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			t.Args[k] = strconv.FormatBool(val)
		}
	}
	return t
}

func parseRedirect(raw *rawEntry) *Redirect {
	from, to := raw.Title, raw.Redirect
	if from == "" || to == "" {
		return nil
	}
	for _, title := range []string{from, to} {
		if ns, ok := titleNamespace(title); ok && ignoredNamespaces[ns] {
			return nil
		}
	}
	if fromLang, fromTerm, ok := splitReconstructionTitle(from); ok {
		toLang, toTerm, ok := splitReconstructionTitle(to)
		if !ok {
			// A reconstruction page redirecting outside the namespace has
			// no lexical interpretation for us.
			return nil
		}
		return &Redirect{
			FromTerm:       fromTerm,
			ToTerm:         toTerm,
			FromLangName:   fromLang,
			ToLangName:     toLang,
			Reconstruction: true,
		}
	}
	return &Redirect{FromTerm: from, ToTerm: to}
}

func titleNamespace(title string) (string, bool) {
	colon := strings.Index(title, ":")
	if colon < 0 {
		return "", false
	}
	return title[:colon], true
}

// splitReconstructionTitle handles titles like
// "Reconstruction:Proto-Germanic/pīpǭ".
func splitReconstructionTitle(title string) (langName, term string, ok bool) {
	rest, found := strings.CutPrefix(title, "Reconstruction:")
	if !found {
		return "", "", false
	}
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], cleanTerm(rest[slash+1:]), true
}

// cleanTerm strips the reconstruction star and surrounding space from a
// cited term. Language-level star handling (whether the citation target
// is a reconstructed item) happens at resolution time.
func cleanTerm(term string) string {
	term = strings.TrimSpace(term)
	return strings.TrimPrefix(term, "*")
}
