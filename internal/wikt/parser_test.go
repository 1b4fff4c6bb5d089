package wikt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_Entry(t *testing.T) {
	line := []byte(`{
		"word": "glow",
		"lang_code": "en",
		"pos": "verb",
		"etymology_number": 2,
		"senses": [
			{"glosses": ["to shine", "with heat"], "id": "en-glow-verb-1"},
			{"glosses": ["to stare"]}
		],
		"etymology_templates": [
			{"name": "inh", "args": {"1": "en", "2": "enm", "3": "glowen"}, "expansion": "Middle English glowen"}
		],
		"categories": ["English verbs"]
	}`)

	e, r, err := ParseLine(line)
	require.NoError(t, err)
	require.Nil(t, r)
	require.NotNil(t, e)

	assert.Equal(t, "en", e.LangCode)
	assert.Equal(t, "glow", e.Term)
	assert.Equal(t, "glow", e.PageTerm)
	assert.Equal(t, 2, e.EtyNum)
	assert.Equal(t, "verb", e.POS)
	assert.False(t, e.Reconstructed)

	require.Len(t, e.Senses, 2)
	assert.Equal(t, "to shine\nwith heat", e.Senses[0].Gloss)
	assert.Equal(t, "en-glow-verb-1", e.Senses[0].ID)

	require.Len(t, e.EtyTemplates, 1)
	tmpl := e.EtyTemplates[0]
	assert.Equal(t, "inh", tmpl.Name)
	got, ok := tmpl.Arg("3")
	require.True(t, ok)
	assert.Equal(t, "glowen", got)
}

func TestParseLine_CanonicalFormPreferred(t *testing.T) {
	line := []byte(`{
		"word": "voco",
		"lang_code": "la",
		"pos": "verb",
		"forms": [
			{"form": "vocō", "tags": ["canonical"]},
			{"form": "vocare", "tags": ["infinitive"]}
		],
		"senses": [{"glosses": ["to call"]}]
	}`)

	e, _, err := ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "vocō", e.Term)
	assert.Equal(t, "voco", e.PageTerm)
}

func TestParseLine_ReconstructedStarStripped(t *testing.T) {
	line := []byte(`{
		"word": "*glōaną",
		"lang_code": "gem-pro",
		"pos": "verb",
		"senses": [{"glosses": ["to glow"], "tags": ["reconstruction"]}]
	}`)

	e, _, err := ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Reconstructed)
	assert.Equal(t, "glōaną", e.Term, "stored term carries no star prefix")
}

func TestParseLine_StarWithoutTag(t *testing.T) {
	line := []byte(`{
		"word": "*ǵʰel-",
		"lang_code": "ine-pro",
		"pos": "root",
		"senses": [{"glosses": ["to shine"]}]
	}`)

	e, _, err := ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Reconstructed)
	assert.Equal(t, "ǵʰel-", e.Term)
}

func TestParseLine_Redirect(t *testing.T) {
	line := []byte(`{"title": "ǵʰel-", "redirect": "ǵʰelh₃-"}`)
	e, r, err := ParseLine(line)
	require.NoError(t, err)
	assert.Nil(t, e)
	require.NotNil(t, r)
	assert.Equal(t, "ǵʰel-", r.FromTerm)
	assert.Equal(t, "ǵʰelh₃-", r.ToTerm)
	assert.False(t, r.Reconstruction)
}

func TestParseLine_ReconstructionRedirect(t *testing.T) {
	line := []byte(`{"title": "Reconstruction:Proto-Germanic/pīpǭ", "redirect": "Reconstruction:Proto-West Germanic/pīpā"}`)
	_, r, err := ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Reconstruction)
	assert.Equal(t, "Proto-Germanic", r.FromLangName)
	assert.Equal(t, "pīpǭ", r.FromTerm)
	assert.Equal(t, "Proto-West Germanic", r.ToLangName)
	assert.Equal(t, "pīpā", r.ToTerm)
}

func TestParseLine_IgnoredNamespaceRedirect(t *testing.T) {
	for _, title := range []string{
		"Category:English lemmas",
		"Thesaurus:good",
		"Template:inh",
	} {
		line := []byte(`{"title": "` + title + `", "redirect": "somewhere"}`)
		e, r, err := ParseLine(line)
		require.NoError(t, err)
		assert.Nil(t, e, title)
		assert.Nil(t, r, title)
	}
}

func TestParseLine_SkipsNonLexical(t *testing.T) {
	e, r, err := ParseLine([]byte(`{"some_statistic": 42}`))
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Nil(t, r)
}

func TestParseLine_Malformed(t *testing.T) {
	_, _, err := ParseLine([]byte(`{"word": "broken`))
	assert.Error(t, err)
}

func TestParseLine_Descendants(t *testing.T) {
	line := []byte(`{
		"word": "glōwan",
		"lang_code": "ang",
		"pos": "verb",
		"senses": [{"glosses": ["to glow"]}],
		"descendants": [
			{"depth": 1, "text": "Middle English: glowen", "templates": [
				{"name": "desc", "args": {"1": "enm", "2": "glowen"}}
			]},
			{"depth": 2, "text": "English: glow", "templates": [
				{"name": "desc", "args": {"1": "en", "2": "glow"}}
			]}
		]
	}`)

	e, _, err := ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Len(t, e.Descendants, 2)
	assert.Equal(t, 1, e.Descendants[0].Depth)
	require.Len(t, e.Descendants[0].Templates, 1)
	lang, ok := e.Descendants[0].Templates[0].Arg("1")
	require.True(t, ok)
	assert.Equal(t, "enm", lang)
}

func TestTemplate_ArgCleaning(t *testing.T) {
	tmpl := Template{Args: map[string]string{
		"1": "en",
		"2": "-",
		"3": "",
		"4": " *wódr̥ ",
	}}
	_, ok := tmpl.Arg("2")
	assert.False(t, ok, `"-" counts as absent`)
	_, ok = tmpl.Arg("3")
	assert.False(t, ok)
	_, ok = tmpl.Arg("missing")
	assert.False(t, ok)
	got, ok := tmpl.Arg("4")
	require.True(t, ok)
	assert.Equal(t, "wódr̥", got, "stars and space trimmed")
}

func TestStreamLines_PlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	content := "{\"a\":1}\n{\"b\":2}\n"

	plain := filepath.Join(dir, "input.jsonl")
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	gzPath := filepath.Join(dir, "input.jsonl.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, gzPath} {
		var lines []string
		err := StreamLines(path, func(n int, line []byte) error {
			lines = append(lines, string(line))
			return nil
		})
		require.NoError(t, err, path)
		assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines, path)
	}
}
