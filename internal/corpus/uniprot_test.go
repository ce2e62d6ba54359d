package corpus

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntry(t *testing.T) {
	t.Run("extracts accession, length and texts", func(t *testing.T) {
		raw := uniprotEntry(
			[]string{"P01234", " Q99999 "},
			42,
			[]string{"Has antimicrobial activity. Binds zinc", "Second comment"},
			[]string{"A peptide that inhibits growth."},
		)

		e, err := ParseEntry([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "Q99999", e.Accession, "the last accession wins")
		assert.Equal(t, 42, e.Length)
		assert.Equal(t, []string{"Has antimicrobial activity. Binds zinc", "Second comment"}, e.Comments)
		assert.Equal(t, []string{"A peptide that inhibits growth."}, e.Titles)
	})

	t.Run("missing sequence length", func(t *testing.T) {
		e, err := ParseEntry([]byte(uniprotEntry([]string{"P1"}, -1, nil, nil)))
		require.NoError(t, err)
		assert.Equal(t, unknownLength, e.Length)
	})

	t.Run("unparsable sequence length", func(t *testing.T) {
		raw := `<entry dataset="Swiss-Prot"><sequence length="many">MKV</sequence></entry>`
		e, err := ParseEntry([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, unknownLength, e.Length)
		assert.Empty(t, e.Accession)
	})

	t.Run("entities are decoded", func(t *testing.T) {
		raw := uniprotEntry([]string{"P1"}, 5, []string{"Inhibits Na(+)/K(+) &amp; Ca(2+) channels"}, nil)
		e, err := ParseEntry([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []string{"Inhibits Na(+)/K(+) & Ca(2+) channels"}, e.Comments)
	})

	t.Run("nested texts keep document order", func(t *testing.T) {
		raw := `<entry dataset="Swiss-Prot">
  <accession>P81456</accession>
  <comment type="biophysicochemical properties">
    <kinetics><text>Kinetics text inhibits A</text></kinetics>
  </comment>
  <comment type="function"><text>Function text inhibits B</text></comment>
  <comment type="alternative products">
    <isoform><id>P81456-2</id><sequence type="displayed" ref="P81456-2"/></isoform>
  </comment>
  <reference key="1"><citation type="journal article"><title>First title</title></citation></reference>
  <sequence length="31" mass="3200">MKV</sequence>
</entry>`
		e, err := ParseEntry([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []string{"Kinetics text inhibits A", "Function text inhibits B"}, e.Comments)
		assert.Equal(t, []string{"First title"}, e.Titles)
		assert.Equal(t, 31, e.Length, "isoform sequences are ignored")
	})

	t.Run("not an entry", func(t *testing.T) {
		_, err := ParseEntry([]byte(`<copyright>text</copyright>`))
		assert.Error(t, err)
	})
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"First", "second.third", "last."}, Sentences("First. second.third. last."))
	assert.Equal(t, []string{""}, Sentences(""))
}

func TestIsUseful(t *testing.T) {
	cases := map[string]bool{
		"Has antibacterial activity":      true,
		"Potently inhibits trypsin":       true,
		"Inhibition of growth":            false, // case-sensitive
		"Anti-inflammatory":               false,
		"Binds zinc":                      false,
		"Acts as a weak kinase inhibitor": true,
	}
	for sentence, want := range cases {
		assert.Equal(t, want, IsUseful(sentence), sentence)
	}
}

// FuzzParseEntry feeds structured and raw entries to the parser; it must never panic.
func FuzzParseEntry(f *testing.F) {
	f.Add([]byte(uniprotEntry([]string{"P1"}, 10, []string{"antimicrobial"}, nil)))
	f.Add([]byte("<entry "))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Raw bytes first.
		_, _ = ParseEntry(data)

		c := fuzz.NewConsumer(data)
		acc, err := c.GetString()
		if err != nil {
			return
		}
		length, err := c.GetInt()
		if err != nil {
			return
		}
		comment, err := c.GetString()
		if err != nil {
			return
		}
		raw := uniprotEntry([]string{acc}, length, []string{comment}, nil)

		e, err := ParseEntry([]byte(raw))
		if err != nil {
			// Fuzzed strings may contain markup.
			return
		}
		if length >= 0 && !strings.ContainsAny(acc+comment, "<>&\"") {
			assert.Equal(t, length, e.Length)
		}
	})
}
