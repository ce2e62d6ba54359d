package corpus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// unknownLength is reported for entries without a usable <sequence length>.
const unknownLength = -1

// sentenceSeparator splits UniProt free text into candidate sentences.
const sentenceSeparator = ". "

// usefulWords mark sentences that talk about antimicrobial or inhibitory activity.
var usefulWords = []string{"anti", "inhibit"}

// Entry holds the parts of a UniProt entry the corpus is built from.
type Entry struct {
	// Accession is the last <accession> of the entry, empty when there is none.
	Accession string
	Length    int
	// Comments are the <text> bodies and Titles the citation <title>s, in document order.
	Comments []string
	Titles   []string
}

// ParseEntry parses one <entry> chunk cut out of a UniProt XML dump.
func ParseEntry(raw []byte) (*Entry, error) {
	doc := etree.NewDocument()
	// Chunks are read without the enclosing <uniprot> element and its namespace.
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse uniprot entry: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "entry" {
		return nil, errors.New("failed to parse uniprot entry: no <entry> element")
	}

	entry := &Entry{Length: sequenceLength(root)}
	for _, acc := range descendants(root, "accession") {
		if id := strings.TrimSpace(acc.Text()); id != "" {
			entry.Accession = id
		}
	}
	entry.Comments = texts(descendants(root, "text"))
	entry.Titles = texts(descendants(root, "title"))
	return entry, nil
}

// descendants returns the elements below root named tag, in document order.
// etree's path search walks level by level, which would move nested texts
// (kinetics, isoforms) behind shallower ones.
func descendants(root *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, child := range e.ChildElements() {
			if child.Tag == tag {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

// sequenceLength reads the entry's own <sequence>, not the ones inside isoform comments.
func sequenceLength(root *etree.Element) int {
	seq := root.SelectElement("sequence")
	if seq == nil {
		return unknownLength
	}
	n, err := strconv.Atoi(strings.TrimSpace(seq.SelectAttrValue("length", "")))
	if err != nil {
		return unknownLength
	}
	return n
}

func texts(elems []*etree.Element) []string {
	var out []string
	for _, e := range elems {
		if t := e.Text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Sentences splits text the same way for comments and titles.
func Sentences(text string) []string {
	return strings.Split(text, sentenceSeparator)
}

// IsUseful reports whether a sentence belongs in the corpus. The match is case-sensitive.
func IsUseful(sentence string) bool {
	for _, w := range usefulWords {
		if strings.Contains(sentence, w) {
			return true
		}
	}
	return false
}
