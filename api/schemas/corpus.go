package schemas

// CorpusSource identifies where a corpus sentence came from.
type CorpusSource string

const (
	SourceUniprot CorpusSource = "Uniprot"
)

// CorpusTextType tells whether a sentence was taken from a comment or a citation title.
type CorpusTextType string

const (
	TextTypeComment CorpusTextType = "comment"
	TextTypeArticle CorpusTextType = "article"
)

// CorpusMeta is serialized in field order, which annotation tools display as-is.
type CorpusMeta struct {
	Source CorpusSource   `json:"source"`
	ID     string         `json:"ID,omitempty"`
	Type   CorpusTextType `json:"type"`
}

// CorpusEntry is one line of a raw annotation corpus (JSONL).
type CorpusEntry struct {
	Text string     `json:"text"`
	Meta CorpusMeta `json:"meta"`
}
