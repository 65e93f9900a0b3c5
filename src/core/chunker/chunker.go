package chunker

import (
	"unicode"

	"coursematch/src/core/rag"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 50
)

// Document is the extracted text of one source file.
type Document struct {
	SourceID string
	Text     string
	Metadata map[string]string
}

// Chunk is a window of a Document. Offset and Length count runes of the source text.
type Chunk struct {
	Text     string            `json:"text"`
	SourceID string            `json:"source_id"`
	Offset   int               `json:"offset"`
	Length   int               `json:"length"`
	Seq      int               `json:"seq"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Settings controls window size, overlap and the boundary lookback, all in runes.
type Settings struct {
	Size     int
	Overlap  int
	Lookback int
}

// DefaultSettings matches the sizes the course index has always been built with.
func DefaultSettings() Settings {
	return Settings{Size: DefaultSize, Overlap: DefaultOverlap, Lookback: DefaultSize / 10}
}

type Splitter struct {
	settings Settings
}

// New validates settings and returns a Splitter.
func New(settings Settings) (*Splitter, error) {
	switch {
	case settings.Size <= 0:
		return nil, &rag.ConfigurationError{Field: "chunk.size", Reason: "must be greater than zero"}
	case settings.Overlap < 0:
		return nil, &rag.ConfigurationError{Field: "chunk.overlap", Reason: "must not be negative"}
	case settings.Overlap >= settings.Size:
		return nil, &rag.ConfigurationError{Field: "chunk.overlap", Reason: "must be smaller than chunk.size"}
	case settings.Lookback < 0:
		return nil, &rag.ConfigurationError{Field: "chunk.lookback", Reason: "must not be negative"}
	}
	return &Splitter{settings: settings}, nil
}

func (s *Splitter) Settings() Settings {
	return s.settings
}

// Split cuts doc into windows of at most Size runes. Window i+1 starts exactly Overlap runes
// before the end of window i.
func (s *Splitter) Split(doc Document) []Chunk {
	text := []rune(doc.Text)
	n := len(text)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + s.settings.Size
		if end >= n {
			chunks = append(chunks, s.newChunk(doc, text, start, n, len(chunks)))
			return chunks
		}
		cut := s.boundary(text, start, end)
		chunks = append(chunks, s.newChunk(doc, text, start, cut, len(chunks)))
		start = cut - s.settings.Overlap
	}
}

// boundary picks the cut for the window [start, end). It looks back at most Lookback runes for
// a blank line, then for any whitespace. The cut never falls at or before start+Overlap so the
// next window always advances.
func (s *Splitter) boundary(text []rune, start, end int) int {
	floor := end - s.settings.Lookback
	if lo := start + s.settings.Overlap + 1; floor < lo {
		floor = lo
	}
	for j := end; j > floor; j-- {
		if text[j-1] == '\n' && text[j-2] == '\n' {
			return j
		}
	}
	for j := end; j >= floor; j-- {
		if unicode.IsSpace(text[j-1]) {
			return j
		}
	}
	return end
}

func (s *Splitter) newChunk(doc Document, text []rune, from, to, seq int) Chunk {
	var meta map[string]string
	if len(doc.Metadata) > 0 {
		meta = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}
	}
	return Chunk{
		Text:     string(text[from:to]),
		SourceID: doc.SourceID,
		Offset:   from,
		Length:   to - from,
		Seq:      seq,
		Metadata: meta,
	}
}
