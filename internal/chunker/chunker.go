package chunker

import (
	"strings"
	"unicode"

	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/models"
)

// Chunker splits text into overlapping chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	opts Options
}

// New creates a chunker, rejecting invalid options.
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyFixed
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the chunker's options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits text into chunks owned by docID. Chunks cover the whole text,
// adjacent chunks share exactly Overlap characters, and only the final chunk
// may be shorter than MinChars. Blank text yields no chunks.
func (c *Chunker) Chunk(docID, sourcePath, text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var headings []heading
	if c.opts.Strategy == StrategyStructured {
		headings = findHeadings(runes)
	}

	var chunks []models.Chunk
	start := 0
	for {
		end := n
		if start+c.opts.MaxChars < n {
			end = c.boundary(runes, start, headings)
		}
		index := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:         fileid.ChunkID(docID, index),
			DocumentID: docID,
			SourcePath: sourcePath,
			Text:       string(runes[start:end]),
			Offset: models.ChunkOffset{
				Index:   index,
				Start:   start,
				End:     end,
				Heading: headingFor(headings, c.sectionStart(start, index)),
			},
		})
		if end >= n {
			break
		}
		start = end - c.opts.Overlap
	}
	return chunks
}

// sectionStart is the first position of a chunk that is not overlap.
func (c *Chunker) sectionStart(start, index int) int {
	if index == 0 {
		return start
	}
	return start + c.opts.Overlap
}

// boundary picks the end of the window starting at start. The end always lies
// in [start+max(MinChars, Overlap+1), start+MaxChars] so every non-final chunk
// meets MinChars and the next window makes progress.
func (c *Chunker) boundary(runes []rune, start int, headings []heading) int {
	hard := start + c.opts.MaxChars
	lo := start + max(c.opts.MinChars, c.opts.Overlap+1)
	if lo > hard {
		lo = hard
	}
	switch {
	case c.opts.Strategy == StrategyStructured:
		return structuredBoundary(runes, lo, hard, headings, c.opts.RespectStructure)
	case c.opts.RespectStructure:
		for e := hard; e >= lo; e-- {
			if unicode.IsSpace(runes[e-1]) {
				return e
			}
		}
	}
	return hard
}

// Break kinds in order of preference.
const (
	breakHeading = iota
	breakParagraph
	breakLine
	breakSentence
	breakSpace
	breakKinds
)

func structuredBoundary(runes []rune, lo, hard int, headings []heading, respect bool) int {
	if respect {
		// A heading ends the chunk even if a later break would fit more text.
		for _, h := range headings {
			if h.pos >= lo && h.pos <= hard {
				return h.pos
			}
			if h.pos > hard {
				break
			}
		}
	}
	var best [breakKinds]int
	for e := hard; e >= lo; e-- {
		for kind := 0; kind < breakKinds; kind++ {
			if best[kind] == 0 && isBreak(runes, e, kind, headings) {
				best[kind] = e
			}
		}
		if best[breakHeading] != 0 {
			break
		}
	}
	for kind := 0; kind < breakKinds; kind++ {
		if best[kind] != 0 {
			return best[kind]
		}
	}
	return hard
}

// isBreak reports whether a chunk may end at position e (exclusive) with the given kind.
func isBreak(runes []rune, e, kind int, headings []heading) bool {
	if e <= 0 || e > len(runes) {
		return false
	}
	prev := runes[e-1]
	switch kind {
	case breakHeading:
		return isHeadingStart(headings, e)
	case breakParagraph:
		return prev == '\n' && e >= 2 && runes[e-2] == '\n'
	case breakLine:
		return prev == '\n'
	case breakSentence:
		if !unicode.IsSpace(prev) || e < 2 {
			return false
		}
		switch runes[e-2] {
		case '.', '!', '?':
			return true
		}
		return false
	case breakSpace:
		return unicode.IsSpace(prev)
	}
	return false
}
