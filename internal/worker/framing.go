package worker

import "bytes"

// DefaultMaxLineBytes bounds a single protocol line. A batch of 32 vectors of
// 1024 floats encodes to well under this.
const DefaultMaxLineBytes = 16 << 20

// LineBuffer splits a byte stream into newline-terminated lines. Data after
// the last newline is retained until a later Feed completes it.
type LineBuffer struct {
	buf        []byte
	max        int
	discarding bool
	// Dropped counts bytes discarded because a line exceeded the limit.
	Dropped int
}

// NewLineBuffer creates a buffer that discards lines longer than maxBytes.
// maxBytes <= 0 uses DefaultMaxLineBytes.
func NewLineBuffer(maxBytes int) *LineBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}
	return &LineBuffer{max: maxBytes}
}

// Feed appends p and returns every line it completes, without the trailing
// newline and with a trailing carriage return removed.
func (b *LineBuffer) Feed(p []byte) [][]byte {
	if b.discarding {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			b.Dropped += len(p)
			return nil
		}
		b.Dropped += i
		b.discarding = false
		p = p[i+1:]
	}
	b.buf = append(b.buf, p...)
	var lines [][]byte
	start := 0
	for {
		i := bytes.IndexByte(b.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := b.buf[start : start+i]
		start += i + 1
		if len(line) > b.max {
			b.Dropped += len(line)
			continue
		}
		lines = append(lines, bytes.TrimSuffix(line, []byte{'\r'}))
	}
	rest := b.buf[start:]
	if len(rest) > b.max {
		// Skip the rest of this oversized line once its newline arrives.
		b.Dropped += len(rest)
		b.discarding = true
		rest = nil
	}
	// Returned lines alias the current backing array, so the remainder is
	// copied into a fresh one.
	b.buf = append([]byte(nil), rest...)
	return lines
}

// Pending returns the number of buffered bytes that do not yet form a line.
func (b *LineBuffer) Pending() int {
	return len(b.buf)
}
