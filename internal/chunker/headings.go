package chunker

import (
	"sort"
	"strings"
)

// heading is a markdown ATX heading ("# Title") starting at rune offset pos.
type heading struct {
	pos  int
	text string
}

func findHeadings(runes []rune) []heading {
	var out []heading
	for pos := 0; pos < len(runes); pos++ {
		if pos > 0 && runes[pos-1] != '\n' {
			continue
		}
		level := 0
		for pos+level < len(runes) && runes[pos+level] == '#' {
			level++
		}
		if level == 0 || level > 6 || pos+level >= len(runes) {
			continue
		}
		if r := runes[pos+level]; r != ' ' && r != '\t' {
			continue
		}
		end := pos + level
		for end < len(runes) && runes[end] != '\n' {
			end++
		}
		out = append(out, heading{pos: pos, text: strings.TrimSpace(string(runes[pos+level : end]))})
	}
	return out
}

func isHeadingStart(headings []heading, pos int) bool {
	i := sort.Search(len(headings), func(i int) bool { return headings[i].pos >= pos })
	return i < len(headings) && headings[i].pos == pos
}

// headingFor returns the text of the last heading at or before pos.
func headingFor(headings []heading, pos int) string {
	i := sort.Search(len(headings), func(i int) bool { return headings[i].pos > pos })
	if i == 0 {
		return ""
	}
	return headings[i-1].text
}
