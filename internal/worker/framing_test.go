package worker

import (
	"strings"
	"testing"
)

func feedAll(b *LineBuffer, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, line := range b.Feed([]byte(c)) {
			out = append(out, string(line))
		}
	}
	return out
}

func TestLineBuffer(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		pending int
	}{
		{"single line", []string{"{\"id\":\"1\"}\n"}, []string{`{"id":"1"}`}, 0},
		{"split across reads", []string{"{\"id\"", ":\"1\"}", "\n"}, []string{`{"id":"1"}`}, 0},
		{"several lines in one read", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}, 0},
		{"partial tail retained", []string{"a\nbc"}, []string{"a"}, 2},
		{"crlf", []string{"a\r\nb\r\n"}, []string{"a", "b"}, 0},
		{"empty lines kept", []string{"\n\na\n"}, []string{"", "", "a"}, 0},
		{"no newline", []string{"abc", "def"}, nil, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewLineBuffer(0)
			got := feedAll(b, tt.chunks...)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if b.Pending() != tt.pending {
				t.Errorf("Pending = %d, want %d", b.Pending(), tt.pending)
			}
		})
	}
}

func TestLineBuffer_LinesSurviveLaterFeeds(t *testing.T) {
	b := NewLineBuffer(0)
	first := b.Feed([]byte("first\nsec"))
	b.Feed([]byte("ond\nthird\n"))
	if string(first[0]) != "first" {
		t.Errorf("earlier line was overwritten: %q", first[0])
	}
}

func TestLineBuffer_DropsOversizedLines(t *testing.T) {
	b := NewLineBuffer(8)
	got := feedAll(b, "short\n", strings.Repeat("x", 20)+"\n", "ok\n")
	if strings.Join(got, "|") != "short|ok" {
		t.Errorf("lines = %q", got)
	}
	if b.Dropped != 20 {
		t.Errorf("Dropped = %d, want 20", b.Dropped)
	}
}

func TestLineBuffer_DropsOversizedPartialAcrossFeeds(t *testing.T) {
	b := NewLineBuffer(8)
	got := feedAll(b, strings.Repeat("y", 10), strings.Repeat("y", 5), "yy\nafter\n")
	if strings.Join(got, "|") != "after" {
		t.Errorf("lines = %q, want only the line after the oversized one", got)
	}
	if b.Dropped != 17 {
		t.Errorf("Dropped = %d, want 17", b.Dropped)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d", b.Pending())
	}
}
