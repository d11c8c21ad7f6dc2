// Package chunker splits document text into bounded, overlapping chunks.
package chunker

import (
	"errors"
	"fmt"
)

// Strategy selects how chunk boundaries are placed.
type Strategy string

const (
	// StrategyFixed cuts fixed windows of MaxChars characters.
	StrategyFixed Strategy = "fixed"
	// StrategyStructured snaps window ends to headings, paragraphs, lines,
	// sentences or whitespace, in that order of preference.
	StrategyStructured Strategy = "structured"
)

// ErrInvalidOptions is returned by Validate for unusable option combinations.
var ErrInvalidOptions = errors.New("invalid chunk options")

// Options configures chunking. Sizes are in characters (Unicode code points).
type Options struct {
	MaxChars         int
	Overlap          int
	MinChars         int
	Strategy         Strategy
	RespectStructure bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxChars: 1000,
		Overlap:  200,
		MinChars: 100,
		Strategy: StrategyFixed,
	}
}

// Validate checks that the options can produce chunks that make progress.
func (o Options) Validate() error {
	switch {
	case o.MaxChars <= 0:
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidOptions, o.MaxChars)
	case o.Overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidOptions, o.Overlap)
	case o.Overlap >= o.MaxChars:
		return fmt.Errorf("%w: overlap (%d) must be smaller than max_chars (%d)", ErrInvalidOptions, o.Overlap, o.MaxChars)
	case o.MinChars < 0:
		return fmt.Errorf("%w: min_chars must not be negative, got %d", ErrInvalidOptions, o.MinChars)
	case o.MinChars > o.MaxChars:
		return fmt.Errorf("%w: min_chars (%d) exceeds max_chars (%d)", ErrInvalidOptions, o.MinChars, o.MaxChars)
	}
	switch o.Strategy {
	case "", StrategyFixed, StrategyStructured:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidOptions, o.Strategy)
	}
	return nil
}

// Signature renders the options as a stable string. Two option sets with the
// same signature produce identical chunk boundaries for the same text.
func (o Options) Signature() string {
	strategy := o.Strategy
	if strategy == "" {
		strategy = StrategyFixed
	}
	return fmt.Sprintf("%s:%d:%d:%d:%t", strategy, o.MaxChars, o.Overlap, o.MinChars, o.RespectStructure)
}
