package segment

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Hint tells an Oracle how long its suggested segments should be.
type Hint struct {
	TargetChars int
	MaxDuration float64
}

// Oracle suggests semantic segment boundaries for a text. Its output is
// untrusted: suggestions are used only when they cover the text exactly.
type Oracle interface {
	SuggestSegments(ctx context.Context, text string, hint Hint) ([]string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, text string, hint Hint) ([]string, error)

func (f OracleFunc) SuggestSegments(ctx context.Context, text string, hint Hint) ([]string, error) {
	return f(ctx, text, hint)
}

var (
	errNoSuggestions = errors.New("oracle returned no segments")
	errEmptySegment  = errors.New("oracle returned an empty segment")
)

// CoverageError reports suggestions that do not reproduce the source text.
type CoverageError struct {
	Segment int
	Reason  string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("oracle segment %d: %s", e.Segment, e.Reason)
}

// unitStrategy proposes candidate units for a body span, or fails so the
// next strategy is tried.
type unitStrategy interface {
	name() string
	units(ctx context.Context, src string, body span, hint Hint) ([]span, error)
}

type punctuationStrategy struct{}

func (punctuationStrategy) name() string { return "punctuation" }

func (punctuationStrategy) units(_ context.Context, src string, body span, _ Hint) ([]span, error) {
	return sentences(src, body), nil
}

type oracleStrategy struct {
	oracle Oracle
}

func (oracleStrategy) name() string { return "oracle" }

func (o oracleStrategy) units(ctx context.Context, src string, body span, hint Hint) ([]span, error) {
	sugg, err := o.oracle.SuggestSegments(ctx, src[body.start:body.end], hint)
	if err != nil {
		return nil, err
	}
	return alignSuggestions(src, body, sugg)
}

// alignSuggestions maps suggestions onto body. Ignoring whitespace, the
// suggestions must spell out the body in order with nothing missing or
// added. The returned spans cover body exactly.
func alignSuggestions(src string, body span, sugg []string) ([]span, error) {
	if len(sugg) == 0 {
		return nil, errNoSuggestions
	}
	pos := body.start
	nextRune := func() (rune, int, bool) {
		for pos < body.end {
			r, size := utf8.DecodeRuneInString(src[pos:body.end])
			if !unicode.IsSpace(r) {
				return r, size, true
			}
			pos += size
		}
		return 0, 0, false
	}

	out := make([]span, 0, len(sugg))
	start := body.start
	for i, s := range sugg {
		matched := 0
		for _, want := range s {
			if unicode.IsSpace(want) {
				continue
			}
			got, size, ok := nextRune()
			if !ok {
				return nil, &CoverageError{Segment: i, Reason: "runs past the end of the text"}
			}
			if got != want {
				return nil, &CoverageError{Segment: i, Reason: fmt.Sprintf("has %q where the text has %q", want, got)}
			}
			pos += size
			matched++
		}
		if matched == 0 {
			return nil, errEmptySegment
		}
		out = append(out, span{start, pos})
		start = pos
	}
	if _, _, ok := nextRune(); ok {
		return nil, &CoverageError{Segment: len(sugg) - 1, Reason: "text remains after the last segment"}
	}
	out[len(out)-1].end = body.end
	return out, nil
}
