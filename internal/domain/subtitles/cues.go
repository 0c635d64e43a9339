package subtitles

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"
)

// DefaultLineWidth is the display width of one subtitle line in cells. A CJK
// rune takes two cells.
const DefaultLineWidth = 36

// Cue is one subtitle event.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

const breakAfter = "，。！？；：、,.!?;:"

// RuneWidth returns the number of terminal cells r occupies.
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// DisplayWidth returns the number of cells s occupies.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += RuneWidth(r)
	}
	return n
}

// BuildCues breaks text into lines no wider than lineWidth and spreads total
// across them in proportion to their visible length.
func BuildCues(text string, total time.Duration, lineWidth int) []Cue {
	lines := wrap(text, lineWidth)
	if len(lines) == 0 || total <= 0 {
		return nil
	}
	weights := make([]int, len(lines))
	sum := 0
	for i, ln := range lines {
		w := 0
		for _, r := range ln {
			if !unicode.IsSpace(r) {
				w++
			}
		}
		if w == 0 {
			w = 1
		}
		weights[i] = w
		sum += w
	}

	out := make([]Cue, len(lines))
	var at time.Duration
	acc := 0
	for i, ln := range lines {
		acc += weights[i]
		end := total * time.Duration(acc) / time.Duration(sum)
		if i == len(lines)-1 {
			end = total
		}
		out[i] = Cue{Start: at, End: end, Text: ln}
		at = end
	}
	return out
}

// wrap prefers to break right after punctuation, falling back to a break
// at the width limit.
func wrap(text string, lineWidth int) []string {
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var out []string
	rs := []rune(text)
	for len(rs) > 0 {
		w, cut, lastBreak := 0, len(rs), -1
		for i, r := range rs {
			w += RuneWidth(r)
			if w > lineWidth {
				cut = i
				break
			}
			if strings.ContainsRune(breakAfter, r) || r == ' ' {
				lastBreak = i + 1
			}
		}
		if cut < len(rs) && lastBreak > 0 {
			cut = lastBreak
		}
		if cut == 0 {
			cut = 1
		}
		if ln := strings.TrimSpace(string(rs[:cut])); ln != "" {
			out = append(out, ln)
		}
		rs = rs[cut:]
	}
	return out
}
