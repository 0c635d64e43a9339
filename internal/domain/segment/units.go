package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a byte range [start, end) over the source text.
type span struct {
	start, end int
}

const (
	primaryMarks   = "。！？；!?;"
	secondaryMarks = "，、,：:"
	closingMarks   = "”’\"'）)】」』》〉]"
)

var connectives = []string{
	"但是", "而且", "并且", "因此", "所以", "以及", "和", "与", "及",
	"and", "but", "or", "so",
}

func isPrimary(src string, i int, r rune, size int) bool {
	if r == '\n' || strings.ContainsRune(primaryMarks, r) {
		return true
	}
	if r != '.' {
		return false
	}
	next := i + size
	if next >= len(src) {
		return true
	}
	nr, _ := utf8.DecodeRuneInString(src[next:])
	return unicode.IsSpace(nr)
}

func isSecondary(r rune) bool {
	return strings.ContainsRune(secondaryMarks, r)
}

func isPunct(r rune) bool {
	return strings.ContainsRune(primaryMarks, r) || isSecondary(r) || r == '.'
}

// skipClosers advances i over closing quotes and brackets so they stay with
// the mark that precedes them.
func skipClosers(src string, i, end int) int {
	for i < end {
		r, size := utf8.DecodeRuneInString(src[i:end])
		if !strings.ContainsRune(closingMarks, r) {
			break
		}
		i += size
	}
	return i
}

// cutAt splits sp after every rune for which brk reports true. The returned
// spans cover sp exactly. Spans holding only whitespace are folded into
// their predecessor.
func cutAt(src string, sp span, brk func(i int, r rune, size int) bool) []span {
	var out []span
	start := sp.start
	for i := sp.start; i < sp.end; {
		r, size := utf8.DecodeRuneInString(src[i:sp.end])
		i += size
		if !brk(i-size, r, size) {
			continue
		}
		i = skipClosers(src, i, sp.end)
		out = appendSpan(src, out, span{start, i})
		start = i
	}
	if start < sp.end {
		out = appendSpan(src, out, span{start, sp.end})
	}
	return out
}

func appendSpan(src string, out []span, sp span) []span {
	if strings.TrimSpace(src[sp.start:sp.end]) == "" && len(out) > 0 {
		out[len(out)-1].end = sp.end
		return out
	}
	if len(out) > 0 && strings.TrimSpace(src[out[len(out)-1].start:out[len(out)-1].end]) == "" {
		out[len(out)-1].end = sp.end
		return out
	}
	return append(out, sp)
}

// sentences splits at sentence-ending marks and line breaks.
func sentences(src string, sp span) []span {
	return cutAt(src, sp, func(i int, r rune, size int) bool {
		return isPrimary(src, i, r, size)
	})
}

// clauses splits at pause marks.
func clauses(src string, sp span) []span {
	return cutAt(src, sp, func(_ int, r rune, _ int) bool {
		return isSecondary(r)
	})
}

// refiner breaks spans down until each fits a counted-rune limit.
type refiner struct {
	src   string
	rate  SpeechRate
	limit int
}

func (f refiner) count(sp span) int {
	return f.rate.Count(f.src[sp.start:sp.end])
}

// refine returns sp unchanged when it fits, else the clause split packed
// greedily, with fixed windows for any clause that still does not fit.
func (f refiner) refine(sp span) []span {
	if f.count(sp) <= f.limit {
		return []span{sp}
	}
	var out []span
	cur := span{-1, -1}
	curN := 0
	flush := func() {
		if cur.start >= 0 {
			out = append(out, cur)
		}
		cur = span{-1, -1}
		curN = 0
	}
	for _, c := range clauses(f.src, sp) {
		n := f.count(c)
		if n > f.limit {
			flush()
			out = append(out, f.windows(c)...)
			continue
		}
		if cur.start >= 0 && curN+n <= f.limit {
			cur.end = c.end
			curN += n
			continue
		}
		flush()
		cur = c
		curN = n
	}
	flush()
	return out
}

type boundary struct {
	pos     int
	counted int
	after   rune
	next    rune
}

// splitsMark reports whether cutting at b would start the next piece with
// punctuation.
func (b boundary) splitsMark() bool {
	return isPunct(b.next) || strings.ContainsRune(closingMarks, b.next)
}

// windows cuts sp into pieces of at most limit counted runes. Inside the
// lookback window [limit/2, limit] it prefers the rightmost punctuation,
// then the rightmost whitespace. Below the window it still takes any
// whitespace before resorting to a hard cut. Every piece holds at least one
// counted rune so a limit below one still makes progress, and a
// whitespace-only tail joins the piece before it.
func (f refiner) windows(sp span) []span {
	var out []span
	for sp.start < sp.end {
		if f.count(sp) <= f.limit {
			out = appendSpan(f.src, out, sp)
			break
		}
		cut := f.chooseCut(sp)
		out = appendSpan(f.src, out, span{sp.start, cut})
		sp.start = cut
	}
	return out
}

func (f refiner) chooseCut(sp span) int {
	var bs []boundary
	n := 0
	for i := sp.start; i < sp.end; {
		r, size := utf8.DecodeRuneInString(f.src[i:sp.end])
		if f.rate.Mode.counts(r) {
			n++
		}
		i += size
		if i < sp.end {
			next, _ := utf8.DecodeRuneInString(f.src[i:sp.end])
			bs = append(bs, boundary{pos: i, counted: n, after: r, next: next})
		}
	}

	limit := f.limit
	if limit < 1 {
		limit = 1
	}
	lo := limit / 2
	if lo < 1 {
		lo = 1
	}

	punct, space, anySpace, hard, anyHard := -1, -1, -1, -1, -1
	for k, b := range bs {
		if b.counted > limit {
			break
		}
		if b.counted < 1 {
			continue
		}
		anyHard = k
		if !b.splitsMark() {
			hard = k
			if unicode.IsSpace(b.after) {
				anySpace = k
			}
		}
		if b.counted < lo {
			continue
		}
		if isPunct(b.after) {
			punct = k
		} else if unicode.IsSpace(b.after) && !b.splitsMark() {
			space = k
		}
	}

	switch {
	case punct >= 0:
		cut := skipClosers(f.src, bs[punct].pos, sp.end)
		if f.count(span{sp.start, cut}) > limit {
			cut = bs[punct].pos
		}
		return cut
	case space >= 0:
		return f.shedConnective(sp.start, bs[space].pos)
	case anySpace >= 0:
		return f.shedConnective(sp.start, bs[anySpace].pos)
	case hard >= 0:
		return f.shedConnective(sp.start, bs[hard].pos)
	case anyHard >= 0:
		return bs[anyHard].pos
	}
	// No boundary fits: the first counted rune alone is over budget.
	for _, b := range bs {
		if b.counted >= 1 {
			return b.pos
		}
	}
	return sp.end
}

// shedConnective moves a trailing connective word into the next piece when
// the current piece keeps at least one counted rune.
func (f refiner) shedConnective(start, cut int) int {
	piece := strings.TrimRightFunc(f.src[start:cut], unicode.IsSpace)
	for _, c := range connectives {
		if !strings.HasSuffix(piece, c) {
			continue
		}
		at := start + len(piece) - len(c)
		if isASCIIWord(c) && at > start {
			prev, _ := utf8.DecodeLastRuneInString(f.src[start:at])
			if !unicode.IsSpace(prev) {
				continue
			}
		}
		if f.rate.Count(f.src[start:at]) < 1 {
			return cut
		}
		return at
	}
	return cut
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
