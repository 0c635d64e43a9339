package segment

import (
	"regexp"
	"strings"
)

var headerRE = []*regexp.Regexp{
	regexp.MustCompile(`^#{1,6}\s*\S`),
	regexp.MustCompile(`^\d+[.、．]\s*[^\d\s]`),
	regexp.MustCompile(`^【[^】]+】`),
}

// IsHeaderLine reports whether a trimmed line looks like a section title.
func IsHeaderLine(line string) bool {
	for _, re := range headerRE {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// section is a run of header lines followed by the body they introduce.
// hdr is empty when the section has no header.
type section struct {
	hdr  span
	body span
}

func (s section) hasHeader() bool { return s.hdr.end > s.hdr.start }
func (s section) hasBody(src string) bool {
	return strings.TrimSpace(src[s.body.start:s.body.end]) != ""
}

type line struct {
	span
	text string
}

func splitLines(src string) []line {
	var out []line
	start := 0
	for start <= len(src) {
		i := strings.IndexByte(src[start:], '\n')
		end := len(src)
		next := len(src) + 1
		if i >= 0 {
			end = start + i
			next = end + 1
		}
		out = append(out, line{span: span{start, end}, text: strings.TrimSpace(src[start:end])})
		start = next
	}
	return out
}

// parseSections groups src into sections. A header line only counts when it
// fits the budget on its own, and consecutive header lines form one block as
// long as the block still fits. Sections cover src without gaps.
func parseSections(src string, rate SpeechRate, limit int) []section {
	var out []section
	cur := section{hdr: span{0, 0}, body: span{0, 0}}
	open := false
	inHeader := false
	hdrCount := 0

	closeAt := func(pos int) {
		if open {
			if cur.body.start < pos {
				cur.body.end = pos
			}
			out = append(out, cur)
		}
		open = false
	}

	for _, ln := range splitLines(src) {
		if ln.text == "" {
			continue
		}
		n := rate.Count(ln.text)
		if IsHeaderLine(ln.text) && n <= limit {
			if inHeader && hdrCount+n <= limit {
				cur.hdr.end = ln.end
				cur.body = span{ln.end, ln.end}
				hdrCount += n
				continue
			}
			closeAt(ln.start)
			cur = section{hdr: span{ln.start, ln.end}, body: span{ln.end, ln.end}}
			open, inHeader, hdrCount = true, true, n
			continue
		}
		if !open {
			cur = section{body: span{ln.start, ln.end}}
			open = true
		}
		if inHeader {
			cur.body.start = ln.start
			inHeader = false
		}
		cur.body.end = ln.end
	}
	closeAt(len(src))
	return out
}
