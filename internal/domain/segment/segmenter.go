// Package segment cuts narration text into pieces that each fit a spoken
// duration budget.
//
// Pieces are byte spans over the source, so merging two neighbours keeps the
// original text between them and no rune is ever lost or repeated.
package segment

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultMaxDuration is the budget used when a caller passes a non-positive one.
	DefaultMaxDuration = 10.0
	// DefaultMinChars is the floor used when a caller passes a non-positive one.
	DefaultMinChars = 10

	idealFill  = 0.9
	idealFloor = 0.8
)

// Segment is one narration chunk.
type Segment struct {
	Text              string  `json:"text"`
	CharCount         int     `json:"char_count"`
	EstimatedDuration float64 `json:"estimated_duration"`
	// Short is set when CharCount is below the minimum and no neighbour could absorb it.
	Short bool `json:"short,omitempty"`
	// Oversized is set on an indivisible piece that alone exceeds the budget.
	Oversized bool `json:"oversized,omitempty"`
}

// Segmenter splits text using a speech rate and an optional Oracle.
type Segmenter struct {
	rate       SpeechRate
	strategies []unitStrategy
	logger     *zap.Logger
	onFallback func(error)
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithRate sets the speech rate used for every estimate.
func WithRate(r SpeechRate) Option {
	return func(s *Segmenter) { s.rate = r }
}

// WithOracle puts o ahead of the punctuation splitter.
func WithOracle(o Oracle) Option {
	return func(s *Segmenter) {
		if o != nil {
			s.strategies = append([]unitStrategy{oracleStrategy{oracle: o}}, s.strategies...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFallbackHook is called each time a strategy fails and the next one is tried.
func WithFallbackHook(fn func(error)) Option {
	return func(s *Segmenter) { s.onFallback = fn }
}

// New returns a Segmenter. Without options it uses DefaultRate and the
// punctuation splitter only.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		rate:       DefaultRate(),
		strategies: []unitStrategy{punctuationStrategy{}},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rate returns the segmenter's speech rate.
func (s *Segmenter) Rate() SpeechRate { return s.rate }

// WithRate returns a copy of s that estimates with r.
func (s *Segmenter) WithRate(r SpeechRate) *Segmenter {
	c := *s
	c.rate = r
	return &c
}

// EstimateDuration returns the spoken duration of text in seconds.
func (s *Segmenter) EstimateDuration(text string) float64 {
	return s.rate.EstimateDuration(text)
}

// SplitText is Split reduced to the segment texts.
func (s *Segmenter) SplitText(ctx context.Context, text string, maxDuration float64, minChars int) []string {
	segs := s.Split(ctx, text, maxDuration, minChars)
	out := make([]string, len(segs))
	for i, seg := range segs {
		out[i] = seg.Text
	}
	return out
}

type piece struct {
	span
	count int
	// barrier marks the first piece of a headed section. Nothing merges
	// into it from the left.
	barrier bool
}

// Split cuts text into ordered segments whose estimated duration is at most
// maxDuration. Pieces shorter than minChars are merged into a neighbour when
// the result still fits. It never fails: empty input yields no segments and
// oracle problems fall back to punctuation.
func (s *Segmenter) Split(ctx context.Context, text string, maxDuration float64, minChars int) []Segment {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil
	}
	if !(maxDuration > 0) || math.IsInf(maxDuration, 0) {
		s.logger.Warn("invalid max duration, using default",
			zap.Float64("max_duration", maxDuration),
			zap.Float64("default", DefaultMaxDuration))
		maxDuration = DefaultMaxDuration
	}
	if minChars <= 0 {
		minChars = DefaultMinChars
	}

	limit := int(math.Floor(maxDuration*s.rate.PerSecond() + 1e-9))
	if s.rate.Count(src) <= limit {
		return []Segment{s.segment(src, limit, minChars)}
	}

	hint := Hint{
		TargetChars: int(maxDuration * s.rate.PerSecond() * idealFill),
		MaxDuration: maxDuration,
	}
	ref := refiner{src: src, rate: s.rate, limit: limit}

	var pieces []piece
	for _, sec := range parseSections(src, s.rate, limit) {
		pieces = append(pieces, s.sectionPieces(ctx, ref, sec, hint)...)
	}

	pieces = mergeShort(pieces, limit, minChars)
	ideal := int(maxDuration * s.rate.PerSecond() * idealFill * idealFloor)
	if ideal < minChars {
		ideal = minChars
	}
	pieces = mergeBelowIdeal(pieces, limit, ideal)
	pieces = foldBlank(src, pieces)

	out := make([]Segment, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, s.segment(src[p.start:p.end], limit, minChars))
	}
	s.logger.Debug("text split",
		zap.Int("segments", len(out)),
		zap.Int("limit_chars", limit),
		zap.Float64("chars_per_second", s.rate.PerSecond()))
	return out
}

func (s *Segmenter) segment(text string, limit, minChars int) Segment {
	text = strings.TrimSpace(text)
	n := s.rate.Count(text)
	return Segment{
		Text:              text,
		CharCount:         n,
		EstimatedDuration: s.rate.seconds(n),
		Short:             n < minChars,
		Oversized:         n > limit,
	}
}

func (s *Segmenter) sectionPieces(ctx context.Context, ref refiner, sec section, hint Hint) []piece {
	var units []span
	if sec.hasBody(ref.src) {
		units = s.units(ctx, ref, sec.body, hint)
	}
	if !sec.hasHeader() {
		return toPieces(ref, units)
	}
	if len(units) == 0 {
		return []piece{{span: sec.hdr, count: ref.count(sec.hdr), barrier: true}}
	}

	hdrN := ref.count(sec.hdr)
	first := units[0]
	if hdrN+ref.count(first) > ref.limit {
		room := ref
		room.limit = ref.limit - hdrN
		split := room.refine(first)
		units = append(split, units[1:]...)
	}
	units[0].start = sec.hdr.start
	ps := toPieces(ref, units)
	ps[0].barrier = true
	return ps
}

// units asks each strategy in turn and refines the first usable answer.
func (s *Segmenter) units(ctx context.Context, ref refiner, body span, hint Hint) []span {
	if ref.count(body) <= ref.limit {
		return []span{body}
	}
	var raw []span
	for _, st := range s.strategies {
		var err error
		raw, err = st.units(ctx, ref.src, body, hint)
		if err == nil && len(raw) > 0 {
			break
		}
		s.logger.Warn("segment strategy failed, trying next",
			zap.String("strategy", st.name()),
			zap.Error(err))
		if s.onFallback != nil {
			s.onFallback(err)
		}
		raw = nil
	}
	if len(raw) == 0 {
		raw = []span{body}
	}

	var out []span
	for _, u := range raw {
		out = append(out, ref.refine(u)...)
	}
	return out
}

func toPieces(ref refiner, spans []span) []piece {
	out := make([]piece, len(spans))
	for i, sp := range spans {
		out[i] = piece{span: sp, count: ref.count(sp)}
	}
	return out
}

func join(a, b piece) piece {
	return piece{span: span{a.start, b.end}, count: a.count + b.count, barrier: a.barrier}
}

// mergeShort folds pieces below minChars into the following piece, else the
// preceding one, while the result fits. It repeats until nothing changes.
func mergeShort(ps []piece, limit, minChars int) []piece {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(ps); i++ {
			if ps[i].count >= minChars {
				continue
			}
			if i+1 < len(ps) && !ps[i+1].barrier && ps[i].count+ps[i+1].count <= limit {
				ps = mergeAt(ps, i)
				changed = true
				continue
			}
			if i > 0 && !ps[i].barrier && ps[i-1].count+ps[i].count <= limit {
				ps = mergeAt(ps, i-1)
				changed = true
				i--
			}
		}
	}
	return ps
}

// mergeBelowIdeal makes one forward pass joining a piece below ideal with
// the piece after it when the result fits.
func mergeBelowIdeal(ps []piece, limit, ideal int) []piece {
	out := make([]piece, 0, len(ps))
	for i := 0; i < len(ps); i++ {
		cur := ps[i]
		if cur.count < ideal && i+1 < len(ps) && !ps[i+1].barrier && cur.count+ps[i+1].count <= limit {
			out = append(out, join(cur, ps[i+1]))
			i++
			continue
		}
		out = append(out, cur)
	}
	return out
}

// foldBlank joins pieces holding only whitespace into a neighbour, the
// previous one when there is one, so no segment comes out empty.
func foldBlank(src string, ps []piece) []piece {
	out := make([]piece, 0, len(ps))
	for i := 0; i < len(ps); i++ {
		p := ps[i]
		if strings.TrimSpace(src[p.start:p.end]) != "" {
			out = append(out, p)
			continue
		}
		switch {
		case len(out) > 0:
			last := &out[len(out)-1]
			last.end = p.end
			last.count += p.count
		case i+1 < len(ps):
			next := ps[i+1]
			out = append(out, piece{span: span{p.start, next.end}, count: p.count + next.count, barrier: p.barrier || next.barrier})
			i++
		}
	}
	return out
}

func mergeAt(ps []piece, i int) []piece {
	ps[i] = join(ps[i], ps[i+1])
	return append(ps[:i+1], ps[i+2:]...)
}
