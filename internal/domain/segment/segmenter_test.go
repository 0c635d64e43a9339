package segment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSplit_EmptyInput(t *testing.T) {
	s := New()
	for _, in := range []string{"", "   ", "\n\t \n"} {
		if got := s.Split(context.Background(), in, 10, 10); len(got) != 0 {
			t.Fatalf("Split(%q) = %v, want empty", in, got)
		}
	}
}

func TestSplit_FittingTextReturnedWhole(t *testing.T) {
	s := New()
	in := "今天天气很好，我们去公园散步。"
	got := s.SplitText(context.Background(), in, 10, 10)
	require.Equal(t, []string{in}, got)
}

func TestSplit_HeaderAttachedToFirstSegment(t *testing.T) {
	in := "## 1. Title\nBody sentence one. Body sentence two."

	tests := []struct {
		name string
		max  float64
		want []string
	}{
		{
			name: "header and first sentence fit",
			max:  6,
			want: []string{"## 1. Title\nBody sentence one.", "Body sentence two."},
		},
		{
			name: "first sentence re-split to make room",
			max:  4,
			want: []string{"## 1. Title\nBody", "sentence one.", "Body sentence two."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(WithLogger(zaptest.NewLogger(t))).SplitText(context.Background(), in, tt.max, 10)
			require.Equal(t, tt.want, got)
			for _, later := range got[1:] {
				assert.NotContains(t, later, "Title")
			}
		})
	}
}

func TestSplit_HeaderRoomLeavesShortRemainder(t *testing.T) {
	// Limit 10: the header takes 3, the first sentence is hard cut at 7 and
	// its 2-char tail cannot join either neighbour within budget.
	in := "# 要闻\n一二三四五六七八。甲乙丙丁戊己庚辛壬。"
	got := New().Split(context.Background(), in, 2, 5)
	require.Len(t, got, 3)
	assert.Equal(t, "# 要闻\n一二三四五六七", got[0].Text)
	assert.Equal(t, "八。", got[1].Text)
	assert.True(t, got[1].Short)
	assert.Equal(t, 2, got[1].CharCount)
	assert.Equal(t, "甲乙丙丁戊己庚辛壬。", got[2].Text)
	assert.False(t, got[2].Short)
}

func TestSplit_SubCharBudgetNeverEmitsBlankSegments(t *testing.T) {
	rate := SpeechRate{CharsPerSecond: 2}
	tests := []struct {
		in   string
		want []string
	}{
		{in: "新\n新", want: []string{"新", "新"}},
		{in: "新闻\n今天", want: []string{"新", "闻", "今", "天"}},
		{in: "abc\ndef", want: []string{"a", "b", "c", "d", "e", "f"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := New(WithRate(rate)).Split(context.Background(), tt.in, 0.25, 1)
			texts := make([]string, 0, len(got))
			for _, seg := range got {
				if seg.Text == "" || seg.CharCount == 0 {
					t.Fatalf("blank segment in %+v", got)
				}
				assert.True(t, seg.Oversized)
				texts = append(texts, seg.Text)
			}
			require.Equal(t, tt.want, texts)
		})
	}
}

func TestFoldBlank(t *testing.T) {
	src := "甲 \n乙"
	ps := []piece{
		{span: span{0, 3}, count: 1},
		{span: span{3, 5}},
		{span: span{5, 8}, count: 1, barrier: true},
	}
	got := foldBlank(src, ps)
	require.Len(t, got, 2)
	assert.Equal(t, span{0, 5}, got[0].span)
	assert.Equal(t, span{5, 8}, got[1].span)

	lead := foldBlank(src[3:], []piece{{span: span{0, 2}}, {span: span{2, 5}, count: 1}})
	require.Len(t, lead, 1)
	assert.Equal(t, span{0, 5}, lead[0].span)
	assert.Equal(t, 1, lead[0].count)
}

func TestSplit_TrailingHeaderStandsAlone(t *testing.T) {
	in := "第一段正文比较长一些。第二句也不短啊。\n# 结尾"
	got := New().SplitText(context.Background(), in, 2, 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "# 结尾", got[len(got)-1])
	assert.Equal(t, stripSpace(in), stripSpace(strings.Join(got, "")))
}

func TestSplit_OversizedRuneFlagged(t *testing.T) {
	got := New().Split(context.Background(), "好的", 0.1, 1)
	require.Len(t, got, 2)
	for _, seg := range got {
		assert.True(t, seg.Oversized, "segment %q", seg.Text)
		assert.Equal(t, 1, seg.CharCount)
	}
}

func TestSplit_InvalidBudgetUsesDefault(t *testing.T) {
	in := strings.Repeat("字", 30)
	got := New().SplitText(context.Background(), in, -1, 0)
	require.Equal(t, []string{in}, got)
}

func TestSplit_StrictModeIgnoresPunctuation(t *testing.T) {
	rate := SpeechRate{CharsPerSecond: 5, Mode: CountStrict}
	// 10 word runes plus punctuation fits a 2 second budget only in strict mode.
	in := "一二三，四五！六七八，九十。"
	assert.Len(t, New(WithRate(rate)).SplitText(context.Background(), in, 2, 1), 1)
	assert.Greater(t, len(New().SplitText(context.Background(), in, 2, 1)), 1)
}

var poem = "春眠不觉晓处处闻啼鸟夜来风雨声花落知多少"

func TestSplit_UsesValidOracleSuggestions(t *testing.T) {
	oracle := OracleFunc(func(_ context.Context, text string, hint Hint) ([]string, error) {
		if text != poem {
			t.Fatalf("oracle got %q", text)
		}
		if hint.TargetChars != 13 || hint.MaxDuration != 3 {
			t.Fatalf("unexpected hint: %+v", hint)
		}
		return []string{"春眠不觉晓 处处闻啼鸟", "夜来风雨声\n花落知多少"}, nil
	})
	got := New(WithOracle(oracle)).SplitText(context.Background(), poem, 3, 5)
	require.Equal(t, []string{"春眠不觉晓处处闻啼鸟", "夜来风雨声花落知多少"}, got)
}

func TestSplit_OracleFailureFallsBackToPunctuation(t *testing.T) {
	want := New().SplitText(context.Background(), poem, 3, 5)
	require.Equal(t, []string{"春眠不觉晓处处闻啼鸟夜来风雨声", "花落知多少"}, want)

	tests := []struct {
		name string
		out  []string
		err  error
	}{
		{name: "error", err: errors.New("upstream 502")},
		{name: "empty list"},
		{name: "empty item", out: []string{"春眠不觉晓处处闻啼鸟", " ", "夜来风雨声花落知多少"}},
		{name: "rewritten text", out: []string{"春眠不觉晓处处闻啼鸟", "夜来风雨声花落知几多"}},
		{name: "missing tail", out: []string{"春眠不觉晓处处闻啼鸟"}},
		{name: "extra text", out: []string{"春眠不觉晓处处闻啼鸟", "夜来风雨声花落知多少", "完"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallbacks := 0
			s := New(
				WithOracle(OracleFunc(func(context.Context, string, Hint) ([]string, error) {
					return tt.out, tt.err
				})),
				WithFallbackHook(func(error) { fallbacks++ }),
			)
			got := s.SplitText(context.Background(), poem, 3, 5)
			assert.Equal(t, want, got)
			assert.Equal(t, 1, fallbacks)
		})
	}
}

func TestAlignSuggestions_CoverageError(t *testing.T) {
	src := "甲乙丙丁"
	_, err := alignSuggestions(src, span{0, len(src)}, []string{"甲乙", "丙戊"})
	var cerr *CoverageError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Segment)
}

func TestWindows_PrefersRightmostPunctuation(t *testing.T) {
	src := "一二三，四五六，七八九十一二"
	f := refiner{src: src, rate: DefaultRate(), limit: 10}
	got := spanTexts(src, f.windows(span{0, len(src)}))
	require.Equal(t, []string{"一二三，四五六，", "七八九十一二"}, got)
}

func TestWindows_KeepsMarkWithPrecedingText(t *testing.T) {
	src := "这是一个比较长的句子。"
	f := refiner{src: src, rate: DefaultRate(), limit: 10}
	got := spanTexts(src, f.windows(span{0, len(src)}))
	require.Equal(t, []string{"这是一个比较长的句", "子。"}, got)
}

func TestWindows_PrefersWhitespaceBelowLookback(t *testing.T) {
	src := "Body sentence one."
	f := refiner{src: src, rate: DefaultRate(), limit: 11}
	got := spanTexts(src, f.windows(span{0, len(src)}))
	require.Equal(t, []string{"Body ", "sentence ", "one."}, got)
}

func TestWindows_WhitespaceTailJoinsPreviousPiece(t *testing.T) {
	src := "新\n"
	f := refiner{src: src, rate: DefaultRate(), limit: 0}
	got := spanTexts(src, f.windows(span{0, len(src)}))
	require.Equal(t, []string{"新\n"}, got)
}

func TestWindows_ShedsTrailingConnective(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		limit int
		want  []string
	}{
		{
			name:  "chinese",
			src:   "我们今天去公园玩但是下雨了没有去成",
			limit: 10,
			want:  []string{"我们今天去公园玩", "但是下雨了没有去成"},
		},
		{
			name:  "english hard cut",
			src:   "abcdefg and hijk",
			limit: 10,
			want:  []string{"abcdefg ", "and hijk"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := refiner{src: tt.src, rate: DefaultRate(), limit: tt.limit}
			got := spanTexts(tt.src, f.windows(span{0, len(tt.src)}))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMergeShort(t *testing.T) {
	tests := []struct {
		name     string
		counts   []int
		barriers []bool
		limit    int
		min      int
		want     []int
	}{
		{name: "forward first", counts: []int{3, 8, 4, 9}, limit: 12, min: 5, want: []int{11, 4, 9}},
		{name: "backward when last", counts: []int{8, 3}, limit: 12, min: 5, want: []int{11}},
		{name: "kept when nothing fits", counts: []int{11, 3, 11}, limit: 12, min: 5, want: []int{11, 3, 11}},
		{name: "chain to fixpoint", counts: []int{1, 1, 1, 1}, limit: 12, min: 3, want: []int{4}},
		{name: "barrier blocks forward", counts: []int{3, 9}, barriers: []bool{false, true}, limit: 20, min: 5, want: []int{3, 9}},
		{name: "barrier blocks backward", counts: []int{9, 3}, barriers: []bool{false, true}, limit: 20, min: 5, want: []int{9, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeShort(makePieces(tt.counts, tt.barriers), tt.limit, tt.min)
			require.Equal(t, tt.want, pieceCounts(got))
		})
	}
}

func TestMergeBelowIdeal_SingleForwardPass(t *testing.T) {
	got := mergeBelowIdeal(makePieces([]int{5, 5, 5}, nil), 12, 8)
	require.Equal(t, []int{10, 5}, pieceCounts(got))
}

func TestParseSections(t *testing.T) {
	src := "导语一句。\n【标题】\n# 副标题\n正文一。\n正文二。\n2. 第二部分\n第二正文。"
	secs := parseSections(src, DefaultRate(), 100)
	require.Len(t, secs, 3)

	assert.False(t, secs[0].hasHeader())
	assert.Equal(t, "导语一句。\n", src[secs[0].body.start:secs[0].body.end])
	assert.Equal(t, "【标题】\n# 副标题", src[secs[1].hdr.start:secs[1].hdr.end])
	assert.Equal(t, "正文一。\n正文二。\n", src[secs[1].body.start:secs[1].body.end])
	assert.Equal(t, "2. 第二部分", src[secs[2].hdr.start:secs[2].hdr.end])
	assert.Equal(t, "第二正文。", src[secs[2].body.start:secs[2].body.end])
}

func TestIsHeaderLine(t *testing.T) {
	tests := map[string]bool{
		"# 标题":     true,
		"###标题":    true,
		"1. 第一条":   true,
		"12、要闻":    true,
		"【快讯】今日要闻": true,
		"3.5%的增长":  false,
		"普通的一句话。":  false,
		"#":        false,
		"2024年的新闻。": false,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := IsHeaderLine(in); got != want {
				t.Fatalf("IsHeaderLine(%q) = %v, want %v", in, got, want)
			}
		})
	}
}

func makePieces(counts []int, barriers []bool) []piece {
	out := make([]piece, len(counts))
	pos := 0
	for i, n := range counts {
		out[i] = piece{span: span{pos, pos + n}, count: n}
		if i < len(barriers) {
			out[i].barrier = barriers[i]
		}
		pos += n
	}
	return out
}

func pieceCounts(ps []piece) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.count
	}
	return out
}

func spanTexts(src string, spans []span) []string {
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = src[sp.start:sp.end]
	}
	return out
}
