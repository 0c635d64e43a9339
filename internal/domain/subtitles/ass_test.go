package subtitles

import (
	"strings"
	"testing"
	"time"
)

const news = "今天上午，市政府召开新闻发布会，宣布了新的城市交通规划方案。"

func TestBuildCues_WrapsAtPunctuation(t *testing.T) {
	cues := BuildCues(news, 6*time.Second, DefaultLineWidth)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d: %+v", len(cues), cues)
	}
	if cues[0].Text != "今天上午，市政府召开新闻发布会，" {
		t.Fatalf("unexpected first line: %q", cues[0].Text)
	}
	if cues[0].End != 3200*time.Millisecond || cues[1].Start != cues[0].End {
		t.Fatalf("unexpected timing: %+v", cues)
	}
	if cues[1].End != 6*time.Second {
		t.Fatalf("last cue must end at total, got %s", cues[1].End)
	}
}

func TestBuildCues_HardBreakWithoutPunctuation(t *testing.T) {
	cues := BuildCues(strings.Repeat("字", 20), time.Second, 10)
	if len(cues) != 4 {
		t.Fatalf("expected 4 cues of 5 runes, got %d", len(cues))
	}
	for _, c := range cues {
		if DisplayWidth(c.Text) > 10 {
			t.Fatalf("line too wide: %q", c.Text)
		}
	}
}

func TestBuildCues_Empty(t *testing.T) {
	if cues := BuildCues("   ", time.Second, 0); cues != nil {
		t.Fatalf("expected no cues, got %+v", cues)
	}
}

func TestDisplayWidth(t *testing.T) {
	tests := map[string]int{
		"abc":  3,
		"新闻":   4,
		"AI新闻": 6,
		"，。":   4,
	}
	for in, want := range tests {
		if got := DisplayWidth(in); got != want {
			t.Fatalf("DisplayWidth(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRender_ASS(t *testing.T) {
	ass := Render(FormatASS, news, 6*time.Second, DefaultLineWidth)
	if !strings.Contains(ass, "[Events]") || !strings.Contains(ass, "Style: Caption") {
		t.Fatalf("missing ASS sections:\n%s", ass)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:00.00,0:00:03.20,Caption,,0,0,0,,今天上午") {
		t.Fatalf("unexpected first dialogue:\n%s", ass)
	}
}

func TestRender_SRT(t *testing.T) {
	srt := Render(FormatSRT, news, 6*time.Second, DefaultLineWidth)
	want := "1\n00:00:00,000 --> 00:00:03,200\n今天上午，市政府召开新闻发布会，\n\n" +
		"2\n00:00:03,200 --> 00:00:06,000\n宣布了新的城市交通规划方案。\n\n"
	if srt != want {
		t.Fatalf("unexpected SRT:\n%s", srt)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("SRT"); err != nil || f != FormatSRT {
		t.Fatalf("ParseFormat(SRT) = %q, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatASS {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if _, err := ParseFormat("vtt"); err == nil {
		t.Fatalf("expected error for vtt")
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}

func TestSanitizeASS(t *testing.T) {
	if got := sanitizeASS(` {\b1}粗体 `); got != `(\\b1)粗体` {
		t.Fatalf("unexpected sanitize: %q", got)
	}
}
