package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/forPelevin/newscast/internal/config"
	"github.com/forPelevin/newscast/internal/domain/align"
	"github.com/forPelevin/newscast/internal/metrics"
	"github.com/forPelevin/newscast/internal/types"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/早间 News.Brief.txt", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	prefix := "早间-news-brief-20260212-103045Z-"
	if !strings.HasPrefix(base, prefix) {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len(prefix)+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
}

func TestBuildCacheDir_UniquePerRun(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 0, time.UTC)
	first := buildRunOutDir("out", "/data/news.txt", now)
	second := buildRunOutDir("out", "/data/news.txt", now.Add(time.Nanosecond))

	a := buildCacheDir(".cache", first)
	b := buildCacheDir(".cache", second)
	if a == b {
		t.Fatalf("runs of the same input share cache dir %s", a)
	}
	if filepath.Dir(a) != filepath.Join(".cache", "runs") {
		t.Fatalf("unexpected cache parent: %s", a)
	}
	if filepath.Base(a) != filepath.Base(first) {
		t.Fatalf("cache dir %s not named after run dir %s", a, first)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  Morning Brief.v2  ": "morning-brief-v2",
		"___":                  "",
		"新闻123":                "新闻123",
		"【要闻】速递!":              "要闻-速递",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	input := filepath.Join(t.TempDir(), "news.txt")
	require.NoError(t, os.WriteFile(input, []byte("今天的新闻。"), 0o644))
	s := config.Default()
	s.TTS.APIKey = "tts"
	s.Ark.APIKey = "ark"
	s.LLM.APIKey = "llm"
	return Config{InputPath: input, Settings: &s}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "missing input", mutate: func(c *Config) { c.InputPath = "/nope/news.txt" }, wantErr: "stat input"},
		{name: "no tts key", mutate: func(c *Config) { c.Settings.TTS.APIKey = "" }, wantErr: config.EnvTTSAPIKey},
		{name: "http tts needs no key", mutate: func(c *Config) {
			c.Settings.TTS.Provider = "http"
			c.Settings.TTS.APIKey = ""
		}},
		{name: "no ark key", mutate: func(c *Config) { c.Settings.Ark.APIKey = "" }, wantErr: config.EnvArkAPIKey},
		{name: "notify without key", mutate: func(c *Config) { c.Notify = true }, wantErr: config.EnvWeComKey},
		{name: "llm without key", mutate: func(c *Config) { c.Settings.LLM.APIKey = "" }, wantErr: config.EnvLLMAPIKey},
		{name: "llm off needs no key", mutate: func(c *Config) {
			c.Settings.Segment.UseLLM = false
			c.Settings.LLM.APIKey = ""
		}},
		{name: "llm host not allowed", mutate: func(c *Config) { c.Settings.LLM.BaseURL = "https://evil.example.com/v1" }, wantErr: "allowed_hosts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig(t)
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSegmenter_UsesConfiguredRate(t *testing.T) {
	s := config.Default()
	s.Segment.UseLLM = false
	s.Segment.CharsPerSecond = 4
	s.Segment.CountMode = "strict"

	seg := NewSegmenter(&s, metrics.NewCollector("pipeline_rate", nil), zaptest.NewLogger(t))
	assert.Equal(t, 4.0, seg.Rate().PerSecond())
	assert.Equal(t, "strict", seg.Rate().Mode.String())
	// Strict mode ignores punctuation: 4 word runes at 4/s.
	assert.InDelta(t, 1.0, seg.EstimateDuration("新闻，速递！"), 1e-9)
}

func sampleManifest() types.Manifest {
	ok := &align.SyncReport{Final: 4.3, Reference: 4.3, OK: true}
	drift := &align.SyncReport{Final: 5, Reference: 4.3, Error: 0.7}
	return types.Manifest{
		RunID:  "run-1",
		Input:  "/data/morning.txt",
		Status: types.RunPartial,
		Segments: []types.ManifestSegment{
			{Index: 0, ID: "001", Text: "第一条。", Status: types.StatusOK, Sync: ok,
				Plan: &align.Plan{Strategy: align.Trim}},
			{Index: 1, ID: "002", Text: "第二条。", Status: types.StatusFailed, Error: "tts: boom"},
			{Index: 2, ID: "003", Text: "第三条。", Status: types.StatusOK, Sync: drift},
		},
		SegmentsFailed: 1,
		FinalVideo:     "final.mp4",
	}
}

func TestSummary(t *testing.T) {
	got := Summary(sampleManifest())
	assert.True(t, strings.HasPrefix(got, "# morning\n"))
	assert.Contains(t, got, "2</font>/3 成功")
	assert.Contains(t, got, "1 失败")
	assert.Contains(t, got, "- ✅ 001 第一条。")
	assert.Contains(t, got, "- ❌ 002 第二条。")
	assert.Contains(t, got, "- ⚠️ 003 第三条。")
}

func TestHistoryRecords(t *testing.T) {
	run, segs := historyRecords("/out/run", sampleManifest(), errors.New("late failure"))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, filepath.Join("/out/run", "final.mp4"), run.FinalVideo)
	assert.Equal(t, 3, run.SegmentsTotal)
	assert.Equal(t, "late failure", run.Error)
	require.Len(t, segs, 3)
	assert.Equal(t, "trim", segs[0].Strategy)
	require.NotNil(t, segs[0].SyncOK)
	assert.True(t, *segs[0].SyncOK)
	assert.Nil(t, segs[1].SyncOK)
	assert.Equal(t, "tts: boom", segs[1].Error)
}

type fakeNotifier struct {
	markdown []string
	files    []string
	err      error
}

func (f *fakeNotifier) SendMarkdown(_ context.Context, content string) error {
	f.markdown = append(f.markdown, content)
	return f.err
}

func (f *fakeNotifier) SendFile(_ context.Context, path string) error {
	f.files = append(f.files, path)
	return nil
}

func TestNotify(t *testing.T) {
	n := &fakeNotifier{}
	require.NoError(t, notify(context.Background(), n, sampleManifest(), "/out/run"))
	assert.Len(t, n.markdown, 1)
	assert.Equal(t, []string{filepath.Join("/out/run", "final.mp4")}, n.files)

	failing := &fakeNotifier{err: errors.New("errcode 93000")}
	require.Error(t, notify(context.Background(), failing, sampleManifest(), "/out/run"))
	assert.Empty(t, failing.files)
}
