package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/forPelevin/newscast/internal/config"
	"github.com/forPelevin/newscast/internal/domain/align"
	"github.com/forPelevin/newscast/internal/domain/segment"
	"github.com/forPelevin/newscast/internal/domain/subtitles"
	"github.com/forPelevin/newscast/internal/metrics"
	"github.com/forPelevin/newscast/internal/ports"
	"github.com/forPelevin/newscast/internal/ports/adapters/ark"
	"github.com/forPelevin/newscast/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/newscast/internal/ports/adapters/llm"
	"github.com/forPelevin/newscast/internal/ports/adapters/tts"
	"github.com/forPelevin/newscast/internal/ports/adapters/wecom"
	"github.com/forPelevin/newscast/internal/store"
	"github.com/forPelevin/newscast/internal/types"
	"github.com/forPelevin/newscast/internal/usecase"
)

type Config struct {
	InputPath string
	Title     string
	Settings  *config.Config

	// MetricsFile, when set, receives the run's metrics in Prometheus text format.
	MetricsFile string
	// Notify posts a summary and the final video to WeCom.
	Notify bool

	Logger *zap.Logger
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.InputPath); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	s := c.Settings
	if s == nil {
		return errors.New("settings are required")
	}
	if s.TTS.Provider == "openai" && s.TTS.APIKey == "" {
		return fmt.Errorf("tts api key is required (set %s)", config.EnvTTSAPIKey)
	}
	if s.Ark.APIKey == "" {
		return fmt.Errorf("ark api key is required (set %s)", config.EnvArkAPIKey)
	}
	if c.Notify && s.WeCom.WebhookKey == "" {
		return fmt.Errorf("wecom webhook key is required for notify (set %s)", config.EnvWeComKey)
	}
	if s.Segment.UseLLM {
		if s.LLM.APIKey == "" {
			return fmt.Errorf("llm api key is required when segment.use_llm is on (set %s)", config.EnvLLMAPIKey)
		}
		return llm.ValidateBaseURL(s.LLM.BaseURL, s.LLM.AllowedHosts)
	}
	return nil
}

// NewSegmenter builds the segmenter described by s, consulting the LLM when
// it is enabled and keyed. Oracle fallbacks are counted on m.
func NewSegmenter(s *config.Config, m *metrics.Collector, logger *zap.Logger) *segment.Segmenter {
	opts := []segment.Option{
		segment.WithRate(segment.SpeechRate{
			CharsPerSecond: s.Segment.CharsPerSecond,
			Mode:           segment.ParseCountMode(s.Segment.CountMode),
		}),
		segment.WithLogger(logger),
		segment.WithFallbackHook(func(error) { m.RecordOracleFallback() }),
	}
	if s.Segment.UseLLM && s.LLM.APIKey != "" {
		opts = append(opts, segment.WithOracle(llm.New(llm.Config{
			APIKey:  s.LLM.APIKey,
			Model:   s.LLM.Model,
			BaseURL: s.LLM.BaseURL,
			Timeout: s.LLMTimeout(),
		}, logger)))
	}
	return segment.New(opts...)
}

// Run renders the input file into <out>/<name-timestamp-hash>/final.mp4 and
// writes manifest.json next to it. The manifest is also returned on failure
// whenever segmentation succeeded.
func Run(ctx context.Context, cfg Config) (types.Manifest, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := cfg.Settings

	text, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("read input: %w", err)
	}
	format, err := subtitles.ParseFormat(s.Pipeline.SubtitleFormat)
	if err != nil {
		return types.Manifest{}, err
	}

	// adapters
	collector := metrics.NewCollector("newscast", log)
	media := ffmpeg.New(s.FFmpeg.FFmpegPath, s.FFmpeg.FFprobePath)
	speech, err := tts.New(tts.Config{
		Provider: s.TTS.Provider,
		APIKey:   s.TTS.APIKey,
		BaseURL:  s.TTS.BaseURL,
		Model:    s.TTS.Model,
		Voice:    s.TTS.Voice,
		Speed:    s.TTS.Speed,
		Timeout:  s.TTSTimeout(),
	})
	if err != nil {
		return types.Manifest{}, err
	}
	gen := ark.New(ark.Config{
		APIKey:       s.Ark.APIKey,
		BaseURL:      s.Ark.BaseURL,
		ImageModel:   s.Ark.ImageModel,
		VideoModel:   s.Ark.VideoModel,
		ImageSize:    s.Ark.ImageSize,
		Resolution:   s.Ark.Resolution,
		PollInterval: s.ArkPollInterval(),
		PollTimeout:  s.ArkPollTimeout(),
	}, log)

	uc := usecase.New(usecase.Deps{
		Media:     media,
		TTS:       speech,
		Image:     gen,
		Video:     gen,
		Segmenter: NewSegmenter(s, collector, log),
		Aligner:   align.Aligner{MaxLoops: s.Align.MaxLoops},
		Metrics:   collector,
		Logger:    log,
	})

	runOutDir := buildRunOutDir(s.Pipeline.OutDir, cfg.InputPath, time.Now().UTC())
	cacheDir := buildCacheDir(s.Pipeline.CacheDir, runOutDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return types.Manifest{}, err
	}
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return types.Manifest{}, err
	}
	log.Info("workspace ready", zap.String("cache", cacheDir), zap.String("out", runOutDir))

	res, runErr := uc.Run(ctx, usecase.Input{
		Text:           string(text),
		Title:          cfg.Title,
		InputPath:      cfg.InputPath,
		MaxDuration:    s.Segment.MaxDuration,
		MinChars:       s.Segment.MinChars,
		Buffer:         s.Align.Buffer,
		Tolerance:      s.Align.Tolerance,
		Workers:        s.Pipeline.Workers,
		Calibrate:      s.Pipeline.Calibrate,
		Subtitles:      s.Pipeline.Subtitles,
		SubtitleFormat: format,
		LineWidth:      s.Pipeline.LineWidth,
		PromptPrefix:   s.Pipeline.PromptPrefix,
		RetryAttempts:  s.Pipeline.RetryAttempts,
		CacheDir:       cacheDir,
		OutDir:         runOutDir,
	})
	m := res.Manifest
	if m.RunID == "" {
		return m, runErr
	}

	if err := writeManifest(runOutDir, m); err != nil {
		return m, errors.Join(runErr, err)
	}
	log.Info("manifest written", zap.Int("segments", len(m.Segments)), zap.String("dir", runOutDir))

	if s.Store.Enabled {
		recordHistory(ctx, s.Store.Path, runOutDir, m, runErr, log)
	}
	if err := collector.WriteFile(cfg.MetricsFile); err != nil {
		log.Warn("metrics file not written", zap.Error(err))
	}
	if runErr != nil {
		return m, runErr
	}

	if cfg.Notify {
		n := wecom.New(s.WeCom.WebhookKey, s.WeCom.BaseURL, log)
		if err := notify(ctx, n, m, runOutDir); err != nil {
			return m, fmt.Errorf("notify: %w", err)
		}
	}
	return m, nil
}

func writeManifest(dir string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0o644)
}

// recordHistory stores the run. History is best-effort and never fails the run.
func recordHistory(ctx context.Context, path, outDir string, m types.Manifest, runErr error, log *zap.Logger) {
	st, err := store.Open(ctx, path)
	if err != nil {
		log.Warn("history unavailable", zap.Error(err))
		return
	}
	defer st.Close()

	run, segs := historyRecords(outDir, m, runErr)
	if _, err := st.SaveRun(ctx, run, segs); err != nil {
		log.Warn("history not saved", zap.Error(err))
	}
}

func historyRecords(outDir string, m types.Manifest, runErr error) (store.Run, []store.Segment) {
	run := store.Run{
		ID:             m.RunID,
		Title:          m.Title,
		InputPath:      m.Input,
		OutDir:         outDir,
		Status:         m.Status,
		SegmentsTotal:  len(m.Segments),
		SegmentsFailed: m.SegmentsFailed,
		CharsPerSecond: m.CharsPerSecond,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
	}
	if m.FinalVideo != "" {
		run.FinalVideo = filepath.Join(outDir, m.FinalVideo)
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	segs := make([]store.Segment, 0, len(m.Segments))
	for _, s := range m.Segments {
		rec := store.Segment{
			Index:        s.Index,
			Text:         s.Text,
			CharCount:    s.CharCount,
			AudioSeconds: s.AudioSeconds,
			VideoSeconds: s.VideoSeconds,
			Status:       s.Status,
			Error:        s.Error,
		}
		if s.Plan != nil {
			rec.Strategy = string(s.Plan.Strategy)
		}
		if s.Sync != nil {
			e, ok := s.Sync.Error, s.Sync.OK
			rec.SyncError, rec.SyncOK = &e, &ok
		}
		segs = append(segs, rec)
	}
	return run, segs
}

func notify(ctx context.Context, n ports.Notifier, m types.Manifest, outDir string) error {
	if err := n.SendMarkdown(ctx, Summary(m)); err != nil {
		return err
	}
	if m.FinalVideo == "" {
		return nil
	}
	return n.SendFile(ctx, filepath.Join(outDir, m.FinalVideo))
}

// Summary renders a short markdown report of a run.
func Summary(m types.Manifest) string {
	var b strings.Builder
	title := m.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(m.Input), filepath.Ext(m.Input))
	}
	fmt.Fprintf(&b, "# %s\n", title)
	ok := len(m.Segments) - m.SegmentsFailed
	fmt.Fprintf(&b, "> 片段 <font color=\"info\">%d</font>/%d 成功", ok, len(m.Segments))
	if m.SegmentsFailed > 0 {
		fmt.Fprintf(&b, "，<font color=\"warning\">%d 失败</font>", m.SegmentsFailed)
	}
	b.WriteString("\n\n")
	for _, s := range m.Segments {
		mark := "✅"
		if !s.OK() {
			mark = "❌"
		} else if s.Sync != nil && !s.Sync.OK {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "- %s %s %s\n", mark, s.ID, s.Text)
	}
	return b.String()
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

// buildCacheDir gives every run its own scratch directory, named after the
// run directory, so concurrent renders of one input never share files.
func buildCacheDir(cacheRoot, runOutDir string) string {
	return filepath.Join(cacheRoot, "runs", filepath.Base(runOutDir))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var (
	_ ports.MediaTool      = (*ffmpeg.Adapter)(nil)
	_ ports.ImageGenerator = (*ark.Client)(nil)
	_ ports.VideoGenerator = (*ark.Client)(nil)
	_ ports.Notifier       = (*wecom.Client)(nil)
	_ ports.Synthesizer    = (*tts.OpenAI)(nil)
	_ ports.Synthesizer    = (*tts.HTTP)(nil)
	_ segment.Oracle       = (*llm.Adapter)(nil)
)
