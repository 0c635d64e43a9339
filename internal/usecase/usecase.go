package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/newscast/internal/domain/align"
	"github.com/forPelevin/newscast/internal/domain/segment"
	"github.com/forPelevin/newscast/internal/domain/subtitles"
	"github.com/forPelevin/newscast/internal/metrics"
	"github.com/forPelevin/newscast/internal/ports"
	"github.com/forPelevin/newscast/internal/types"
)

var (
	// ErrNoSegments means the input text produced nothing to narrate.
	ErrNoSegments = errors.New("no segments to render")
	// ErrAllSegmentsFailed means no segment produced a clip.
	ErrAllSegmentsFailed = errors.New("all segments failed")
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 20

	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
)

type Deps struct {
	Media     ports.MediaTool
	TTS       ports.Synthesizer
	Image     ports.ImageGenerator
	Video     ports.VideoGenerator
	Segmenter *segment.Segmenter
	Aligner   align.Aligner
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Segmenter == nil {
		d.Segmenter = segment.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return Usecase{d: d}
}

type Input struct {
	Text      string
	Title     string
	InputPath string

	MaxDuration float64
	MinChars    int
	Buffer      float64
	Tolerance   float64

	Workers   int
	Calibrate bool

	Subtitles      bool
	SubtitleFormat subtitles.Format
	LineWidth      int

	// PromptPrefix is prepended to segment text for image and video prompts.
	PromptPrefix string

	RetryAttempts int
	RetryBackoff  time.Duration

	CacheDir string
	OutDir   string
}

type Result struct {
	Manifest types.Manifest
}

// Run splits the text, renders every segment on a bounded worker pool and
// concatenates the clips that succeeded in segment order. Failed segments
// are recorded in the manifest and skipped. The manifest is returned even
// when Run fails after segmentation.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	started := time.Now().UTC()
	log := u.d.Logger

	seg := u.d.Segmenter
	if in.Calibrate {
		seg = seg.WithRate(u.calibrate(ctx, in, seg.Rate()))
	}

	segs := seg.Split(ctx, in.Text, in.MaxDuration, in.MinChars)
	m := types.Manifest{
		RunID:          uuid.NewString(),
		Title:          in.Title,
		Input:          in.InputPath,
		CharsPerSecond: seg.Rate().PerSecond(),
		CountMode:      seg.Rate().Mode.String(),
		MaxDuration:    in.MaxDuration,
		MinChars:       in.MinChars,
		StartedAt:      started,
	}
	if len(segs) == 0 {
		m.Status = types.RunFailed
		m.FinishedAt = time.Now().UTC()
		return Result{Manifest: m}, ErrNoSegments
	}
	log.Info("text segmented",
		zap.String("run_id", m.RunID),
		zap.Int("segments", len(segs)),
		zap.Float64("chars_per_second", m.CharsPerSecond),
	)

	workers := clampWorkers(in.Workers)
	results := make([]types.ManifestSegment, len(segs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range segs {
		g.Go(func() error {
			results[i] = u.renderSegment(ctx, in, i, s)
			return nil
		})
	}
	_ = g.Wait()

	m.Segments = results
	var clips []string
	var firstErr string
	for _, r := range results {
		if !r.OK() {
			m.SegmentsFailed++
			if firstErr == "" {
				firstErr = fmt.Sprintf("segment %s: %s", r.ID, r.Error)
			}
			continue
		}
		clips = append(clips, filepath.Join(in.OutDir, filepath.FromSlash(r.Clip)))
	}

	if len(clips) == 0 {
		m.Status = types.RunFailed
		m.FinishedAt = time.Now().UTC()
		return Result{Manifest: m}, fmt.Errorf("%w (%d segments): %s", ErrAllSegmentsFailed, len(results), firstErr)
	}

	final := filepath.Join(in.OutDir, "final.mp4")
	if err := u.d.Media.Concat(ctx, clips, final); err != nil {
		m.Status = types.RunFailed
		m.FinishedAt = time.Now().UTC()
		return Result{Manifest: m}, fmt.Errorf("concat: %w", err)
	}
	m.FinalVideo = "final.mp4"
	m.Status = types.RunOK
	if m.SegmentsFailed > 0 {
		m.Status = types.RunPartial
		log.Warn("some segments failed",
			zap.Int("failed", m.SegmentsFailed),
			zap.Int("total", len(results)),
		)
	}
	m.FinishedAt = time.Now().UTC()
	log.Info("final video assembled",
		zap.String("path", final),
		zap.Int("clips", len(clips)),
	)
	return Result{Manifest: m}, nil
}

// calibrate measures the narration voice on a fixed sample. Any failure
// keeps the current rate.
func (u Usecase) calibrate(ctx context.Context, in Input, rate segment.SpeechRate) segment.SpeechRate {
	log := u.d.Logger
	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		log.Warn("calibration skipped", zap.Error(err))
		return rate
	}
	path := filepath.Join(in.CacheDir, "calibration.mp3")
	if err := u.d.TTS.Synthesize(ctx, segment.CalibrationSample, path); err != nil {
		log.Warn("calibration synthesis failed, keeping rate", zap.Error(err))
		return rate
	}
	sec, err := u.measure(ctx, in, path)
	if err != nil {
		log.Warn("calibration measure failed, keeping rate", zap.Error(err))
		return rate
	}
	next := rate.Calibrated(segment.CalibrationSample, sec)
	log.Info("speech rate calibrated",
		zap.Float64("measured_seconds", sec),
		zap.Float64("chars_per_second", next.PerSecond()),
	)
	return next
}

func clampWorkers(n int) int {
	if n <= 0 {
		return DefaultWorkers
	}
	return min(n, MaxWorkers)
}
