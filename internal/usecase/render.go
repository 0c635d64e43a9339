package usecase

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/forPelevin/newscast/internal/domain/align"
	"github.com/forPelevin/newscast/internal/domain/segment"
	"github.com/forPelevin/newscast/internal/domain/subtitles"
	"github.com/forPelevin/newscast/internal/types"
)

// renderSegment turns one segment into a narrated clip. It never returns an
// error: failures are recorded on the returned manifest entry.
func (u Usecase) renderSegment(ctx context.Context, in Input, idx int, s segment.Segment) types.ManifestSegment {
	id := fmt.Sprintf("%03d", idx+1)
	ms := types.ManifestSegment{
		Index:            idx,
		ID:               id,
		Text:             s.Text,
		CharCount:        s.CharCount,
		EstimatedSeconds: s.EstimatedDuration,
		Short:            s.Short,
		Oversized:        s.Oversized,
	}
	log := u.d.Logger.With(zap.String("segment", id))

	if err := u.renderInto(ctx, in, &ms, log); err != nil {
		ms.Status = types.StatusFailed
		ms.Error = err.Error()
		u.d.Metrics.RecordSegment(types.StatusFailed)
		log.Warn("segment failed", zap.Error(err))
		return ms
	}
	ms.Status = types.StatusOK
	u.d.Metrics.RecordSegment(types.StatusOK)
	log.Info("segment rendered",
		zap.Float64("audio_seconds", ms.AudioSeconds),
		zap.String("strategy", string(ms.Plan.Strategy)),
		zap.Float64("sync_error", ms.Sync.Error),
	)
	return ms
}

func (u Usecase) renderInto(ctx context.Context, in Input, ms *types.ManifestSegment, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := filepath.Join("segments", ms.ID)
	dir := filepath.Join(in.OutDir, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := func(name string) string { return filepath.Join(dir, name) }
	relPath := func(name string) string { return filepath.ToSlash(filepath.Join(rel, name)) }

	// narration
	if err := u.stage("tts", func() error {
		return u.d.TTS.Synthesize(ctx, ms.Text, path("audio.mp3"))
	}); err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	ms.Audio = relPath("audio.mp3")
	audio, err := u.measure(ctx, in, path("audio.mp3"))
	if err != nil {
		return fmt.Errorf("measure audio: %w", err)
	}
	ms.AudioSeconds = audio

	// visuals
	prompt := in.PromptPrefix + ms.Text
	if err := u.stage("image", func() error {
		return u.d.Image.GenerateImage(ctx, prompt, path("image.png"))
	}); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	ms.Image = relPath("image.png")

	ms.RequestedSeconds = align.ClipSeconds(audio)
	if err := u.stage("video", func() error {
		return u.d.Video.GenerateVideo(ctx, prompt, path("image.png"), ms.RequestedSeconds, path("raw.mp4"))
	}); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	ms.Video = relPath("raw.mp4")
	video, err := u.measure(ctx, in, path("raw.mp4"))
	if err != nil {
		return fmt.Errorf("measure video: %w", err)
	}
	ms.VideoSeconds = video

	// alignment
	plan, err := u.d.Aligner.Align(video, audio, in.Buffer, in.Tolerance)
	if err != nil {
		return err
	}
	ms.Plan = &plan
	u.d.Metrics.RecordAlignment(string(plan.Strategy))
	log.Debug("alignment planned",
		zap.String("strategy", string(plan.Strategy)),
		zap.Float64("candidate", video),
		zap.Float64("target", plan.TargetDuration),
	)
	if err := u.stage("align", func() error {
		return u.d.Media.ApplyPlan(ctx, path("raw.mp4"), plan, path("aligned.mp4"))
	}); err != nil {
		return fmt.Errorf("align: %w", err)
	}
	picture := path("aligned.mp4")

	if in.Subtitles {
		name := "subtitles" + in.SubtitleFormat.Ext()
		lineWidth := in.LineWidth
		if lineWidth <= 0 {
			lineWidth = subtitles.DefaultLineWidth
		}
		body := subtitles.Render(in.SubtitleFormat, ms.Text, seconds(audio), lineWidth)
		if err := os.WriteFile(path(name), []byte(body), 0o644); err != nil {
			return err
		}
		ms.Subtitles = relPath(name)
		if err := u.stage("subtitles", func() error {
			return u.d.Media.BurnSubtitles(ctx, picture, path(name), path("captioned.mp4"))
		}); err != nil {
			return fmt.Errorf("burn subtitles: %w", err)
		}
		picture = path("captioned.mp4")
	}

	// The picture runs buffer seconds past the narration; the clip ends with it.
	if err := u.stage("mux", func() error {
		return u.d.Media.Mux(ctx, picture, path("audio.mp3"), seconds(audio), path("clip.mp4"))
	}); err != nil {
		return fmt.Errorf("mux: %w", err)
	}
	ms.Clip = relPath("clip.mp4")

	final, err := u.measure(ctx, in, path("clip.mp4"))
	if err != nil {
		return fmt.Errorf("measure clip: %w", err)
	}
	report := align.CheckSync(final, audio, plan.Tolerance)
	ms.Sync = &report
	u.d.Metrics.ObserveSync(report.Error, report.OK)
	if !report.OK {
		log.Warn("sync drift",
			zap.Float64("final", final),
			zap.Float64("audio", audio),
			zap.Float64("error", report.Error),
		)
	}
	return nil
}

func (u Usecase) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	u.d.Metrics.ObserveStage(name, time.Since(start))
	return err
}

// measure reads a media duration in seconds, retrying with exponential backoff.
func (u Usecase) measure(ctx context.Context, in Input, path string) (float64, error) {
	attempts := in.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = in.RetryBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultRetryBackoff
	}

	try := 0
	d, err := backoff.Retry(ctx, func() (time.Duration, error) {
		try++
		if try > 1 {
			u.d.Metrics.RecordDurationRetry()
			u.d.Logger.Debug("duration retry", zap.String("path", path), zap.Int("attempt", try))
		}
		return u.d.Media.MediaDuration(ctx, path)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
