package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/newscast/internal/domain/align"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) MediaDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	return parseDuration(string(b))
}

func parseDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if sec <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func (a *Adapter) ApplyPlan(ctx context.Context, in string, plan align.Plan, out string) error {
	args, err := planArgs(in, plan, out)
	if err != nil {
		return err
	}
	return a.run(ctx, "align "+string(plan.Strategy), args)
}

// planArgs builds the ffmpeg arguments for an alignment plan. Audio is
// dropped because the narration is muxed in later.
func planArgs(in string, plan align.Plan, out string) ([]string, error) {
	target := fmtSeconds(plan.TargetDuration)
	args := []string{"-y"}
	switch plan.Strategy {
	case align.Trim:
		args = append(args, "-ss", "0", "-i", in, "-t", target)
	case align.LoopExtend:
		args = append(args, "-stream_loop", strconv.Itoa(plan.Loops-1), "-i", in, "-t", target)
	case align.TimeStretch:
		factor := strconv.FormatFloat(plan.PTSFactor(), 'f', 6, 64)
		args = append(args, "-i", in, "-filter:v", "setpts="+factor+"*PTS", "-t", target)
	default:
		return nil, fmt.Errorf("ffmpeg: unknown alignment strategy %q", plan.Strategy)
	}
	args = append(args,
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		out,
	)
	return args, nil
}

func (a *Adapter) BurnSubtitles(ctx context.Context, in, subtitles, out string) error {
	return a.run(ctx, "burn subtitles", []string{
		"-y",
		"-i", in,
		"-vf", "subtitles=" + escapeFilterPath(subtitles),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-an",
		out,
	})
}

func (a *Adapter) Mux(ctx context.Context, video, audio string, duration time.Duration, out string) error {
	return a.run(ctx, "mux", muxArgs(video, audio, duration, out))
}

func muxArgs(video, audio string, duration time.Duration, out string) []string {
	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
	}
	if duration > 0 {
		args = append(args, "-t", fmtSeconds(duration.Seconds()))
	}
	return append(args, out)
}

func (a *Adapter) Concat(ctx context.Context, parts []string, out string) error {
	if len(parts) == 0 {
		return fmt.Errorf("ffmpeg concat: no inputs")
	}
	list, err := os.CreateTemp(filepath.Dir(out), "concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(list.Name())

	body, err := concatList(parts)
	if err != nil {
		_ = list.Close()
		return err
	}
	if _, err := list.WriteString(body); err != nil {
		_ = list.Close()
		return err
	}
	if err := list.Close(); err != nil {
		return err
	}
	return a.run(ctx, "concat", []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		out,
	})
}

// concatList renders the concat demuxer's input list.
func concatList(parts []string) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String(), nil
}

func (a *Adapter) run(ctx context.Context, what string, args []string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", what, err, string(b))
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}
