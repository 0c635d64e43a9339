package ports

import (
	"context"
	"time"

	"github.com/forPelevin/newscast/internal/domain/align"
)

// MediaTool measures and edits media files.
type MediaTool interface {
	MediaDuration(ctx context.Context, path string) (time.Duration, error)
	// ApplyPlan writes in, trimmed, looped or stretched per plan, to out.
	ApplyPlan(ctx context.Context, in string, plan align.Plan, out string) error
	BurnSubtitles(ctx context.Context, in, subtitles, out string) error
	// Mux combines video and audio, cutting the result to duration.
	Mux(ctx context.Context, video, audio string, duration time.Duration, out string) error
	Concat(ctx context.Context, parts []string, out string) error
}

// Synthesizer turns narration text into an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

// ImageGenerator renders a still for a prompt and saves it to outPath.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, outPath string) error
}

// VideoGenerator animates a still into a clip of about seconds length.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt, imagePath string, seconds int, outPath string) error
}

// Notifier posts reports to a chat channel.
type Notifier interface {
	SendMarkdown(ctx context.Context, content string) error
	SendFile(ctx context.Context, path string) error
}
