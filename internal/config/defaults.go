package config

import (
	"github.com/forPelevin/newscast/internal/domain/align"
	"github.com/forPelevin/newscast/internal/domain/segment"
	"github.com/forPelevin/newscast/internal/domain/subtitles"
	"github.com/forPelevin/newscast/internal/ports/adapters/ark"
	"github.com/forPelevin/newscast/internal/ports/adapters/llm"
)

// DefaultWorkers is the render worker count when none is configured.
const DefaultWorkers = 4

// MaxWorkers caps the render worker pool.
const MaxWorkers = 20

// DefaultPromptPrefix is prepended to segment text for image and video prompts.
const DefaultPromptPrefix = "新闻纪实风格，真实摄影质感，自然光线，画面清晰："

// Default returns a configuration populated with the built-in defaults.
func Default() Config {
	return Config{
		Segment: Segment{
			MaxDuration:    segment.DefaultMaxDuration,
			MinChars:       segment.DefaultMinChars,
			CharsPerSecond: segment.DefaultCharsPerSecond,
			CountMode:      segment.CountLoose.String(),
			UseLLM:         true,
		},
		Align: Align{
			Buffer:    align.DefaultBuffer,
			Tolerance: align.DefaultTolerance,
			MaxLoops:  align.DefaultMaxLoops,
		},
		Pipeline: Pipeline{
			OutDir:         "out",
			CacheDir:       ".cache",
			Workers:        DefaultWorkers,
			Subtitles:      true,
			SubtitleFormat: string(subtitles.FormatASS),
			LineWidth:      subtitles.DefaultLineWidth,
			PromptPrefix:   DefaultPromptPrefix,
			RetryAttempts:  3,
		},
		LLM: LLM{
			BaseURL:        llm.DefaultBaseURL,
			Model:          llm.DefaultModel,
			TimeoutSeconds: 90,
		},
		TTS: TTS{
			Provider:       "openai",
			TimeoutSeconds: 120,
		},
		Ark: Ark{
			BaseURL:             ark.DefaultBaseURL,
			ImageModel:          ark.DefaultImageModel,
			VideoModel:          ark.DefaultVideoModel,
			ImageSize:           ark.DefaultImageSize,
			Resolution:          "720p",
			PollIntervalSeconds: 5,
			PollTimeoutSeconds:  600,
		},
		FFmpeg: FFmpeg{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Store: Store{
			Enabled: true,
			Path:    "~/.local/share/newscast/history.db",
		},
	}
}
