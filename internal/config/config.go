package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Segment controls text splitting.
type Segment struct {
	MaxDuration    float64 `toml:"max_duration"`
	MinChars       int     `toml:"min_chars"`
	CharsPerSecond float64 `toml:"chars_per_second"`
	// CountMode is "loose" (every non-space rune) or "strict" (letters and digits only).
	CountMode string `toml:"count_mode"`
	UseLLM    bool   `toml:"use_llm"`
}

// Align controls how clips are fitted to their narration.
type Align struct {
	Buffer    float64 `toml:"buffer"`
	Tolerance float64 `toml:"tolerance"`
	MaxLoops  int     `toml:"max_loops"`
}

// Pipeline controls the render job.
type Pipeline struct {
	OutDir         string `toml:"out_dir"`
	CacheDir       string `toml:"cache_dir"`
	Workers        int    `toml:"workers"`
	Calibrate      bool   `toml:"calibrate"`
	Subtitles      bool   `toml:"subtitles"`
	SubtitleFormat string `toml:"subtitle_format"`
	LineWidth      int    `toml:"line_width"`
	PromptPrefix   string `toml:"prompt_prefix"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// LLM is the OpenAI-compatible chat endpoint used for semantic splitting.
type LLM struct {
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Model          string   `toml:"model"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// TTS selects the speech backend.
type TTS struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Voice          string  `toml:"voice"`
	Speed          float64 `toml:"speed"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Ark is the Volcengine image and video generation service.
type Ark struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	ImageModel          string `toml:"image_model"`
	VideoModel          string `toml:"video_model"`
	ImageSize           string `toml:"image_size"`
	Resolution          string `toml:"resolution"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `toml:"poll_timeout_seconds"`
}

// WeCom is the group robot used for notifications.
type WeCom struct {
	WebhookKey string `toml:"webhook_key"`
	BaseURL    string `toml:"base_url"`
}

type FFmpeg struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Store is the run history database.
type Store struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config holds every setting for newscast.
type Config struct {
	Segment  Segment  `toml:"segment"`
	Align    Align    `toml:"align"`
	Pipeline Pipeline `toml:"pipeline"`
	LLM      LLM      `toml:"llm"`
	TTS      TTS      `toml:"tts"`
	Ark      Ark      `toml:"ark"`
	WeCom    WeCom    `toml:"wecom"`
	FFmpeg   FFmpeg   `toml:"ffmpeg"`
	Logging  Logging  `toml:"logging"`
	Store    Store    `toml:"store"`
}

const projectConfigName = "newscast.toml"

// Load reads path, or newscast.toml in the working directory, or
// ~/.config/newscast/config.toml, whichever is found first. A missing file
// leaves the defaults in place. Secrets from the environment override the
// file. It returns the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	userPath, err := expandPath("~/.config/newscast/config.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(userPath); err == nil && !info.IsDir() {
		return userPath, true, nil
	}
	return userPath, false, nil
}

// Env vars that override secrets from the file.
const (
	EnvLLMAPIKey     = "NEWSCAST_LLM_API_KEY"
	EnvTTSAPIKey     = "NEWSCAST_TTS_API_KEY"
	EnvArkAPIKey     = "NEWSCAST_ARK_API_KEY"
	EnvWeComKey      = "NEWSCAST_WECOM_WEBHOOK_KEY"
	EnvLLMBaseURL    = "NEWSCAST_LLM_BASE_URL"
	EnvLLMModel      = "NEWSCAST_LLM_MODEL"
	EnvLoggingLevel  = "NEWSCAST_LOG_LEVEL"
	EnvLoggingFormat = "NEWSCAST_LOG_FORMAT"
)

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.LLM.APIKey, EnvLLMAPIKey)
	override(&c.TTS.APIKey, EnvTTSAPIKey)
	override(&c.Ark.APIKey, EnvArkAPIKey)
	override(&c.WeCom.WebhookKey, EnvWeComKey)
	override(&c.LLM.BaseURL, EnvLLMBaseURL)
	override(&c.LLM.Model, EnvLLMModel)
	override(&c.Logging.Level, EnvLoggingLevel)
	override(&c.Logging.Format, EnvLoggingFormat)
}

func (c *Config) normalize() error {
	c.Segment.CountMode = strings.ToLower(strings.TrimSpace(c.Segment.CountMode))
	c.Pipeline.SubtitleFormat = strings.ToLower(strings.TrimSpace(c.Pipeline.SubtitleFormat))
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	for _, p := range []*string{&c.Pipeline.OutDir, &c.Pipeline.CacheDir, &c.Store.Path} {
		v, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// LLMTimeout returns the LLM request timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

func (c *Config) ArkPollInterval() time.Duration {
	return time.Duration(c.Ark.PollIntervalSeconds) * time.Second
}

func (c *Config) ArkPollTimeout() time.Duration {
	return time.Duration(c.Ark.PollTimeoutSeconds) * time.Second
}

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
