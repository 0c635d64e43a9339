package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/forPelevin/newscast/internal/domain/subtitles"
)

// Validate ensures the configuration is usable. Secrets are checked by the
// commands that need them.
func (c *Config) Validate() error {
	if err := c.validateSegment(); err != nil {
		return err
	}
	if err := c.validateAlign(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSegment() error {
	if !finitePositive(c.Segment.MaxDuration) {
		return errors.New("segment.max_duration must be > 0")
	}
	if c.Segment.MinChars < 0 {
		return errors.New("segment.min_chars must be >= 0")
	}
	if !finitePositive(c.Segment.CharsPerSecond) {
		return errors.New("segment.chars_per_second must be > 0")
	}
	switch c.Segment.CountMode {
	case "", "loose", "strict":
	default:
		return fmt.Errorf("segment.count_mode must be loose or strict, got %q", c.Segment.CountMode)
	}
	return nil
}

func (c *Config) validateAlign() error {
	if c.Align.Buffer < 0 || math.IsNaN(c.Align.Buffer) {
		return errors.New("align.buffer must be >= 0")
	}
	if c.Align.Tolerance < 0 || math.IsNaN(c.Align.Tolerance) {
		return errors.New("align.tolerance must be >= 0")
	}
	if c.Align.MaxLoops < 1 {
		return errors.New("align.max_loops must be >= 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > MaxWorkers {
		return fmt.Errorf("pipeline.workers must be between 1 and %d", MaxWorkers)
	}
	if _, err := subtitles.ParseFormat(c.Pipeline.SubtitleFormat); err != nil {
		return fmt.Errorf("pipeline.subtitle_format: %w", err)
	}
	if c.Pipeline.LineWidth < 4 {
		return errors.New("pipeline.line_width must be >= 4")
	}
	if c.Pipeline.RetryAttempts < 1 {
		return errors.New("pipeline.retry_attempts must be >= 1")
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be > 0")
	}
	switch c.TTS.Provider {
	case "openai":
	case "http":
		if c.TTS.BaseURL == "" {
			return errors.New("tts.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("tts.provider must be openai or http, got %q", c.TTS.Provider)
	}
	if c.Ark.PollIntervalSeconds <= 0 || c.Ark.PollTimeoutSeconds <= 0 {
		return errors.New("ark.poll_interval_seconds and ark.poll_timeout_seconds must be > 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
