// Package tts synthesizes narration audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/forPelevin/newscast/internal/ports"
)

const (
	DefaultModel = "tts-1"
	DefaultVoice = "alloy"
)

type Config struct {
	// Provider is "openai" for an OpenAI-compatible /audio/speech endpoint or
	// "http" for a plain JSON TTS service that answers with audio bytes.
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Voice    string
	Speed    float64
	Timeout  time.Duration
}

// New returns the synthesizer for cfg.Provider.
func New(cfg Config) (ports.Synthesizer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("tts: http provider needs base_url")
		}
		return &HTTP{url: cfg.BaseURL, voice: cfg.Voice, client: &http.Client{Timeout: cfg.Timeout}}, nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.Provider)
	}
}

// OpenAI calls an OpenAI-compatible speech endpoint.
type OpenAI struct {
	client openai.Client
	model  string
	voice  string
	speed  float64
}

func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithRequestTimeout(cfg.Timeout)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &OpenAI{client: openai.NewClient(opts...), model: cfg.Model, voice: cfg.Voice, speed: cfg.Speed}
}

func (o *OpenAI) Synthesize(ctx context.Context, text, outPath string) error {
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if o.speed > 0 {
		params.Speed = openai.Float(o.speed)
	}
	resp, err := o.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("tts speech: %w", err)
	}
	defer resp.Body.Close()
	return writeBody(resp.Body, outPath)
}

// HTTP posts {"text","voice_type"} and stores the returned audio.
type HTTP struct {
	url    string
	voice  string
	client *http.Client
}

func (h *HTTP) Synthesize(ctx context.Context, text, outPath string) error {
	body, err := json.Marshal(map[string]string{"text": text, "voice_type": h.voice})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return writeBody(resp.Body, outPath)
}

func writeBody(r io.Reader, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tts returned empty audio")
	}
	return nil
}
