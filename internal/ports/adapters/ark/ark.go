// Package ark talks to the Volcengine Ark image and video generation API.
package ark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultImageModel = "doubao-seedream-3-0-t2i-250415"
	DefaultVideoModel = "doubao-seedance-1-0-lite-i2v-250428"
	DefaultImageSize  = "1280x720"
)

type Config struct {
	APIKey       string
	BaseURL      string
	ImageModel   string
	VideoModel   string
	ImageSize    string
	Resolution   string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = DefaultVideoModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = DefaultImageSize
	}
	if cfg.Resolution == "" {
		cfg.Resolution = "720p"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 2 * time.Minute},
		logger: logger.With(zap.String("component", "ark")),
	}
}

// GenerateImage renders prompt and downloads the first returned image.
func (c *Client) GenerateImage(ctx context.Context, prompt, outPath string) error {
	body, err := c.post(ctx, "/images/generations", map[string]any{
		"model":           c.cfg.ImageModel,
		"prompt":          prompt,
		"size":            c.cfg.ImageSize,
		"response_format": "url",
		"watermark":       false,
	})
	if err != nil {
		return fmt.Errorf("ark image: %w", err)
	}
	url := gjson.GetBytes(body, "data.0.url").String()
	if url == "" {
		return fmt.Errorf("ark image: no url in response: %s", truncate(string(body), 200))
	}
	return c.download(ctx, url, outPath)
}

// GenerateVideo starts an image-to-video task, waits for it and downloads the clip.
func (c *Client) GenerateVideo(ctx context.Context, prompt, imagePath string, seconds int, outPath string) error {
	content := []map[string]any{
		{"type": "text", "text": fmt.Sprintf("%s --dur %d --rs %s", prompt, seconds, c.cfg.Resolution)},
	}
	if imagePath != "" {
		dataURL, err := imageDataURL(imagePath)
		if err != nil {
			return err
		}
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": dataURL},
		})
	}
	body, err := c.post(ctx, "/contents/generations/tasks", map[string]any{
		"model":   c.cfg.VideoModel,
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("ark video task: %w", err)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return fmt.Errorf("ark video task: no id in response: %s", truncate(string(body), 200))
	}
	c.logger.Info("video task created", zap.String("task_id", id), zap.Int("seconds", seconds))

	url, err := c.waitTask(ctx, id)
	if err != nil {
		return err
	}
	return c.download(ctx, url, outPath)
}

var errTaskPending = errors.New("ark task pending")

func (c *Client) waitTask(ctx context.Context, id string) (string, error) {
	op := func() (string, error) {
		body, err := c.get(ctx, "/contents/generations/tasks/"+id)
		if err != nil {
			return "", err
		}
		res := gjson.ParseBytes(body)
		switch status := res.Get("status").String(); status {
		case "succeeded":
			url := res.Get("content.video_url").String()
			if url == "" {
				return "", backoff.Permanent(fmt.Errorf("ark task %s: succeeded without video_url", id))
			}
			return url, nil
		case "failed", "cancelled":
			return "", backoff.Permanent(fmt.Errorf("ark task %s %s: %s", id, status, res.Get("error.message").String()))
		default:
			c.logger.Debug("video task pending", zap.String("task_id", id), zap.String("status", status))
			return "", errTaskPending
		}
	}
	url, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.PollInterval)),
		backoff.WithMaxElapsedTime(c.cfg.PollTimeout),
	)
	if err != nil {
		return "", fmt.Errorf("ark video task %s: %w", id, err)
	}
	return url, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) download(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", truncate(url, 80), resp.StatusCode)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download: %w", err)
	}
	return f.Close()
}

func imageDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = http.DetectContentType(b)
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
