// Package wecom posts messages and files to a WeCom group robot webhook.
package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://qyapi.weixin.qq.com/cgi-bin/webhook"

	// MaxMarkdownBytes keeps messages under the robot's 4096 byte markdown limit.
	MaxMarkdownBytes = 4000
	truncatedMarker  = "...\n\n*[内容过长，已截断]*"
)

type Client struct {
	key     string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New returns a client for the robot identified by key. An empty baseURL
// selects DefaultBaseURL.
func New(key, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(zap.String("component", "wecom")),
	}
}

func (c *Client) SendMarkdown(ctx context.Context, content string) error {
	msg := FormatMarkdown(content)
	if msg == "" {
		return fmt.Errorf("wecom: empty message")
	}
	err := c.send(ctx, map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": msg},
	})
	if err != nil {
		return err
	}
	c.logger.Info("markdown sent", zap.Int("bytes", len(msg)))
	return nil
}

// SendFile uploads path as temporary media and posts it as a file message.
func (c *Client) SendFile(ctx context.Context, path string) error {
	mediaID, err := c.upload(ctx, path)
	if err != nil {
		return err
	}
	err = c.send(ctx, map[string]any{
		"msgtype": "file",
		"file":    map[string]string{"media_id": mediaID},
	})
	if err != nil {
		return err
	}
	c.logger.Info("file sent", zap.String("path", path))
	return nil
}

func (c *Client) send(ctx context.Context, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("send", nil), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "send")
	return err
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload_media", url.Values{"type": {"file"}}), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := c.do(req, "upload_media")
	if err != nil {
		return "", err
	}
	id := res.Get("media_id").String()
	if id == "" {
		return "", fmt.Errorf("wecom upload_media: no media_id")
	}
	return id, nil
}

func (c *Client) endpoint(action string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.key)
	return c.baseURL + "/" + action + "?" + q.Encode()
}

func (c *Client) do(req *http.Request, action string) (gjson.Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		// The request URL carries the key.
		return gjson.Result{}, fmt.Errorf("wecom %s: %s", action, strings.ReplaceAll(err.Error(), c.key, "[REDACTED]"))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("wecom %s: status %d", action, resp.StatusCode)
	}
	res := gjson.ParseBytes(body)
	if code := res.Get("errcode").Int(); !res.Get("errcode").Exists() || code != 0 {
		return gjson.Result{}, fmt.Errorf("wecom %s: errcode %d: %s", action, code, res.Get("errmsg").String())
	}
	return res, nil
}

// FormatMarkdown prepares report markdown for the robot: code fences are
// removed, a leading "# title" or 【…】 line becomes a "## title" heading,
// the body is cut to MaxMarkdownBytes and "####" headings are downgraded.
func FormatMarkdown(content string) string {
	content = stripFences(strings.TrimSpace(content))

	title := ""
	body := content
	first, rest, _ := strings.Cut(content, "\n")
	switch {
	case strings.HasPrefix(first, "# "):
		title = strings.TrimSpace(strings.TrimPrefix(first, "# "))
		body = strings.TrimSpace(rest)
	case strings.HasPrefix(first, "【") && strings.Contains(first, "】"):
		title = strings.TrimSpace(first)
		body = strings.TrimSpace(rest)
	}

	body = truncateBytes(body, MaxMarkdownBytes)
	out := body
	if title != "" {
		out = "## " + title + "\n\n" + body
	}
	return strings.ReplaceAll(out, "####", "###")
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "markdown")
	return strings.TrimSpace(s)
}

// truncateBytes cuts s on a rune boundary so that, marker included, it is at
// most n bytes.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := max(n-len(truncatedMarker), 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}
