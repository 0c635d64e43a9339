// Package llm asks an OpenAI-compatible chat model where narration text
// should be cut.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/forPelevin/newscast/internal/domain/segment"
)

const (
	DefaultModel   = "deepseek-chat"
	requestTimeout = 90 * time.Second
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// completer sends one system+user exchange and returns the reply text.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Adapter implements segment.Oracle.
type Adapter struct {
	key     string
	chat    completer
	timeout time.Duration
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(normalizeBaseURL(cfg.BaseURL)+"/"),
		option.WithMaxRetries(1),
	)
	return &Adapter{
		key:     cfg.APIKey,
		chat:    openaiChat{client: client, model: cfg.Model},
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("component", "llm")),
	}
}

type openaiChat struct {
	client openai.Client
	model  string
}

func (c openaiChat) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

const systemPrompt = "你是新闻播报文本的分段助手。只输出 JSON 字符串数组，不要输出其他内容。"

func buildPrompt(text string, hint segment.Hint) string {
	var b strings.Builder
	b.WriteString("请将以下中文文本分割成语义完整的句子，每个句子应尽可能长，但仍保持在合理的播报长度内。\n\n")
	b.WriteString("分割要求：\n")
	b.WriteString("1. 句子必须保持语义完整和连贯性\n")
	b.WriteString("2. 不得增删或改写任何文字，所有句子按顺序拼接后必须与原文完全一致\n")
	b.WriteString("3. 尽量按照自然的语言停顿和语义单元进行分割\n")
	if hint.TargetChars > 0 {
		fmt.Fprintf(&b, "4. 每个句子约 %d 个字符", hint.TargetChars)
		if hint.MaxDuration > 0 {
			fmt.Fprintf(&b, "，播报时长不超过 %.1f 秒", hint.MaxDuration)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n返回格式：[\"句子1\", \"句子2\", ...]\n\n需要分割的文本：\n")
	b.WriteString(text)
	return b.String()
}

// SuggestSegments returns the model's proposed cut. The caller validates it.
func (a *Adapter) SuggestSegments(ctx context.Context, text string, hint segment.Hint) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.chat.complete(ctx, systemPrompt, buildPrompt(text, hint))
	if err != nil {
		return nil, fmt.Errorf("llm request: %s", redactSecrets(err.Error(), a.key))
	}
	out, decoder, err := decode(raw)
	if err != nil {
		a.logger.Warn("unusable segmentation reply", zap.String("reply", truncate(raw, 200)), zap.Error(err))
		return nil, err
	}
	a.logger.Debug("segmentation reply decoded", zap.String("decoder", decoder), zap.Int("segments", len(out)))
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
