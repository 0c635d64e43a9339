package wecom

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

func TestFormatMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "今日要闻\n- 一条", want: "今日要闻\n- 一条"},
		{name: "hash title", in: "# AI 日报\n\n正文", want: "## AI 日报\n\n正文"},
		{name: "bracket title", in: "【AI日报】2025-06-01\n正文", want: "## 【AI日报】2025-06-01\n\n正文"},
		{name: "fenced", in: "```markdown\n# 标题\n正文\n```", want: "## 标题\n\n正文"},
		{name: "downgrade h4", in: "#### 小节\n内容", want: "### 小节\n内容"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMarkdown(tt.in))
		})
	}
}

func TestFormatMarkdown_TruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("新", 2000) // 6000 bytes
	got := FormatMarkdown(body)

	require.True(t, strings.HasSuffix(got, truncatedMarker))
	assert.LessOrEqual(t, len(got), MaxMarkdownBytes)
	kept := strings.TrimSuffix(got, truncatedMarker)
	assert.True(t, utf8.ValidString(kept))
	// 4000 bytes less the 33 byte marker leaves room for 1322 three-byte runes.
	assert.Equal(t, 1322, utf8.RuneCountInString(kept))
}

func TestSendMarkdown(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "robot-key", r.URL.Query().Get("key"))
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	c := New("robot-key", srv.URL, zaptest.NewLogger(t))
	require.NoError(t, c.SendMarkdown(context.Background(), "# 标题\n正文"))
	assert.Equal(t, "markdown", gjson.Get(got, "msgtype").String())
	assert.Equal(t, "## 标题\n\n正文", gjson.Get(got, "markdown.content").String())
}

func TestSendMarkdown_ErrcodeIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":93000,"errmsg":"invalid webhook url"}`))
	}))
	defer srv.Close()

	err := New("k", srv.URL, nil).SendMarkdown(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "93000")
}

func TestSendFile_UploadsThenPosts(t *testing.T) {
	var sent string
	var uploaded string
	mux := http.NewServeMux()
	mux.HandleFunc("/upload_media", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "file", r.URL.Query().Get("type"))
		f, hdr, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(f)
		uploaded = hdr.Filename + ":" + string(b)
		_, _ = w.Write([]byte(`{"errcode":0,"media_id":"m-42"}`))
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		sent = string(b)
		_, _ = w.Write([]byte(`{"errcode":0}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))

	require.NoError(t, New("k", srv.URL, zaptest.NewLogger(t)).SendFile(context.Background(), path))
	assert.Equal(t, "final.mp4:video", uploaded)
	assert.Equal(t, "file", gjson.Get(sent, "msgtype").String())
	assert.Equal(t, "m-42", gjson.Get(sent, "file.media_id").String())
}
