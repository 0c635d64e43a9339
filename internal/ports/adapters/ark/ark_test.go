package ark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	return New(Config{
		APIKey:       "ark-key",
		BaseURL:      srv.URL + "/api/v3/",
		PollInterval: time.Millisecond,
		PollTimeout:  5 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestGenerateImage(t *testing.T) {
	var req map[string]any
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/v3/images/generations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ark-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"data":[{"url":"` + srv.URL + `/files/cover.png"}]}`))
	})
	mux.HandleFunc("/files/cover.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, newTestClient(t, srv).GenerateImage(context.Background(), "新闻画面", out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))
	assert.Equal(t, DefaultImageModel, req["model"])
	assert.Equal(t, "新闻画面", req["prompt"])
	assert.Equal(t, DefaultImageSize, req["size"])
}

func TestGenerateImage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"prompt rejected"}}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv).GenerateImage(context.Background(), "x", filepath.Join(t.TempDir(), "a.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt rejected")
}

func TestGenerateVideo_PollsUntilSucceeded(t *testing.T) {
	var created map[string]any
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/v3/contents/generations/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_, _ = w.Write([]byte(`{"id":"cgt-1"}`))
	})
	mux.HandleFunc("/api/v3/contents/generations/tasks/cgt-1", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"id":"cgt-1","status":"running"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cgt-1","status":"succeeded","content":{"video_url":"` + srv.URL + `/files/clip.mp4"}}`))
	})
	mux.HandleFunc("/files/clip.mp4", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mp4-bytes"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	img := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o644))
	out := filepath.Join(dir, "clip.mp4")

	require.NoError(t, newTestClient(t, srv).GenerateVideo(context.Background(), "城市夜景", img, 6, out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(b))
	assert.EqualValues(t, 3, polls.Load())

	content, ok := created["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 2)
	text := content[0].(map[string]any)["text"].(string)
	assert.Equal(t, "城市夜景 --dur 6 --rs 720p", text)
	imageURL := content[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"))
}

func TestGenerateVideo_FailedTaskStopsPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/contents/generations/tasks", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cgt-2"}`))
	})
	mux.HandleFunc("/api/v3/contents/generations/tasks/cgt-2", func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`{"status":"failed","error":{"message":"content policy"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	err := newTestClient(t, srv).GenerateVideo(context.Background(), "x", "", 5, filepath.Join(t.TempDir(), "v.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content policy")
	assert.EqualValues(t, 1, polls.Load())
}
