package types

import (
	"time"

	"github.com/forPelevin/newscast/internal/domain/align"
)

// Segment statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run statuses. A partial run produced a video from a subset of segments.
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// Manifest describes one render run. It is written as manifest.json next to
// the final video.
type Manifest struct {
	RunID          string            `json:"run_id"`
	Title          string            `json:"title,omitempty"`
	Input          string            `json:"input"`
	Status         string            `json:"status"`
	CharsPerSecond float64           `json:"chars_per_second"`
	CountMode      string            `json:"count_mode"`
	MaxDuration    float64           `json:"max_duration"`
	MinChars       int               `json:"min_chars"`
	Segments       []ManifestSegment `json:"segments"`
	SegmentsFailed int               `json:"segments_failed"`
	FinalVideo     string            `json:"final_video,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// ManifestSegment is the outcome for one narration chunk. File paths are
// relative to the run directory.
type ManifestSegment struct {
	Index            int               `json:"index"`
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	CharCount        int               `json:"char_count"`
	EstimatedSeconds float64           `json:"estimated_seconds"`
	Short            bool              `json:"short,omitempty"`
	Oversized        bool              `json:"oversized,omitempty"`
	AudioSeconds     float64           `json:"audio_seconds,omitempty"`
	RequestedSeconds int               `json:"requested_seconds,omitempty"`
	VideoSeconds     float64           `json:"video_seconds,omitempty"`
	Plan             *align.Plan       `json:"plan,omitempty"`
	Sync             *align.SyncReport `json:"sync,omitempty"`
	Status           string            `json:"status"`
	Error            string            `json:"error,omitempty"`

	Audio     string `json:"audio,omitempty"`
	Image     string `json:"image,omitempty"`
	Video     string `json:"video,omitempty"`
	Subtitles string `json:"subtitles,omitempty"`
	Clip      string `json:"clip,omitempty"`
}

// OK reports whether the segment produced a clip.
func (s ManifestSegment) OK() bool { return s.Status == StatusOK }
