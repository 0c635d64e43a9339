//go:build integration

package itest

import (
	"context"
	"time"

	"github.com/forPelevin/newscast/internal/ports/adapters/ffmpeg"
)

// mediaDurationSeconds measures a rendered file with the same adapter the
// pipeline uses.
func mediaDurationSeconds(path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := ffmpeg.New("ffmpeg", "ffprobe").MediaDuration(ctx, path)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
