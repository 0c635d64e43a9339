package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/newscast/internal/config"
	"github.com/forPelevin/newscast/internal/pipeline"
)

const renderTimeout = 3 * time.Hour

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <news.txt>",
		Short: "Render a news script into a narrated video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, args[0])
		},
	}
	cmd.Flags().String("out", "", "Output directory (default from config)")
	cmd.Flags().Int("workers", 0, "Segments rendered in parallel (1-20)")
	cmd.Flags().Bool("calibrate", false, "Measure the narration voice before segmenting")
	cmd.Flags().String("subtitle-format", "", "Subtitle format: ass or srt")
	cmd.Flags().Bool("no-subtitles", false, "Do not burn subtitles into clips")
	cmd.Flags().Bool("notify", false, "Post a summary and the final video to WeCom")
	cmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus text format")
	cmd.Flags().String("title", "", "Title used in the manifest and notification")
	return cmd
}

func render(cmd *cobra.Command, input string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := applyRenderFlags(cmd, s); err != nil {
		return err
	}
	logger, err := newLogger(s)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	notify, _ := cmd.Flags().GetBool("notify")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	title, _ := cmd.Flags().GetString("title")

	cfg := pipeline.Config{
		InputPath:   absIn,
		Title:       title,
		Settings:    s,
		MetricsFile: metricsFile,
		Notify:      notify,
		Logger:      logger,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	m, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d segments, %s\n",
		m.Status, len(m.Segments)-m.SegmentsFailed, len(m.Segments), m.FinalVideo)
	return nil
}

// applyRenderFlags overrides settings with flags the user set explicitly.
func applyRenderFlags(cmd *cobra.Command, s *config.Config) error {
	f := cmd.Flags()
	if f.Changed("out") {
		s.Pipeline.OutDir, _ = f.GetString("out")
	}
	if f.Changed("workers") {
		s.Pipeline.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("calibrate") {
		s.Pipeline.Calibrate, _ = f.GetBool("calibrate")
	}
	if f.Changed("subtitle-format") {
		v, _ := f.GetString("subtitle-format")
		s.Pipeline.SubtitleFormat = strings.ToLower(v)
	}
	if off, _ := f.GetBool("no-subtitles"); off {
		s.Pipeline.Subtitles = false
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
