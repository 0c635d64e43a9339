package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/newscast/internal/domain/segment"
	"github.com/forPelevin/newscast/internal/pipeline"
	"github.com/forPelevin/newscast/internal/ports/adapters/llm"
)

func newSegmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <news.txt|->",
		Short: "Split a news script into narration segments without rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return segmentText(cmd, args[0])
		},
	}
	cmd.Flags().Float64("max-duration", 0, "Maximum seconds of narration per segment")
	cmd.Flags().Int("min-chars", 0, "Minimum counted characters per segment")
	cmd.Flags().Bool("no-llm", false, "Use punctuation rules only")
	cmd.Flags().Bool("json", false, "Print segments as JSON")
	return cmd
}

func segmentText(cmd *cobra.Command, input string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("max-duration") {
		s.Segment.MaxDuration, _ = f.GetFloat64("max-duration")
	}
	if f.Changed("min-chars") {
		s.Segment.MinChars, _ = f.GetInt("min-chars")
	}
	if off, _ := f.GetBool("no-llm"); off {
		s.Segment.UseLLM = false
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s.Segment.UseLLM && s.LLM.APIKey != "" {
		if err := llm.ValidateBaseURL(s.LLM.BaseURL, s.LLM.AllowedHosts); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	logger, err := newLogger(s)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	text, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	seg := pipeline.NewSegmenter(s, nil, logger)
	segs := seg.Split(cmd.Context(), text, s.Segment.MaxDuration, s.Segment.MinChars)

	out := cmd.OutOrStdout()
	if asJSON, _ := f.GetBool("json"); asJSON {
		if segs == nil {
			segs = []segment.Segment{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(segs)
	}
	fmt.Fprintln(out, segmentTable(segs))
	return nil
}

func segmentTable(segs []segment.Segment) string {
	rows := make([][]string, 0, len(segs))
	for i, s := range segs {
		var flags []string
		if s.Short {
			flags = append(flags, "short")
		}
		if s.Oversized {
			flags = append(flags, "oversized")
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(s.CharCount),
			strconv.FormatFloat(s.EstimatedDuration, 'f', 1, 64),
			strings.Join(flags, ","),
			s.Text,
		})
	}
	return renderTable(
		[]string{"#", "Chars", "Seconds", "Flags", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}
