package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forPelevin/newscast/internal/domain/align"
)

func newAlignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Plan how a video clip is fitted to its narration",
		Args:  cobra.NoArgs,
		RunE:  alignDurations,
	}
	cmd.Flags().Float64("candidate", 0, "Video clip duration in seconds")
	cmd.Flags().Float64("reference", 0, "Narration duration in seconds")
	cmd.Flags().Float64("buffer", 0, "Seconds added to the narration (default from config)")
	cmd.Flags().Float64("tolerance", 0, "Allowed drift in seconds (default from config)")
	cmd.Flags().Int("max-loops", 0, "Most repetitions before stretching (default from config)")
	cmd.Flags().Bool("json", false, "Print the plan as JSON")
	_ = cmd.MarkFlagRequired("candidate")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func alignDurations(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	candidate, _ := f.GetFloat64("candidate")
	reference, _ := f.GetFloat64("reference")
	buffer, tolerance, loops := s.Align.Buffer, s.Align.Tolerance, s.Align.MaxLoops
	if f.Changed("buffer") {
		buffer, _ = f.GetFloat64("buffer")
	}
	if f.Changed("tolerance") {
		tolerance, _ = f.GetFloat64("tolerance")
	}
	if f.Changed("max-loops") {
		loops, _ = f.GetInt("max-loops")
	}

	plan, err := align.Aligner{MaxLoops: loops}.Align(candidate, reference, buffer, tolerance)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := f.GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	fmt.Fprintln(out, planTable(plan))
	return nil
}

func planTable(p align.Plan) string {
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	rows := [][]string{
		{"strategy", string(p.Strategy)},
		{"target", num(p.TargetDuration)},
		{"expected", num(p.ExpectedDuration)},
	}
	switch p.Strategy {
	case align.LoopExtend:
		rows = append(rows, []string{"loops", strconv.Itoa(p.Loops)})
	case align.TimeStretch:
		rows = append(rows, []string{"speed", num(p.Speed)}, []string{"setpts", num(p.PTSFactor())})
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
