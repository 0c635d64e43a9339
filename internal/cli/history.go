package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/newscast/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent renders",
		Args:  cobra.NoArgs,
		RunE:  listHistory,
	}
	cmd.Flags().Int("limit", 20, "Number of runs to show")
	return cmd
}

func listHistory(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if !s.Store.Enabled {
		return errors.New("config: history is disabled (store.enabled = false)")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := store.Open(cmd.Context(), s.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	fmt.Fprintln(out, historyTable(runs))
	return nil
}

func historyTable(runs []store.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		ok := r.SegmentsTotal - r.SegmentsFailed
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			id,
			r.Status,
			strconv.Itoa(ok) + "/" + strconv.Itoa(r.SegmentsTotal),
			r.Title,
			r.FinalVideo,
		})
	}
	return renderTable(
		[]string{"Started", "ID", "Status", "Segments", "Title", "Video"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
