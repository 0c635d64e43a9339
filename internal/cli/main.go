package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "newscast",
		Short:        "Turn Chinese news text into a narrated short video",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Config file (default ./newscast.toml or ~/.config/newscast/config.toml)")
	root.PersistentFlags().String("log-level", "", "Log level override: debug, info, warn, error")

	root.AddCommand(
		newRenderCmd(),
		newSegmentCmd(),
		newAlignCmd(),
		newNotifyCmd(),
		newHistoryCmd(),
	)
	return root
}
