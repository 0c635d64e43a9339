package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forPelevin/newscast/internal/config"
	"github.com/forPelevin/newscast/internal/ports/adapters/wecom"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <message.md|->",
		Short: "Send a markdown message to the WeCom group robot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendNotification(cmd, args[0])
		},
	}
	cmd.Flags().String("attach", "", "File to upload after the message")
	return cmd
}

func sendNotification(cmd *cobra.Command, input string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if s.WeCom.WebhookKey == "" {
		return fmt.Errorf("config: wecom webhook key is required (set %s)", config.EnvWeComKey)
	}
	attach, _ := cmd.Flags().GetString("attach")
	if attach != "" {
		if _, err := os.Stat(attach); err != nil {
			return fmt.Errorf("stat attachment: %w", err)
		}
	}
	logger, err := newLogger(s)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	body, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if body == "" {
		return errors.New("message is empty")
	}

	client := wecom.New(s.WeCom.WebhookKey, s.WeCom.BaseURL, logger)
	if err := client.SendMarkdown(cmd.Context(), body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if attach != "" {
		if err := client.SendFile(cmd.Context(), attach); err != nil {
			return fmt.Errorf("send attachment: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent")
	return nil
}
