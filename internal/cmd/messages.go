package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/output"
)

var (
	messagesChannel   string
	messagesSince     time.Duration
	messagesFailed    bool
	messagesLimit     int
	messagesOlderThan time.Duration
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect the log of messages posted through the server",
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.MessageQuery{
			Channel:    strings.TrimSpace(messagesChannel),
			OnlyFailed: messagesFailed,
			Limit:      messagesLimit,
		}
		if messagesSince > 0 {
			query.Since = time.Now().Add(-messagesSince)
		}

		entries, err := db.ListMessages(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatMessages(entries)
		})
	},
}

var messagesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete logged messages older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if messagesOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.PruneMessages(cmd.Context(), time.Now().Add(-messagesOlderThan))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d message(s)\n", removed)
		return err
	},
}

func init() {
	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesPruneCmd)
	rootCmd.AddCommand(messagesCmd)

	addOutputFlags(messagesListCmd)
	messagesListCmd.Flags().StringVar(&messagesChannel, "channel", "", "only messages posted to this channel id")
	messagesListCmd.Flags().DurationVar(&messagesSince, "since", 0, "only messages newer than this (e.g. 24h)")
	messagesListCmd.Flags().BoolVar(&messagesFailed, "failed", false, "only messages Slack did not accept")
	messagesListCmd.Flags().IntVar(&messagesLimit, "limit", 50, "maximum number of messages")

	messagesPruneCmd.Flags().DurationVar(&messagesOlderThan, "older-than", 0, "age cutoff (e.g. 720h)")
	_ = messagesPruneCmd.MarkFlagRequired("older-than")
}
