package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [user-id]",
	Short: "Show a user's stored conversation history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	userID := args[0]
	if _, err := a.Profiles.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	turns, err := a.Log.ListTurns(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("no conversations yet")
		return nil
	}

	for _, t := range turns {
		fmt.Printf("[%s] %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.ID)
		fmt.Printf("  Q: %s\n", t.Query())
		fmt.Printf("  A: %s\n", t.Response())
	}
	return nil
}
