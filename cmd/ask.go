package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/concierge-ai/concierge/internal/rag"
)

var askUserID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question as a registered user",
	Long: `Ask a question through the full pipeline: retrieve relevant history,
assemble the context, generate an answer, and store the exchange.

Example:
  concierge ask --user u1 "What should I cook for dinner?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", "", "registered user id (required)")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	question := strings.Join(args, " ")
	answer, err := a.Orchestrator.Answer(ctx, askUserID, question)

	var perr *rag.PersistError
	if errors.As(err, &perr) {
		// The answer was generated; warn but still print it.
		fmt.Fprintf(os.Stderr, "warning: exchange not fully saved to history: %v\n", perr)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer)
	return nil
}
