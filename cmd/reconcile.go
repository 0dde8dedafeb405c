package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [user-id]",
	Short: "Audit conversation log and vector index consistency",
	Long: `Compare the conversation log against the vector index for one user.

The two stores are written without a joint transaction, so a failed
save can leave an exchange in only one of them. This command reports
any divergence; it never repairs.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	report, err := a.Orchestrator.Reconcile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("auditing stores: %w", err)
	}

	fmt.Printf("user:            %s\n", report.UserID)
	fmt.Printf("logged turns:    %d\n", report.LoggedTurns)
	fmt.Printf("indexed records: %d\n", report.IndexedRecords)
	if report.Consistent() {
		fmt.Println("stores are consistent")
		return nil
	}
	for _, id := range report.MissingFromIndex {
		fmt.Printf("missing from index: %s\n", id)
	}
	for _, id := range report.MissingFromLog {
		fmt.Printf("missing from log:   %s\n", id)
	}
	return nil
}
