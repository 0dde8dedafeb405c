package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Pre-load the completion model",
	Long: `Issue a single-token generation so Ollama loads the completion model
into memory before real traffic arrives.`,
	RunE: runWarmup,
}

func init() {
	rootCmd.AddCommand(warmupCmd)
}

func runWarmup(cmd *cobra.Command, _ []string) error {
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

	a.Warmup(ctx)
	fmt.Printf("warmup sent to %s (model %s)\n", a.Config.OllamaHost, a.Config.CompletionModel)
	return nil
}
