package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/concierge-ai/concierge/internal/profile"
)

var registerPreferences string

var registerCmd = &cobra.Command{
	Use:   "register [user-id] [name]",
	Short: "Register a user profile",
	Long: `Register a user profile with optional JSON preferences.

Registration is idempotent: re-registering an existing user-id leaves
the stored profile unchanged.

Example:
  concierge register u1 "Bernie" --preferences '{"dietary_requirements":["vegan"],"food_preferences":["Thai cuisine"]}'`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerPreferences, "preferences", "{}", "user preferences as a JSON object")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var prefs map[string]any
	if err := json.Unmarshal([]byte(registerPreferences), &prefs); err != nil {
		return fmt.Errorf("parsing preferences: %w", err)
	}

	a, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	u := profile.User{ID: args[0], Name: args[1], Preferences: prefs}
	if err := a.Profiles.AddUser(ctx, u); err != nil {
		return fmt.Errorf("registering user: %w", err)
	}

	stored, err := a.Profiles.GetUser(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading registered user: %w", err)
	}
	fmt.Printf("registered %s (%s)\n", stored.ID, stored.Name)
	return nil
}
