package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

// loginCmd implements: emuchievements login --username <u> --api-key <k>
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store RetroAchievements credentials in the settings document",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		apiKey, _ := cmd.Flags().GetString("api-key")
		creds := retroachievements.Credentials{Username: username, APIKey: apiKey}
		if !creds.Valid() {
			return errors.New("both --username and --api-key are required")
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.SetCredentials(cmd.Context(), creds); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s.\n", creds.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringP("username", "u", "", "RetroAchievements username")
	loginCmd.Flags().StringP("api-key", "k", "", "RetroAchievements web API key")
}
