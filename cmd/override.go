package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/internal/utils"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manually map applications to RetroAchievements games",
}

// overrideSetCmd implements: emuchievements override set <appid> <gameid|none>
var overrideSetCmd = &cobra.Command{
	Use:   "set <appid> <gameid|none>",
	Short: "Pin an application to a game id, or to no game at all",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, err := utils.ParseAppID(args[0])
		if err != nil {
			return err
		}
		gameID, err := parseGameID(args[1])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.SetOverride(cmd.Context(), appID, gameID); err != nil {
			return err
		}
		fmt.Printf("App %d now maps to game %s.\n", appID, formatGameID(gameID))
		return nil
	},
}

// overrideRemoveCmd implements: emuchievements override remove <appid>
var overrideRemoveCmd = &cobra.Command{
	Use:   "remove <appid>",
	Short: "Go back to hash based detection for an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, err := utils.ParseAppID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.RemoveOverride(cmd.Context(), appID); err != nil {
			return err
		}
		fmt.Printf("Override removed for app %d.\n", appID)
		return nil
	},
}

// parseGameID accepts a positive game id or "none".
func parseGameID(s string) (*int, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid game id %q: expected a positive number or 'none'", s)
	}
	return &id, nil
}

func init() {
	rootCmd.AddCommand(overrideCmd)
	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideRemoveCmd)
}
