package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/internal/utils"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached game identities",
}

// cacheClearCmd implements: emuchievements cache clear [appid]
var cacheClearCmd = &cobra.Command{
	Use:   "clear [appid]",
	Short: "Forget resolved identities, for one application or for all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			if err := a.manager.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
			return nil
		}

		appID, err := utils.ParseAppID(args[0])
		if err != nil {
			return err
		}
		if err := a.manager.ClearCacheForApp(cmd.Context(), appID); err != nil {
			return err
		}
		fmt.Printf("Cache cleared for app %d.\n", appID)
		return nil
	},
}

// cacheListCmd implements: emuchievements cache list
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the cached identity of every application",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		apps, err := a.library.ListApplications(cmd.Context())
		if err != nil {
			return err
		}
		w := newTable("APP ID\tNAME\tGAME ID\tHASH\tOVERRIDE\t")
		for _, app := range apps {
			game, hash, override := "?", "", ""
			if id, ok := a.store.Identity(app.AppID); ok {
				game = formatGameID(id.GameID)
				hash = id.Hash
			}
			if o, ok := a.store.Override(app.AppID); ok {
				override = formatGameID(o.GameID)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", app.AppID, app.Label(), game, hash, override)
		}
		return w.Flush()
	},
}

func formatGameID(id *int) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheListCmd)
}
