package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/achievements"
)

// getCmd implements: emuchievements get <appid>
var getCmd = &cobra.Command{
	Use:   "get <appid>",
	Short: "Print the achievements of one application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, err := utils.ParseAppID(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		onlyLocked, _ := cmd.Flags().GetBool("locked")

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.manager.FetchAchievementsAsync(cmd.Context(), appID)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		if res.Set == nil || res.Set.Len() == 0 {
			fmt.Printf("No achievements found for app %d.\n", appID)
			return nil
		}
		printSet(res.Set, onlyLocked)
		return nil
	},
}

func printSet(set *achievements.GameAchievementSet, onlyLocked bool) {
	p := set.Progress()
	fmt.Printf("%s (game %d): %d/%d unlocked (%.0f%%)\n\n", set.GameTitle, set.GameID, p.Achieved, p.Total, p.Percentage)

	w := newTable("ID\tNAME\tPOINTS\tUNLOCKED\tGLOBAL\t")
	for _, id := range set.Order {
		r, _ := set.Lookup(id)
		if onlyLocked && r.Achieved {
			continue
		}
		unlocked := "-"
		if r.Achieved && r.UnlockTimestamp > 0 {
			unlocked = time.Unix(r.UnlockTimestamp, 0).UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1f%%\t\n", r.ID, r.DisplayName, r.Points, unlocked, r.GlobalUnlockPercentage)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().Bool("json", false, "Print the raw result as JSON")
	getCmd.Flags().Bool("locked", false, "Only print achievements that are still locked")
}
