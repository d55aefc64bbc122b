package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/manager"
)

// refreshCmd implements: emuchievements refresh
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Resolve and fetch achievements for every application in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'emuchievements refresh --help'", args[0])
		}

		w := newTable("APP ID\tNAME\tSTATE\tPROGRESS\t")
		var mu sync.Mutex
		onAppDone := func(a library.Application, res manager.Result) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(w, resultLine(a, res))
		}

		a, err := newApp(cmd.Context(), onAppDone)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.manager.RefreshAll(cmd.Context())
		w.Flush()
		if err != nil {
			return err
		}

		st := a.manager.State().Snapshot()
		fmt.Printf("\nProcessed %d/%d applications.\n", st.Processed, st.Total)
		return nil
	},
}

func resultLine(a library.Application, res manager.Result) string {
	progress := "-"
	switch {
	case res.Set != nil && res.Set.Len() > 0:
		p := res.Set.Progress()
		progress = fmt.Sprintf("%d/%d (%.0f%%)", p.Achieved, p.Total, p.Percentage)
	case res.Err != nil:
		progress = manager.ErrorMessage(res.Err)
	}
	return fmt.Sprintf("%d\t%s\t%s\t%s\t", a.AppID, a.Label(), res.State, progress)
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
