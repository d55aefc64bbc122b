package cmd

import (
	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/internal/server"
)

// serveCmd starts the local API a host UI talks to.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local achievements API",
	Long:  `Start a local HTTP server exposing achievements, the loading state, refreshes, cache clearing and overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("username")
		pass, _ := cmd.Flags().GetString("password")
		addr, _ := cmd.Flags().GetString("bind")
		refresh, _ := cmd.Flags().GetBool("refresh")

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if refresh {
			// Failures are reported through the notifier.
			go a.manager.RefreshAll(cmd.Context())
		}

		srv := server.New(a.manager, a.library, user, pass).WithContext(cmd.Context())
		return srv.Start(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("bind", "b", "127.0.0.1:9999", "Address to bind the server to")
	serveCmd.Flags().StringP("username", "u", "", "Username for basic auth (optional)")
	serveCmd.Flags().StringP("password", "p", "", "Password for basic auth (optional)")
	serveCmd.Flags().Bool("refresh", true, "Refresh the whole library on startup")
}
