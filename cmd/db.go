package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
	"github.com/sw33tLie/emuchievements/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the emuchievements database",
}

func resolveDBPath(cmd *cobra.Command) string {
	dbPath, _ := cmd.Parent().PersistentFlags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("storage.dbpath")
	}
	return dbPath
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := resolveDBPath(cmd)

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the stored hash directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := resolveDBPath(cmd)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetHashDirectoryStats(context.Background())
		if err != nil {
			return err
		}

		if stats.Hashes == 0 {
			fmt.Println("No hash directory stored yet. Run 'emuchievements db sync' or 'emuchievements refresh'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "HASHES\tGAMES\tUPDATED\t")
		fmt.Fprintf(w, "%d\t%d\t%s\t\n", stats.Hashes, stats.Games, stats.UpdatedAt.Format("2006-01-02 15:04:05"))
		w.Flush()

		return nil
	},
}

// syncCmd downloads the hash directory and stores it, printing what changed.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the RetroAchievements hash directory into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := storage.Open(resolveDBPath(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		client := retroachievements.NewClient(retroachievements.Config{
			BaseURL: viper.GetString("retroachievements.base_url"),
			Log:     utils.Log,
		})
		hashes, err := client.FetchHashDirectory(cmd.Context())
		if err != nil {
			return err
		}

		changes, err := db.ReplaceHashDirectory(cmd.Context(), hashes)
		if err != nil {
			return err
		}
		fmt.Printf("Stored %d hashes: %d added, %d updated, %d removed.\n", len(hashes), changes.Added, changes.Updated, changes.Removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(syncCmd)
	dbCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: storage.dbpath from the config)")
}
