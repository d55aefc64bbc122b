package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/pkg/identity"
)

// hashCmd implements: emuchievements hash <launch command or rom path>
var hashCmd = &cobra.Command{
	Use:   "hash <launch command>",
	Short: "Extract the ROM path from a launch command and print its hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := identity.ExtractROMPath(args[0])
		if path == "" {
			return fmt.Errorf("no ROM path found in %q", args[0])
		}
		hash, err := newHasher().Hash(cmd.Context(), path)
		if err != nil {
			return err
		}
		if hash == "" {
			fmt.Printf("%s: unsupported format\n", path)
			return nil
		}
		fmt.Printf("%s  %s\n", hash, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
