package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simon/ssht/internal/state"
	"github.com/simon/ssht/internal/view"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List running bridges",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.Open()
		if err != nil {
			return fmt.Errorf("failed to open state db: %w", err)
		}
		defer store.Close()

		bridges, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list bridges: %w", err)
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		if quiet {
			for _, b := range bridges {
				fmt.Fprintln(cmd.OutOrStdout(), b.Socket)
			}
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), view.Bridges(bridges, time.Now()))
		return nil
	},
}

func init() {
	listCmd.Flags().BoolP("quiet", "q", false, "Print socket paths only")
	rootCmd.AddCommand(listCmd)
}
