package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var killCmd = &cobra.Command{
	Use:   "kill <pid|host>",
	Short: "Stop a running bridge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := findBridge(args[0])
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Printf("Stop bridge %d to %q? [y/N] ", b.PID, b.Destination)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := unix.Kill(b.PID, unix.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop bridge %d: %w", b.PID, err)
		}

		fmt.Printf("Stopped bridge %d (%s)\n", b.PID, b.Host)
		return nil
	},
}

func init() {
	killCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(killCmd)
}
