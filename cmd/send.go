package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/simon/ssht/internal/ipc"
)

var sendCmd = &cobra.Command{
	Use:   "send <verb> <direction>",
	Short: "Send a command to a running bridge and print the reply",
	Long: `Sends one message to a bridge's socket, e.g.

  ssht send has_pane left
  ssht send --to dev move_pane up

The bridge is picked by --socket, else --to (pid, host or destination), else
the only running bridge.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := strings.Join(args, " ")

		socket, _ := cmd.Flags().GetString("socket")
		if socket == "" {
			to, _ := cmd.Flags().GetString("to")
			b, err := findBridge(to)
			if err != nil {
				return err
			}
			socket = b.Socket
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		reply, err := ipc.Send(cmd.Context(), socket, msg, timeout)
		if err != nil {
			return fmt.Errorf("failed to send: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringP("to", "t", "", "Bridge pid, host or destination")
	sendCmd.Flags().StringP("socket", "s", "", "Socket path, bypassing the registry")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "Round-trip timeout (0 waits forever)")
	rootCmd.AddCommand(sendCmd)
}
