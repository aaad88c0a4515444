package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/memserver"
)

var ctlCmd = &cobra.Command{
	Use:       "ctl [start|stop|status|shutdown]",
	Short:     "Controls monitoring on a running memwatch server",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"start", "stop", "status", "shutdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		client := memserver.NewClientForURL(serverURL)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		switch args[0] {
		case "start":
			return client.StartMonitoring(ctx)
		case "stop":
			return client.StopMonitoring(ctx)
		case "shutdown":
			return client.ShutdownServer(ctx)
		default:
			running, err := client.IsRunning(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "running: %t\n", running)
			return nil
		}
	},
}

func init() {
	ctlCmd.Flags().StringVar(&serverURL, "server",
		environ.GetString("MEMWATCH_SERVER", "http://127.0.0.1:8000"),
		"Base URL of the memwatch server",
	)
}
