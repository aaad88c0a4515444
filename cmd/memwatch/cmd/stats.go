package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/memserver"
	"github.com/voluzi/memwatch/pkg/utils"
)

var (
	serverURL string
	average   time.Duration
	since     time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Queries a running memwatch server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := memserver.NewClientForURL(serverURL)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		return printStats(ctx, cmd, client)
	},
}

func init() {
	statsCmd.Flags().StringVar(&serverURL, "server",
		environ.GetString("MEMWATCH_SERVER", "http://127.0.0.1:8000"),
		"Base URL of the memwatch server",
	)
	statsCmd.Flags().DurationVar(&average, "average",
		environ.GetDuration("AVERAGE", 0),
		"Average heap and allocation rate over this window. Latest values when zero.",
	)
	statsCmd.Flags().DurationVar(&since, "since",
		environ.GetDuration("SINCE", 5*time.Minute),
		"Window for GC activity",
	)
}

func printStats(ctx context.Context, cmd *cobra.Command, client *memserver.Client) error {
	out := cmd.OutOrStdout()

	latest, err := client.GetLatest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Fprintln(out, "no samples yet")
		return nil
	}
	fmt.Fprintln(out, latest.String())

	heap, err := client.GetHeapStats(ctx, average)
	if err != nil {
		return err
	}
	rate, err := client.GetAllocationRate(ctx, average)
	if err != nil {
		return err
	}
	gc, err := client.GetGCActivity(ctx, since)
	if err != nil {
		return err
	}

	label := "latest"
	if average > 0 {
		label = "avg " + average.String()
	}
	fmt.Fprintf(out, "heap (%s): %s\n", label, utils.FormatSize(heap))
	fmt.Fprintf(out, "allocation rate (%s): %.2f MB/s\n", label, rate)
	fmt.Fprintf(out, "gc (last %s): %d cycles, %dms paused\n", since, gc.Cycles, gc.PauseMillis)
	return nil
}
