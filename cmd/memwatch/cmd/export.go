package cmd

import (
	"context"
	"time"

	"github.com/c2h5oh/datasize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/memwatch/pkg/archive"
	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/memserver"
)

var (
	archiveTarget  string
	exportSince    time.Duration
	bufferSize     string
	reportPeriod   time.Duration
	concurrentJobs int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archives samples of a running server",
	Long: `Archives the samples and GC events retained by a memwatch server as compressed
JSON, to a local directory or to a gs://bucket/prefix location.`,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <name>",
	Short: "Uploads the retained samples as <name>.json.gz",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := datasize.ParseString(bufferSize)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		client := memserver.NewClientForURL(serverURL)
		samples, err := client.GetSamples(ctx, exportSince)
		if err != nil {
			return err
		}
		events, err := client.GetEvents(ctx)
		if err != nil {
			return err
		}

		store, err := archive.FromTarget(ctx, archiveTarget)
		if err != nil {
			return err
		}
		defer store.Close()

		start := time.Now()
		_, err = archive.Export(ctx, store, args[0], &archive.Dump{
			Source:  serverURL,
			Samples: samples,
			Events:  events,
		},
			archive.WithBufferSize(size),
			archive.WithReportPeriod(reportPeriod),
		)
		if err != nil {
			return err
		}
		log.WithField("time-elapsed", time.Since(start)).Info("export successful")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <prefix>",
	Short: "Deletes archived dumps whose name starts with <prefix>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := archive.FromTarget(cmd.Context(), archiveTarget)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := archive.Delete(cmd.Context(), store, args[0], archive.WithConcurrentJobs(concurrentJobs))
		if err != nil {
			return err
		}
		log.WithField("deleted", n).Info("delete successful")
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&archiveTarget, "to",
		environ.GetString("ARCHIVE_TARGET", "dumps"),
		"Local directory or gs://bucket/prefix receiving the dumps",
	)
	uploadCmd.Flags().StringVar(&serverURL, "server",
		environ.GetString("MEMWATCH_SERVER", "http://127.0.0.1:8000"),
		"Base URL of the memwatch server",
	)
	uploadCmd.Flags().DurationVar(&exportSince, "since",
		environ.GetDuration("EXPORT_SINCE", 0),
		"Only export samples taken within this window. Everything retained when zero.",
	)
	uploadCmd.Flags().StringVar(&bufferSize, "buffer-size",
		environ.GetString("BUFFER_SIZE", archive.DefaultBufferSize),
		"Buffer size on upload",
	)
	uploadCmd.Flags().DurationVar(&reportPeriod, "report-period",
		environ.GetDuration("REPORT_PERIOD", archive.DefaultReportPeriod),
		"Period for progress reporting",
	)
	deleteCmd.Flags().IntVar(&concurrentJobs, "concurrent-jobs",
		environ.GetInt("CONCURRENT_JOBS", archive.DefaultConcurrentJobs),
		"Number of concurrent jobs",
	)

	exportCmd.AddCommand(uploadCmd, deleteCmd)
}
