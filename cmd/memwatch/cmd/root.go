package cmd

import (
	"fmt"
	"os"
	"strconv"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/voluzi/memwatch/internal/config"
	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/memsource"
	"github.com/voluzi/memwatch/pkg/monitor"
)

var (
	logLevel   string
	logFormat  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "memwatch",
	Short: "Samples memory and GC activity of a Go process",
	Long: `memwatch periodically samples heap, non-heap and garbage collection counters of a
Go process, derives the allocation rate and reports GC events as they happen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLvl, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		log.SetLevel(logLvl)

		switch logFormat {
		case "text":
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		case "json":
			log.SetFormatter(&log.JSONFormatter{})
		default:
			return fmt.Errorf("invalid log format %q", logFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel,
		"log-level",
		environ.GetString("LOG_LEVEL", "info"),
		"Log level. One of debug, info, warn, error, fatal, panic.",
	)
	rootCmd.PersistentFlags().StringVar(&logFormat,
		"log-format",
		environ.GetString("LOG_FORMAT", "text"),
		"Log format. One of text, json.",
	)
	rootCmd.PersistentFlags().StringVar(&configPath,
		"config",
		environ.GetString("MEMWATCH_CONFIG", ""),
		"TOML or YAML config file. Flags and environment take precedence over it.",
	)

	rootCmd.AddCommand(watchCmd, serveCmd, statsCmd, ctlCmd, exportCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setting binds a flag to its config file key and environment variable.
type setting struct {
	flag string
	key  string
	env  string
}

var sourceSettings = []setting{
	{flag: "source", key: "source", env: "MEMWATCH_SOURCE"},
	{flag: "metrics-url", key: "metrics_url", env: "METRICS_URL"},
	{flag: "trace-path", key: "trace_path", env: "TRACE_PATH"},
	{flag: "create-fifo", key: "create_fifo", env: "CREATE_FIFO"},
	{flag: "initial-delay", key: "initial_delay", env: "INITIAL_DELAY"},
	{flag: "period", key: "period", env: "PERIOD"},
	{flag: "grace-period", key: "grace_period", env: "GRACE_PERIOD"},
	{flag: "max-samples", key: "max_samples", env: "MAX_SAMPLES"},
}

func addSourceFlags(flags *pflag.FlagSet) {
	defaults := config.Default()

	flags.String("source",
		environ.GetString("MEMWATCH_SOURCE", string(defaults.Source)),
		"Metric source. One of runtime, prometheus, gctrace, mock.",
	)
	flags.String("metrics-url",
		environ.GetString("METRICS_URL", defaults.MetricsURL),
		"Prometheus endpoint of the target process (prometheus source)",
	)
	flags.String("trace-path",
		environ.GetString("TRACE_PATH", defaults.TracePath),
		"File or fifo receiving GODEBUG=gctrace=1 output (gctrace source)",
	)
	flags.Bool("create-fifo",
		environ.GetBool("CREATE_FIFO", defaults.CreateFifo),
		"Create trace-path as a fifo",
	)
	flags.Duration("initial-delay",
		environ.GetDuration("INITIAL_DELAY", defaults.InitialDelay.Duration),
		"Delay before the first sample",
	)
	flags.Duration("period",
		environ.GetDuration("PERIOD", defaults.Period.Duration),
		"Sampling period",
	)
	flags.Duration("grace-period",
		environ.GetDuration("GRACE_PERIOD", defaults.GracePeriod.Duration),
		"How long stopping waits for a sample in progress",
	)
	flags.Int("max-samples",
		environ.GetInt("MAX_SAMPLES", defaults.MaxSamples),
		"Samples retained for queries and plots",
	)
}

// loadConfig reads the config file and merges every flag that was set
// explicitly or through its environment variable over it.
func loadConfig(cmd *cobra.Command, settings ...setting) (*config.Config, map[string]interface{}, error) {
	overrides := make(map[string]interface{})
	for _, s := range settings {
		f := cmd.Flags().Lookup(s.flag)
		if f == nil {
			continue
		}
		if _, fromEnv := os.LookupEnv(s.env); !f.Changed && !fromEnv {
			continue
		}

		v, err := flagValue(f)
		if err != nil {
			return nil, nil, errors.WrapIfWithDetails(err, "invalid flag value", "flag", s.flag)
		}
		overrides[s.key] = v
	}

	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return nil, nil, err
	}
	return cfg, overrides, nil
}

func flagValue(f *pflag.Flag) (interface{}, error) {
	raw := f.Value.String()
	switch f.Value.Type() {
	case "int":
		return strconv.Atoi(raw)
	case "bool":
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}

// openSource builds the configured metric source. The returned function
// releases it.
func openSource(cfg *config.Config) (monitor.Source, func(), error) {
	src, err := memsource.New(cfg.Source,
		memsource.WithMetricsURL(cfg.MetricsURL),
		memsource.WithTracePath(cfg.TracePath),
		memsource.WithCreateFifo(cfg.CreateFifo),
	)
	if err != nil {
		return nil, nil, err
	}

	release := func() {
		if c, ok := src.(memsource.Closer); ok {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("failed to close metric source")
			}
		}
	}
	return src, release, nil
}
