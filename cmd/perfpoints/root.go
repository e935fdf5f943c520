package main

import (
	"io"
	"os"

	"github.com/kylerisse/perfpoints/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "perfpoints",
		Short: "Publish PerfPublisher build reports as time-series points",
		Long: `perfpoints reads the PerfPublisher performance report of a CI build and
turns it into summary, metric, test and test_metric points, which are written
to InfluxDB, ClickHouse or a line-protocol file.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides config and LOG_LEVEL)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newPublishCmd(g),
		newRenderCmd(g),
		newShowConfigCmd(g),
		newServeCmd(g),
	)
	return root
}

// load reads the configuration and builds the logger it selects. Logs go
// to stderr so render output on stdout stays clean.
func (g *globalFlags) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	return cfg, newLogger(cfg, os.Stderr), nil
}

// newLogger builds the logger selected by cfg. An unparsable level is
// logged as a warning and replaced by info.
func newLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, ok := cfg.Level()
	logger.SetLevel(level)
	if !ok {
		logger.Warnf("Invalid log level %q, using %s", cfg.LogLevel, level)
		cfg.LogLevel = level.String()
	}
	return logger
}
