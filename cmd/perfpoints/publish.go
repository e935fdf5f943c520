package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kylerisse/perfpoints/pkg/build"
	"github.com/kylerisse/perfpoints/pkg/config"
	"github.com/kylerisse/perfpoints/pkg/point"
	"github.com/kylerisse/perfpoints/pkg/publisher"
	"github.com/kylerisse/perfpoints/pkg/report"
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// buildFlags select the build to publish.
type buildFlags struct {
	job     string
	jobPath string
	number  int
	prefix  string
	at      string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.job, "job", "", "job name (required)")
	cmd.Flags().StringVar(&f.jobPath, "job-path", "", "hierarchical job path; defaults to the job name")
	cmd.Flags().IntVar(&f.number, "build", 0, "build number (required)")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "project name prefix (overrides config)")
	cmd.Flags().StringVar(&f.at, "time", "", "timestamp of the points, RFC3339; defaults to now")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("build")
}

func (f *buildFlags) build() (build.Build, error) {
	if f.number < 0 {
		return build.Build{}, fmt.Errorf("--build must not be negative, got %d", f.number)
	}
	return build.Build{
		Job:    build.Job{Name: f.job, Path: f.jobPath},
		Number: f.number,
	}, nil
}

func (f *buildFlags) timestamp() (time.Time, error) {
	if f.at == "" {
		return time.Now(), nil
	}
	ts, err := time.Parse(time.RFC3339, f.at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --time: %w", err)
	}
	return ts, nil
}

// newPublisher wires the report lookup selected by cfg into a Publisher
// without sinks.
func (f *buildFlags) newPublisher(cfg *config.Config, logger *logrus.Logger) (*publisher.Publisher, error) {
	if f.prefix != "" {
		cfg.Prefix = f.prefix
	}

	var lookup report.Lookup
	if cfg.UseS3() {
		s3, err := report.NewS3Lookup(cfg.ReportS3Config(), logger)
		if err != nil {
			return nil, err
		}
		lookup = s3
	} else {
		lookup = report.NewDirLookup(cfg.Reports.Dir, logger)
	}

	return &publisher.Publisher{
		Resolver: build.ProjectNames{},
		Lookup:   lookup,
		Prefix:   cfg.Prefix,
		Logger:   logger,
	}, nil
}

func newPublishCmd(g *globalFlags) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a build's performance report to the configured sinks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			b, err := f.build()
			if err != nil {
				return err
			}
			ts, err := f.timestamp()
			if err != nil {
				return err
			}

			pub, err := f.newPublisher(cfg, logger)
			if err != nil {
				return err
			}
			sinks, err := createSinks(newSinkRegistry(logger), cfg.Sinks)
			if err != nil {
				return err
			}
			if len(sinks) == 0 {
				return errors.New("no sinks configured")
			}
			pub.Sinks = sinks

			res, pubErr := pub.Publish(cmd.Context(), b, ts)
			closeErr := pub.Close()
			if err := errors.Join(pubErr, closeErr); err != nil {
				return err
			}

			if res.HasReport {
				logger.WithField("build", b.String()).Infof("Published %d point(s) to %d sink(s)", res.Points, len(sinks))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRenderCmd(g *globalFlags) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print a build's points as line protocol instead of publishing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			b, err := f.build()
			if err != nil {
				return err
			}
			ts, err := f.timestamp()
			if err != nil {
				return err
			}
			precision, err := cfg.PointPrecision()
			if err != nil {
				return err
			}

			pub, err := f.newPublisher(cfg, logger)
			if err != nil {
				return err
			}
			points, ok, err := pub.Generate(cmd.Context(), b, ts)
			if err != nil {
				return err
			}
			if !ok {
				logger.WithField("build", b.String()).Info("No performance report found, nothing to render")
				return nil
			}
			return point.Encode(cmd.OutOrStdout(), points, precision)
		},
	}
	f.register(cmd)
	return cmd
}

func newShowConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Display the effective configuration",
		Long:  `Shows the configuration loaded from the config file, the .env file and environment variables, with secrets masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return fmt.Errorf("failed to show config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cfg.String())

			registry := newSinkRegistry(logger)
			fmt.Fprintf(out, "\nAvailable Sinks:  %s\n", strings.Join(registry.Types(), ", "))
			for i, sc := range cfg.Sinks {
				if !registry.Has(sc.Type) {
					fmt.Fprintf(out, "Warning: sinks[%d] has unknown type %q\n", i, sc.Type)
				}
			}
			return nil
		},
	}
}

// createSinks instantiates every configured sink, closing the ones already
// created if a later one fails.
func createSinks(registry *sink.Registry, configs []config.SinkConfig) ([]sink.Sink, error) {
	sinks := make([]sink.Sink, 0, len(configs))
	for i, sc := range configs {
		s, err := registry.Create(sc.Type, sc.Options)
		if err != nil {
			for _, created := range sinks {
				_ = created.Close()
			}
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
