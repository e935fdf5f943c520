package main

import (
	"errors"

	"github.com/kylerisse/perfpoints/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		listen  string
		workers int
		queue   int
		prefix  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept publish requests over HTTP until interrupted",
		Long: `Runs an HTTP server that CI systems call when a build completes:

  POST /api/publish  {"job": "master", "job_path": "folder/master", "build": 11}
  GET  /api/status
  GET  /healthz`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}

			bf := &buildFlags{prefix: prefix}
			pub, err := bf.newPublisher(cfg, logger)
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

			srv, err := server.New(pub,
				server.WithListenAddr(listen),
				server.WithWorkers(workers),
				server.WithQueueSize(queue),
				server.WithLogger(logger),
			)
			if err != nil {
				_ = pub.Close()
				return err
			}

			runErr := srv.Run(cmd.Context())
			return errors.Join(runErr, pub.Close())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", server.DefaultListenAddr, "HTTP listen address")
	cmd.Flags().IntVar(&workers, "workers", server.DefaultWorkers, "number of publish workers")
	cmd.Flags().IntVar(&queue, "queue", server.DefaultQueueSize, "number of requests that may wait for a worker")
	cmd.Flags().StringVar(&prefix, "prefix", "", "project name prefix (overrides config)")
	return cmd
}
