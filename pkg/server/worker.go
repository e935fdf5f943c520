package server

import (
	"context"
	"time"
)

func (s *Server) startWorkers(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// worker publishes queued builds until the queue is closed. Once ctx is
// canceled, remaining tasks are drained and dropped.
func (s *Server) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.logger.WithField("worker", id)
	log.Debug("Worker started")

	for t := range s.tasks {
		if ctx.Err() != nil {
			log.WithField("build", t.build.String()).Warn("Dropping queued publish request at shutdown")
			s.stats.dropped()
			continue
		}

		start := time.Now()
		res, err := s.pub.Publish(ctx, t.build, t.ts)
		s.stats.record(t.build.String(), res, err)

		entry := log.WithField("build", t.build.String()).WithField("duration", time.Since(start))
		switch {
		case err != nil:
			entry.WithError(err).Error("Publish failed")
		case !res.HasReport:
			entry.Info("No performance report found")
		default:
			entry.Infof("Published %d point(s)", res.Points)
		}
	}
	log.Debug("Worker shutting down...")
}
