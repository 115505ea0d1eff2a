package scans

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/application"
)

type statusFunc func(ctx context.Context, jobID string) (int, error)

// waitForCompletion polls status every interval until it reports 100.
// There is no deadline: the engine is trusted to finish, and only ctx ends
// the wait early.
func (s *Service) waitForCompletion(ctx context.Context, jobID string, interval time.Duration, status statusFunc, log *slog.Logger) error {
	for {
		progress, err := status(ctx, jobID)
		if err != nil {
			return err
		}
		log.Debug("progress", "job", jobID, "percent", progress)
		if progress >= 100 {
			return nil
		}
		if err := s.sleeper().Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (s *Service) sleeper() application.Sleeper {
	if s.Sleeper != nil {
		return s.Sleeper
	}
	return application.SystemClock{}
}
