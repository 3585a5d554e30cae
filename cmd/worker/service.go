package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

// Dependency is something the worker must reach before it starts consuming.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

// Consumer drains one subscription until its context ends.
type Consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Consumers    map[string]Consumer
}

// Service checks every dependency, then runs all consumers side by side.
// The first consumer to fail stops the others.
type Service struct {
	logg      *logger.Logger
	deps      []Dependency
	consumers map[string]Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Ping == nil {
			return nil, fmt.Errorf("dependency %q has no ping", dep.Name)
		}
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumers: params.Consumers}, nil
}

// ready pings every dependency and reports all that failed.
func (s *Service) ready(ctx context.Context) error {
	var errs error
	for _, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.Name), "dependency ping failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", dep.Name, err))
		}
	}
	return errs
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("worker not ready: %w", err)
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	g, gctx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		g.Go(func() error {
			err := c.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(s.logg.WithField(gctx, "consumer", name), "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s consumer: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
