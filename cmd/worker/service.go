package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kofabeauty/storefront-backend/internal/notifications"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

const defaultHeartbeat = 30 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

var _ runner = (*notifications.Consumer)(nil)

// Dependency is checked once before any consumer starts.
type Dependency struct {
	Name string
	Conn pinger
}

// Consumer is a named subscription loop.
type Consumer struct {
	Name   string
	Runner runner
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Consumers    []Consumer
	Heartbeat    time.Duration
}

// Service hosts the background consumers fed by the outbox publisher. When one
// consumer stops the rest are cancelled.
type Service struct {
	logg      *logger.Logger
	deps      []Dependency
	consumers []Consumer
	heartbeat time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Conn == nil {
			return nil, fmt.Errorf("%s client is required", dep.Name)
		}
	}
	for _, c := range params.Consumers {
		if c.Runner == nil {
			return nil, fmt.Errorf("%s consumer is required", c.Name)
		}
	}
	heartbeat := params.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Service{
		logg:      params.Logger,
		deps:      params.Dependencies,
		consumers: params.Consumers,
		heartbeat: heartbeat,
	}, nil
}

// ensureReadiness stops at the first unreachable dependency.
func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.Conn.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.Name), "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.Name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx ends or any consumer returns.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for _, c := range s.consumers {
		g.Go(func() error {
			cctx := s.logg.WithField(gctx, "consumer", c.Name)
			err := c.Runner.Run(cctx)
			switch {
			case gctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
				return nil
			case err == nil:
				return fmt.Errorf("%s consumer exited", c.Name)
			default:
				s.logg.Error(cctx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s consumer: %w", c.Name, err)
			}
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.logg.Debug(gctx, "worker.heartbeat")
			}
		}
	})

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}
