package internal

import (
	"context"
	"fmt"

	"github.com/forge-ai/solver/services/solver/internal/pipeline"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/services/solver/internal/screenshot"
	"github.com/forge-ai/solver/shared/events"
	"github.com/forge-ai/solver/shared/mq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// publisher is the part of the broker the relay needs.
type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Service wires the pipeline to its surroundings: the REST API starts runs,
// the relay forwards every run event to the WebSocket hub and the broker,
// and settings changes reach the provider registry.
type Service struct {
	cfg      Config
	registry *provider.Registry
	orch     *pipeline.Orchestrator
	hub      *Hub
	shots    *screenshot.Normalizer
	cache    ResultCache

	broker      publisher
	closeBroker func()

	events  chan events.RunEvent
	updates chan provider.Settings

	// runCtx parents every run; Run replaces it with the service lifetime.
	runCtx context.Context
}

func NewService(ctx context.Context, cfg Config) (*Service, error) {
	registry, err := NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider config: %w", err)
	}
	s := newService(cfg, registry)

	if cfg.AMQPURL != "" {
		broker, err := mq.New(ctx, cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("mq connect: %w", err)
		}
		s.broker = broker
		s.closeBroker = broker.Close
	}
	return s, nil
}

func newService(cfg Config, registry *provider.Registry) *Service {
	evs := make(chan events.RunEvent, 64)
	return &Service{
		cfg:      cfg,
		registry: registry,
		orch:     pipeline.NewOrchestrator(registry, evs),
		hub:      NewHub(),
		shots:    screenshot.New(cfg.MaxImageEdge),
		events:   evs,
		updates:  make(chan provider.Settings),
		runCtx:   context.Background(),
	}
}

func (s *Service) Close() {
	s.orch.Close()
	if s.closeBroker != nil {
		s.closeBroker()
	}
}

// Run starts the hub, the API server, the event relay and the settings
// watchers, and blocks until ctx ends or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	s.runCtx = ctx

	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error { return s.serveAPI(ctx) })
	g.Go(func() error { return s.relay(ctx) })
	g.Go(func() error {
		s.registry.Watch(ctx, s.updates)
		return nil
	})
	if s.cfg.SettingsFile != "" {
		g.Go(func() error { return WatchSettings(ctx, s.cfg.SettingsFile, s.cfg, s.updates) })
	}
	g.Go(func() error {
		<-ctx.Done()
		s.orch.Close()
		return nil
	})

	return g.Wait()
}

// relay is the single listener of the orchestrator's event stream.
func (s *Service) relay(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.forward(ctx, ev)
		}
	}
}

func (s *Service) forward(ctx context.Context, ev events.RunEvent) {
	b, err := events.WrapRun(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Kind).Msg("wrap event")
		return
	}
	s.hub.Broadcast(b)
	if s.broker != nil {
		if err := s.broker.Publish(ctx, ev.Kind, b); err != nil {
			log.Warn().Err(err).Str("event", ev.Kind).Msg("broker publish failed")
		}
	}
	log.Debug().Str("run", ev.RunID).Str("queue", ev.Queue).Str("event", ev.Kind).Msg("event relayed")
}

func (s *Service) startSolve(images []provider.Image, language string) {
	ctx := s.runCtx
	go func() {
		sol, err := s.orch.Solve(ctx, pipeline.SolveRequest{Images: images, Language: language})
		if err != nil {
			return
		}
		s.cache.SetSolution(sol)
	}()
}

func (s *Service) startDebug(req pipeline.DebugRequest) {
	ctx := s.runCtx
	go func() {
		res, err := s.orch.Debug(ctx, req)
		if err != nil {
			return
		}
		s.cache.SetDebug(res)
	}()
}
