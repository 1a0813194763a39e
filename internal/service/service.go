package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/niktheblak/ruuvitag-sensor/pkg/discovery"
	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

type Config struct {
	Source discovery.Source
	// Interval between discovery runs
	Interval time.Duration
	// ScanTimeout bounds a single discovery run
	ScanTimeout time.Duration
	Filter      []string
	Registerer  prometheus.Registerer
	Logger      *slog.Logger
}

// Service keeps the latest measurement of every RuuviTag heard by periodic discovery runs.
type Service struct {
	src      discovery.Source
	interval time.Duration
	opts     discovery.Options
	metrics  *metrics
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[ruuvitag.Address]ruuvitag.Measurement
}

// New creates a new instance of the service using the given config
func New(cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 5 * time.Second
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	cfg.Logger.LogAttrs(nil, slog.LevelDebug, "Discovery options", slog.Duration("interval", cfg.Interval), slog.Duration("scan_timeout", cfg.ScanTimeout), slog.Any("filter", cfg.Filter))
	return &Service{
		src:      cfg.Source,
		interval: cfg.Interval,
		opts: discovery.Options{
			Filter:  cfg.Filter,
			Timeout: cfg.ScanTimeout,
			Logger:  cfg.Logger,
		},
		metrics: m,
		logger:  cfg.Logger,
		latest:  make(map[ruuvitag.Address]ruuvitag.Measurement),
	}, nil
}

// Run polls until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "Discovery failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one discovery and merges its measurements into the latest state.
func (s *Service) Poll(ctx context.Context) error {
	res, err := discovery.Discover(ctx, s.src, s.opts)
	if err != nil {
		return err
	}
	for addr, err := range res.Errors {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "Omitting broadcast", slog.String("mac", addr.String()), slog.Any("error", err))
		s.metrics.omitted(addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, m := range res.Measurements {
		s.latest[addr] = m
		s.metrics.observe(addr, m)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "Discovery finished", slog.Int("measurements", len(res.Measurements)), slog.Int("omitted", len(res.Errors)))
	return nil
}

// Current returns the latest measurement of every address heard so far.
func (s *Service) Current(ctx context.Context) (map[ruuvitag.Address]ruuvitag.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	measurements := make(map[ruuvitag.Address]ruuvitag.Measurement, len(s.latest))
	for addr, m := range s.latest {
		measurements[addr] = m
	}
	return measurements, nil
}
