// Package fleet is the caller-facing surface of orion. It ties the session
// registry, telemetry sampler, stream controller, device control commands,
// and the device database together behind one Service.
package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orion-fleet/orion/internal/config"
	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/session"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/stream"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// Prober checks TCP reachability. *sshutil.Prober implements it.
type Prober interface {
	Probe(host string, port int) (bool, error)
}

// Options configures a Service. Store is required; Transport and Prober
// default to the real SSH implementations built from Config.
type Options struct {
	Config    *config.Config
	Store     *storage.Store
	Transport session.Transport
	Prober    Prober
	Logger    logger.Logger
	Clock     func() time.Time
}

// Service owns every long-lived component. Close releases them.
type Service struct {
	cfg       *config.Config
	store     *storage.Store
	transport session.Transport
	prober    Prober
	log       logger.Logger
	clock     func() time.Time

	registry    *session.Registry
	sampler     *telemetry.Sampler
	streams     *stream.Controller
	broadcaster *stream.Broadcaster
	control     *control.Service

	cronMu sync.Mutex
	cron   *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

// New assembles a Service from opts.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.ErrConfig, "fleet: store is required", "")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logger.OrDefault(opts.Logger)

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	transport := opts.Transport
	if transport == nil {
		transport = sshutil.NewAuthenticator(sshutil.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			KnownHostsPath: cfg.KnownHostsPath,
			SSHConfigPath:  cfg.SSHConfigPath,
			Logger:         log,
		})
	}

	prober := opts.Prober
	if prober == nil {
		prober = sshutil.NewProber(cfg.ProbeTimeout)
	}

	registry := session.New(transport, session.Options{
		MonitorInterval: cfg.MonitorInterval,
		Logger:          log,
	})
	sampler := telemetry.NewSampler(registry, telemetry.Options{Logger: log, Clock: clock})

	return &Service{
		cfg:         cfg,
		store:       opts.Store,
		transport:   transport,
		prober:      prober,
		log:         log,
		clock:       clock,
		registry:    registry,
		sampler:     sampler,
		streams:     stream.NewController(sampler, log),
		broadcaster: stream.NewBroadcaster(),
		control:     control.NewService(registry, clock),
	}, nil
}

// Open opens the database named by cfg and builds a Service on it.
func Open(cfg *config.Config, log logger.Logger) (*Service, error) {
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	svc, err := New(Options{Config: cfg, Store: store, Logger: log})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

// Config returns the configuration the Service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Close stops all streams and the retention job, disconnects every session,
// and closes the database. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.streams.StopAll()
		s.broadcaster.Close()
		s.StopRetention()
		s.registry.Close()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// Probe reports whether host:port accepts TCP connections.
func (s *Service) Probe(host string, port int) (bool, error) {
	return s.prober.Probe(host, port)
}

// IsAlive reports whether a session is registered.
func (s *Service) IsAlive(sessionID string) bool {
	return s.registry.IsAlive(sessionID)
}

// ListSessions returns the registered session ids.
func (s *Service) ListSessions() []string {
	return s.registry.List()
}

// Events returns recent lifecycle events for a session.
func (s *Service) Events(sessionID string) []session.Event {
	return s.registry.Events(sessionID)
}

// Run executes cmd on a session.
func (s *Service) Run(ctx context.Context, sessionID, cmd string) (*session.Result, error) {
	return s.registry.Run(ctx, sessionID, cmd)
}

// PowerMode returns the device's nvpmodel mode.
func (s *Service) PowerMode(ctx context.Context, sessionID string) (string, error) {
	return s.control.PowerMode(ctx, sessionID)
}

// SetPowerMode switches the device's nvpmodel mode.
func (s *Service) SetPowerMode(ctx context.Context, sessionID string, mode int) error {
	return s.control.SetPowerMode(ctx, sessionID, mode)
}

// Shutdown schedules a device shutdown.
func (s *Service) Shutdown(ctx context.Context, sessionID string) (string, error) {
	return s.control.Shutdown(ctx, sessionID)
}

// Reboot reboots the device. Its session is expected to die shortly after;
// the monitor evicts it.
func (s *Service) Reboot(ctx context.Context, sessionID string) error {
	return s.control.Reboot(ctx, sessionID)
}
