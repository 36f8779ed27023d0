// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of one language's server.
type State string

const (
	StateNotStarted   State = "not_started"
	StateStarting     State = "starting"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateDegraded     State = "degraded"
	StateStopped      State = "stopped"
)

// Status is a snapshot of one language's lifecycle.
type Status struct {
	Language string `json:"language"`
	State    State  `json:"state"`
	Reason   string `json:"reason,omitempty"`
	Restarts int    `json:"restarts"`
}

// SupervisorConfig configures the Supervisor.
type SupervisorConfig struct {
	// StartupTimeout bounds spawn plus initialize.
	StartupTimeout time.Duration

	// RequestTimeout bounds each upstream request.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds stopping one server.
	ShutdownTimeout time.Duration

	// MaxRestarts is the number of restart attempts before a language is
	// stopped for good.
	MaxRestarts int

	// RestartBackoff is the initial restart delay.
	RestartBackoff time.Duration

	// MaxConsecutiveTimeouts degrades a server after this many request
	// timeouts in a row. Zero disables the check.
	MaxConsecutiveTimeouts int

	// RequestsPerSecond limits requests per language. Zero is unlimited.
	RequestsPerSecond float64
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfigFrom(config.Default().Supervisor)
}

// SupervisorConfigFrom converts the file configuration.
func SupervisorConfigFrom(c config.SupervisorConfig) SupervisorConfig {
	return SupervisorConfig{
		StartupTimeout:         c.StartupTimeout,
		RequestTimeout:         c.RequestTimeout,
		ShutdownTimeout:        c.ShutdownTimeout,
		MaxRestarts:            c.MaxRestarts,
		RestartBackoff:         c.RestartBackoff,
		MaxConsecutiveTimeouts: c.MaxConsecutiveTimeouts,
		RequestsPerSecond:      c.RequestsPerSecond,
	}
}

// process is the supervisor's record for one language. All fields are
// guarded by Supervisor.mu.
type process struct {
	language string
	config   LanguageConfig
	limiter  *rate.Limiter

	state      State
	reason     string
	backend    Backend
	caps       ServerCapabilities
	generation uint64
	timeouts   int
	restarts   int
	recovering bool
}

// started is the shared outcome of one start attempt.
type started struct {
	backend    Backend
	generation uint64
}

// =============================================================================
// SUPERVISOR
// =============================================================================

// Supervisor owns one language server per language.
//
// Description:
//
//	Servers start lazily on first use. Concurrent first use of a language
//	collapses into a single start attempt whose outcome every caller
//	shares. A server that exits, fails its handshake or times out
//	repeatedly is marked degraded and restarted in the background with
//	exponential backoff; once the restart budget is spent the language is
//	stopped and requests to it fail fast.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Supervisor struct {
	registry *ConfigRegistry
	factory  BackendFactory
	config   SupervisorConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	procs  map[string]*process
	closed bool

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewSupervisor creates a supervisor. No server is started.
//
// Inputs:
//
//	registry - Language table.
//	factory - Builds a fresh Backend per start attempt.
//	config - Timeouts and restart policy.
func NewSupervisor(registry *ConfigRegistry, factory BackendFactory, config SupervisorConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		registry: registry,
		factory:  factory,
		config:   config,
		logger:   slog.Default().With(slog.String("component", "supervisor")),
		ctx:      ctx,
		cancel:   cancel,
		procs:    make(map[string]*process),
	}
}

// Request sends one request to the language's server, starting it if
// needed.
//
// Description:
//
//	The call is bounded by RequestTimeout and by ctx. A timeout fails
//	only this call unless it completes a run of consecutive timeouts,
//	in which case the server is degraded and restarted out of band.
//
// Errors:
//
//	model.ErrUnsupportedLanguage - language is not registered
//	model.ErrProcessUnavailable - server cannot be started, has crashed or is stopped
//	model.ErrUpstreamTimeout - the request timed out
//	model.ErrUpstreamProtocol - the server answered with an error
func (s *Supervisor) Request(ctx context.Context, language, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	ctx, span := startRequestSpan(ctx, language, method)
	defer span.End()

	result, err := s.request(ctx, language, method, params)
	recordRequestMetrics(ctx, language, method, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	}
	return result, err
}

func (s *Supervisor) request(ctx context.Context, language, method string, params any) (json.RawMessage, error) {
	b, p, gen, err := s.acquire(ctx, language)
	if err != nil {
		return nil, err
	}
	if caps, ok := s.Capabilities(language); ok && !caps.Supports(method) {
		return nil, fmt.Errorf("%w: %s server does not provide %s", ErrMethodNotSupported, language, method)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	result, err := b.Request(rctx, method, params)
	s.noteResult(p, gen, err)
	if err != nil {
		var lspErr *LSPError
		if errors.As(err, &lspErr) && lspErr.IsMethodNotFound() {
			return nil, fmt.Errorf("%w: %s: %w", ErrMethodNotSupported, method, err)
		}
		return nil, err
	}
	return result, nil
}

// SyncDocument pushes the current text of absPath to the language's
// server.
func (s *Supervisor) SyncDocument(ctx context.Context, language, absPath string, text []byte) error {
	b, _, _, err := s.acquire(ctx, language)
	if err != nil {
		return err
	}
	return b.SyncDocument(PathToURI(absPath), LanguageIDFor(language, absPath), text)
}

// Capabilities returns what the language's server advertised. False if it
// is not ready.
func (s *Supervisor) Capabilities(language string) (ServerCapabilities, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[language]
	if !ok || p.state != StateReady {
		return ServerCapabilities{}, false
	}
	return p.caps, true
}

// Health reports, for each given language, whether its server is ready.
func (s *Supervisor) Health(languages []string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	health := make(map[string]bool, len(languages))
	for _, l := range languages {
		p, ok := s.procs[l]
		health[l] = ok && p.state == StateReady
	}
	return health
}

// State returns the current state of a language.
func (s *Supervisor) State(language string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[language]; ok {
		return p.state
	}
	return StateNotStarted
}

// Statuses returns a snapshot of every registered language, in
// registration order.
func (s *Supervisor) Statuses() []Status {
	langs := s.registry.Languages()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(langs))
	for _, l := range langs {
		st := Status{Language: l, State: StateNotStarted}
		if p, ok := s.procs[l]; ok {
			st.State, st.Reason, st.Restarts = p.state, p.reason, p.restarts
		}
		out = append(out, st)
	}
	return out
}

// Prestart starts the servers for languages in parallel and waits for
// every attempt to finish. Failures are logged, not returned: the
// languages recover or stop on their own schedule.
func (s *Supervisor) Prestart(ctx context.Context, languages []string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range languages {
		g.Go(func() error {
			if _, _, _, err := s.acquire(gctx, l); err != nil {
				s.logger.Warn("prestart failed",
					slog.String("language", l),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close shuts every server down and stops recovery.
//
// Description:
//
//	After Close every request fails with ErrSupervisorClosed. Servers
//	are shut down in parallel, each bounded by ShutdownTimeout and ctx.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var backends []Backend
	for _, p := range s.procs {
		if p.backend != nil {
			backends = append(backends, p.backend)
			p.backend = nil
		}
		s.setStateLocked(p, StateStopped, "supervisor closed")
	}
	s.mu.Unlock()

	s.cancel()

	var g errgroup.Group
	for _, b := range backends {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
			return b.Shutdown(sctx)
		})
	}
	err := g.Wait()

	s.wg.Wait()
	return err
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// acquire returns a ready backend for language, starting it on first use.
// The generation identifies the backend instance for failure reports.
func (s *Supervisor) acquire(ctx context.Context, language string) (Backend, *process, uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, 0, ErrSupervisorClosed
	}
	p, err := s.processLocked(language)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, 0, err
	}
	switch p.state {
	case StateReady:
		b, gen := p.backend, p.generation
		s.mu.Unlock()
		return b, p, gen, nil
	case StateDegraded, StateStopped:
		err := s.unavailableLocked(p)
		s.mu.Unlock()
		return nil, nil, 0, err
	}
	s.mu.Unlock()

	ch := s.group.DoChan(language, func() (any, error) {
		return s.ensure(p)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, nil, 0, r.Err
		}
		st := r.Val.(started)
		return st.backend, p, st.generation, nil
	case <-ctx.Done():
		return nil, nil, 0, ctx.Err()
	}
}

func (s *Supervisor) processLocked(language string) (*process, error) {
	if p, ok := s.procs[language]; ok {
		return p, nil
	}
	cfg, ok := s.registry.Get(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedLanguage, language)
	}
	p := &process{
		language: language,
		config:   cfg,
		state:    StateNotStarted,
	}
	if s.config.RequestsPerSecond > 0 {
		burst := max(1, int(s.config.RequestsPerSecond))
		p.limiter = rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), burst)
	}
	s.procs[language] = p
	return p, nil
}

func (s *Supervisor) unavailableLocked(p *process) error {
	if s.closed {
		return ErrSupervisorClosed
	}
	return fmt.Errorf("%w: %s server is %s: %s", ErrServerNotRunning, p.language, p.state, p.reason)
}

// ensure runs inside the singleflight group for the first start.
func (s *Supervisor) ensure(p *process) (any, error) {
	s.mu.Lock()
	switch p.state {
	case StateReady:
		st := started{backend: p.backend, generation: p.generation}
		s.mu.Unlock()
		return st, nil
	case StateNotStarted:
	default:
		err := s.unavailableLocked(p)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	st, err := s.launch(p)
	if err != nil {
		s.degrade(p, err.Error())
		return nil, err
	}
	return st, nil
}

// launch performs one start attempt: spawn, handshake, watch.
func (s *Supervisor) launch(p *process) (started, error) {
	s.transition(p, StateStarting, "")

	b, err := s.factory(p.config)
	if err != nil {
		recordServerSpawn(s.ctx, p.language, false)
		return started{}, fmt.Errorf("%w: %s: %w", ErrServerNotRunning, p.language, err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.StartupTimeout)
	defer cancel()

	if err := b.Spawn(ctx); err != nil {
		recordServerSpawn(s.ctx, p.language, false)
		if !errors.Is(err, model.ErrProcessUnavailable) {
			err = fmt.Errorf("%w: %w", ErrServerNotRunning, err)
		}
		return started{}, fmt.Errorf("spawn %s server: %w", p.language, err)
	}
	recordServerSpawn(s.ctx, p.language, true)

	s.transition(p, StateInitializing, "")

	caps, err := b.Initialize(ctx)
	if err != nil {
		s.shutdownBackend(b)
		if !errors.Is(err, model.ErrProcessUnavailable) {
			err = fmt.Errorf("%w: %w", ErrInitializeFailed, err)
		}
		return started{}, fmt.Errorf("initialize %s server: %w", p.language, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.shutdownBackend(b)
		return started{}, ErrSupervisorClosed
	}
	p.backend = b
	p.caps = caps
	p.generation++
	p.timeouts = 0
	gen := p.generation
	s.setStateLocked(p, StateReady, "")
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(p, b, gen)
	return started{backend: b, generation: gen}, nil
}

// watch reports an unexpected exit of one backend instance.
func (s *Supervisor) watch(p *process, b Backend, gen uint64) {
	defer s.wg.Done()
	select {
	case <-b.Exited():
		s.fail(p, gen, "language server exited unexpectedly")
	case <-s.ctx.Done():
	}
}

// noteResult tracks consecutive timeouts for one backend instance.
func (s *Supervisor) noteResult(p *process, gen uint64, err error) {
	s.mu.Lock()
	if p.generation != gen {
		s.mu.Unlock()
		return
	}
	var lspErr *LSPError
	if err == nil || errors.As(err, &lspErr) {
		p.timeouts = 0
	}
	if !errors.Is(err, ErrRequestTimeout) {
		s.mu.Unlock()
		return
	}
	p.timeouts++
	n := p.timeouts
	s.mu.Unlock()

	if s.config.MaxConsecutiveTimeouts > 0 && n >= s.config.MaxConsecutiveTimeouts {
		s.fail(p, gen, fmt.Sprintf("%d consecutive request timeouts", n))
	}
}

// fail degrades a ready backend instance. Reports for older instances
// are ignored.
func (s *Supervisor) fail(p *process, gen uint64, reason string) {
	s.mu.Lock()
	if s.closed || p.generation != gen || p.state != StateReady {
		s.mu.Unlock()
		return
	}
	b := p.backend
	p.backend = nil
	s.setStateLocked(p, StateDegraded, reason)
	s.startRecoveryLocked(p)
	s.wg.Add(1)
	s.mu.Unlock()

	// Pending requests on b fail once its transport is closed.
	go func() {
		defer s.wg.Done()
		s.shutdownBackend(b)
	}()
}

// degrade records a failed start attempt and schedules recovery.
func (s *Supervisor) degrade(p *process, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setStateLocked(p, StateDegraded, reason)
	s.startRecoveryLocked(p)
}

func (s *Supervisor) startRecoveryLocked(p *process) {
	if p.recovering || s.closed {
		return
	}
	p.recovering = true
	s.wg.Add(1)
	go s.recover(p)
}

// recover restarts a degraded language with exponential backoff until it
// is ready or the restart budget is spent.
func (s *Supervisor) recover(p *process) {
	defer s.wg.Done()

	var err error
	if s.config.MaxRestarts > 0 {
		err = s.restart(p)
	} else {
		err = errors.New("restarts disabled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.recovering = false
	if err != nil && !s.closed {
		s.setStateLocked(p, StateStopped, fmt.Sprintf("gave up after %d restarts: %s", p.restarts, p.reason))
	}
}

func (s *Supervisor) restart(p *process) error {
	timer := time.NewTimer(s.config.RestartBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
		return s.ctx.Err()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.RestartBackoff
	policy.MaxInterval = 30 * time.Second

	op := func() (started, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return started{}, backoff.Permanent(ErrSupervisorClosed)
		}
		p.restarts++
		attempt := p.restarts
		s.mu.Unlock()

		recordServerRestart(s.ctx, p.language)
		s.logger.Warn("restarting language server",
			slog.String("language", p.language),
			slog.Int("attempt", attempt),
		)

		v, err, _ := s.group.Do(p.language, func() (any, error) {
			st, err := s.launch(p)
			if err != nil {
				return nil, err
			}
			return st, nil
		})
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.setStateLocked(p, StateDegraded, err.Error())
			}
			s.mu.Unlock()
			return started{}, err
		}
		return v.(started), nil
	}

	_, err := backoff.Retry(s.ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.config.MaxRestarts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("language server restart failed",
				slog.String("language", p.language),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", next),
			)
		}),
	)
	return err
}

func (s *Supervisor) shutdownBackend(b Backend) {
	if b == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		s.logger.Debug("language server shutdown error", slog.String("error", err.Error()))
	}
}

// transition changes a language's state unless the supervisor is closed.
func (s *Supervisor) transition(p *process, state State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setStateLocked(p, state, reason)
}

func (s *Supervisor) setStateLocked(p *process, state State, reason string) {
	if p.state == state && p.reason == reason {
		return
	}
	from := p.state
	p.state = state
	p.reason = reason

	attrs := []any{
		slog.String("language", p.language),
		slog.String("from", string(from)),
		slog.String("to", string(state)),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	switch state {
	case StateDegraded:
		s.logger.Warn("language server degraded", attrs...)
	case StateReady, StateStopped:
		s.logger.Info("language server state changed", attrs...)
	default:
		s.logger.Debug("language server state changed", attrs...)
	}
}

// Languages returns the languages with a process record, sorted.
func (s *Supervisor) Languages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.procs))
	for l := range s.procs {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
