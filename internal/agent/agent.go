package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/internal/protocol"
	"github.com/mskumargvd/arushi-cloud/internal/transport"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Config holds supervisor settings
type Config struct {
	Identity          models.AgentIdentity
	HeartbeatInterval time.Duration
	RetryInterval     time.Duration
	FlushPause        time.Duration
	BufferCapacity    int
}

// Executor runs one command request to completion
type Executor interface {
	Execute(ctx context.Context, req models.CommandRequest) models.CommandResult
}

// unknownCommand labels command keys the executor does not recognise
const unknownCommand = "unknown"

// Supervisor owns the server connection. It reports telemetry on every
// tick, keeps samples in an OfflineBuffer while the server is unreachable
// and dispatches inbound commands to the Executor.
type Supervisor struct {
	config    Config
	transport transport.Transport
	sampler   Sampler
	executor  Executor
	metrics   *metrics.Metrics
	logger    *slog.Logger

	buffer *OfflineBuffer

	mu        sync.Mutex
	state     models.ConnectionState
	depth     int
	sessions  int
	lastError string

	wg sync.WaitGroup
}

// NewSupervisor creates a supervisor. m may be nil.
func NewSupervisor(config Config, t transport.Transport, sampler Sampler, executor Executor, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 5 * time.Second
	}

	return &Supervisor{
		config:    config,
		transport: t,
		sampler:   sampler,
		executor:  executor,
		metrics:   m,
		logger:    logger,
		buffer:    NewOfflineBuffer(config.BufferCapacity),
		state:     models.StateDisconnected,
	}
}

// State returns the current connection state
func (s *Supervisor) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BufferDepth returns the number of samples waiting for delivery
func (s *Supervisor) BufferDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// LastError returns the most recent connection error, if any
func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Identity returns the identity the supervisor registers with
func (s *Supervisor) Identity() models.AgentIdentity {
	return s.config.Identity
}

// Run drives the connection until ctx is cancelled. In-flight commands
// are waited for before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("Supervisor starting",
		"heartbeat_interval", s.config.HeartbeatInterval,
		"buffer_capacity", s.buffer.Cap())

	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	for ctx.Err() == nil {
		s.setState(models.StateConnecting)

		if err := s.transport.Connect(ctx); err != nil {
			s.setState(models.StateDisconnected)
			s.setLastError(err)
			s.logger.Warn("Connection failed", "error", err, "retry_in", s.config.RetryInterval)
			s.bufferSample(s.sampler.Sample(ctx))
			sleep(ctx, s.config.RetryInterval)
			continue
		}

		s.mu.Lock()
		s.sessions++
		reconnect := s.sessions > 1
		s.mu.Unlock()
		if reconnect {
			s.metrics.IncrementReconnects()
		}
		s.setState(models.StateConnected)

		failed, err := s.session(ctx)
		s.transport.Close()
		s.setState(models.StateDisconnected)

		if ctx.Err() != nil {
			break
		}

		s.setLastError(err)
		s.logger.Warn("Connection lost", "error", err, "retry_in", s.config.RetryInterval)
		if failed == nil {
			sample := s.sampler.Sample(ctx)
			failed = &sample
		}
		s.bufferSample(*failed)
		sleep(ctx, s.config.RetryInterval)
	}

	s.wg.Wait()
	s.logger.Info("Supervisor stopped", "buffered", s.buffer.Len())
	return nil
}

// session registers with the server and reports every tick until an
// emission fails or ctx is cancelled. It returns the sample that could
// not be delivered, if any.
func (s *Supervisor) session(ctx context.Context) (*models.StatSample, error) {
	register, err := protocol.NewRegister(s.config.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Emit(ctx, register); err != nil {
		return nil, err
	}
	s.logger.Info("Registered with server", "platform", s.config.Identity.Platform)

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if failed, err := s.report(ctx); err != nil {
			return failed, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// report runs one reporting cycle: sample, flush the buffer oldest first,
// then send the fresh sample.
func (s *Supervisor) report(ctx context.Context) (*models.StatSample, error) {
	sample := s.sampler.Sample(ctx)

	if err := s.flush(ctx); err != nil {
		return &sample, err
	}

	if err := s.sendHeartbeat(ctx, sample); err != nil {
		return &sample, err
	}
	return nil, nil
}

// flush delivers buffered samples in order. A sample leaves the buffer
// only after it was sent.
func (s *Supervisor) flush(ctx context.Context) error {
	if s.buffer.Len() > 0 {
		s.logger.Info("Flushing offline buffer", "samples", s.buffer.Len())
	}

	for {
		buffered, ok := s.buffer.Front()
		if !ok {
			return nil
		}
		if err := s.sendHeartbeat(ctx, buffered); err != nil {
			return err
		}
		s.buffer.DropFront()
		s.updateDepth()

		if s.config.FlushPause > 0 && !sleep(ctx, s.config.FlushPause) {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) sendHeartbeat(ctx context.Context, sample models.StatSample) error {
	msg, err := protocol.NewHeartbeat(sample)
	if err != nil {
		return err
	}
	if err := s.transport.Emit(ctx, msg); err != nil {
		return err
	}
	s.metrics.IncrementHeartbeats()
	return nil
}

func (s *Supervisor) bufferSample(sample models.StatSample) {
	if s.buffer.Push(sample) {
		s.metrics.IncrementEvictions()
		s.logger.Debug("Offline buffer full, dropped oldest sample")
	}
	s.updateDepth()
}

func (s *Supervisor) updateDepth() {
	n := s.buffer.Len()
	s.mu.Lock()
	s.depth = n
	s.mu.Unlock()
	s.metrics.SetBufferDepth(n)
}

func (s *Supervisor) setState(state models.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.SetConnected(state == models.StateConnected)
}

func (s *Supervisor) setLastError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// dispatchLoop hands each inbound command to its own goroutine so a slow
// command never delays the reporting tick.
func (s *Supervisor) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.transport.Incoming():
			if !ok {
				return
			}
			s.handleMessage(ctx, msg)
		}
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, msg *protocol.Message) {
	switch msg.Event {
	case protocol.EventExecuteCommand:
		req, err := protocol.DecodeCommand(msg)
		if err != nil {
			s.logger.Warn("Failed to decode command", "error", err)
			return
		}
		s.wg.Add(1)
		go s.executeCommand(ctx, req)

	default:
		s.logger.Debug("Ignoring event", "event", msg.Event)
	}
}

// commandLabel keeps the metrics label set bounded. Keys come straight from
// the server, so anything the executor cannot vouch for is folded together.
func (s *Supervisor) commandLabel(command string) string {
	if k, ok := s.executor.(interface{ Knows(string) bool }); ok && k.Knows(command) {
		return command
	}
	return unknownCommand
}

func (s *Supervisor) executeCommand(ctx context.Context, req models.CommandRequest) {
	defer s.wg.Done()

	s.logger.Info("Executing command", "command", req.Command, "id", req.ID)
	start := time.Now()

	result := s.executor.Execute(ctx, req)
	result.CorrelationID = req.ID
	s.metrics.ObserveCommand(s.commandLabel(req.Command), result.Failed())

	if result.Failed() {
		s.logger.Warn("Command failed", "command", req.Command, "id", req.ID,
			"error", result.Error, "duration", time.Since(start))
	} else {
		s.logger.Debug("Command completed", "command", req.Command, "id", req.ID,
			"duration", time.Since(start))
	}

	msg, err := protocol.NewResult(result)
	if err != nil {
		s.logger.Error("Failed to create result message", "id", req.ID, "error", err)
		return
	}
	if err := s.transport.Emit(ctx, msg); err != nil {
		s.logger.Warn("Dropping command result", "id", req.ID, "error", err)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
