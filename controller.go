/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mtrace

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mtrace/pkg/buffer"
	"github.com/hyperledger-labs/mtrace/pkg/clock"
	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/recorder"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
	"github.com/hyperledger-labs/mtrace/pkg/sampler"
	"github.com/hyperledger-labs/mtrace/pkg/sink"
	"github.com/hyperledger-labs/mtrace/pkg/writer"
)

// session holds everything belonging to one trace, so that tearing tracing
// down is a single pointer swap.
type session struct {
	cfg       Config
	clockKind clock.Kind
	format    encoding.Format

	clocks    *clock.Source
	registry  *registry.Registry
	global    *buffer.Global
	streaming *buffer.Streaming
	recorder  *recorder.Recorder
	sampler   *sampler.Sampler

	// output is nil in live mode, where the transport carries the result.
	output    io.WriteCloser
	transport sink.Transport

	start         time.Time
	startTimeUsec uint64
	overheadNs    uint32
}

// Controller owns the lifecycle of at most one tracing session. Start, Stop,
// Abort and Shutdown serialize on an internal mutex; the query methods and
// ThreadExiting read the current session atomically and may be called from
// any thread at any time.
type Controller struct {
	instrumentation host.Instrumentation
	threads         host.Threads
	logger          logging.Logger

	mutex   sync.Mutex
	current atomic.Value // *session, nil stored as (*session)(nil)
}

// New creates a Controller bound to the environment's instrumentation and
// thread facilities. A nil logger disables logging.
func New(inst host.Instrumentation, threads host.Threads, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NilLogger
	}
	c := &Controller{
		instrumentation: inst,
		threads:         threads,
		logger:          logger,
	}
	c.current.Store((*session)(nil))
	return c
}

func (c *Controller) load() *session {
	return c.current.Load().(*session)
}

// Start begins a tracing session described by cfg. It returns
// ErrAlreadyTracing when a session is in progress and ErrSinkUnavailable when
// the output destination cannot be opened; in either case the tracing state
// is unchanged.
func (c *Controller) Start(cfg Config) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.load() != nil {
		return ErrAlreadyTracing
	}

	if cfg.TraceMode == ModeSampling && cfg.SamplingInterval <= 0 {
		return errors.Errorf("invalid sampling interval %v", cfg.SamplingInterval)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	s := &session{
		cfg:       cfg,
		clockKind: cfg.Flags.ClockKind(),
		start:     time.Now(),
	}
	s.format = encoding.Format{
		ThreadCPU: s.clockKind.UsesThreadCPU(),
		Wall:      s.clockKind.UsesWall(),
	}
	s.startTimeUsec = uint64(s.start.UnixNano() / int64(time.Microsecond))

	if err := c.openOutput(s); err != nil {
		return err
	}

	s.clocks = clock.NewSource(s.clockKind, s.start)
	s.overheadNs = c.measureClockOverhead(s.clockKind)
	s.registry = registry.New()

	switch cfg.OutputMode {
	case OutputStreaming:
		if err := writer.StreamHeader(s.output, s.format, s.startTimeUsec); err != nil {
			s.output.Close()
			return errors.WithMessage(err, "could not write trace header")
		}
		s.streaming = buffer.NewStreaming(s.output, s.format, s.registry, cfg.BufferSize, c.logger)
	default:
		s.global = buffer.NewGlobal(cfg.BufferSize)
		writer.WriteHeader(s.global, s.format, false, s.startTimeUsec)
	}

	s.recorder = recorder.New(s.clocks, s.registry, s.format, s.global, s.streaming, c.logger)

	switch cfg.TraceMode {
	case ModeSampling:
		s.sampler = sampler.New(cfg.SamplingInterval, c.threads, s.recorder, c.logger)
		s.sampler.Start()
	default:
		// Install the listener while no thread can be mid-call, so no
		// thread observes an exit for an entry that was never recorded.
		c.threads.SuspendAll("starting trace")
		c.instrumentation.AddListener(s.recorder)
		c.threads.ResumeAll()
	}

	if cfg.Flags&FlagCountAllocs != 0 {
		c.instrumentation.SetAllocTrackingEnabled(true)
	}

	c.current.Store(s)
	c.logger.Log(logging.LevelInfo, "Tracing started.",
		"mode", cfg.TraceMode.String(), "output", cfg.OutputMode.String(),
		"clock", s.clockKind.String(), "buffer-size", cfg.BufferSize)
	return nil
}

func (c *Controller) openOutput(s *session) error {
	cfg := s.cfg
	if cfg.OutputMode == OutputLive {
		if cfg.Transport == nil {
			return errors.WithMessage(ErrSinkUnavailable, "live output requires a transport")
		}
		s.transport = cfg.Transport
		return nil
	}
	switch {
	case cfg.Output != nil:
		s.output = cfg.Output
	case cfg.Path != "":
		f, err := sink.CreateFile(cfg.Path)
		if err != nil {
			return errors.WithMessagef(ErrSinkUnavailable, "could not create %s: %v", cfg.Path, err)
		}
		s.output = f
	default:
		return errors.WithMessage(ErrSinkUnavailable, "no output configured")
	}
	return nil
}

// measureClockOverhead probes the clocks on some live thread. Without one
// only the wall clock cost can be observed.
func (c *Controller) measureClockOverhead(kind clock.Kind) uint32 {
	var probe host.Thread
	c.threads.ForEach(func(t host.Thread) {
		if probe == nil {
			probe = t
		}
	})
	return uint32(clock.MeasureOverhead(kind, probe).Nanoseconds())
}

// Stop ends the session and delivers the finished trace to the configured
// destination. Without an active session it is a no-op.
func (c *Controller) Stop() error {
	return c.stopTracing(true)
}

// Abort ends the session and discards its data. The output file, if any, is
// closed as-is; trace readers tolerate the truncated result.
func (c *Controller) Abort() error {
	return c.stopTracing(false)
}

// Shutdown ends any active session during environment teardown. Errors are
// logged, never propagated.
func (c *Controller) Shutdown() {
	if err := c.stopTracing(true); err != nil {
		c.logger.Log(logging.LevelError, "Could not finish trace during shutdown.", "err", err)
	}
}

func (c *Controller) stopTracing(finish bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := c.load()
	if s == nil {
		return nil
	}

	// The sampler owns its own thread suspensions, so it must be fully
	// stopped before we suspend everything below.
	if s.sampler != nil {
		s.sampler.Stop()
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.threads.SuspendAll("stopping trace")
	if s.sampler == nil {
		c.instrumentation.RemoveListener(s.recorder)
	}
	if s.streaming != nil && finish {
		keep(errors.WithMessage(s.streaming.FlushAll(), "could not flush thread buffers"))
	}
	// Capture the final name of every live thread for the summary's thread
	// table; threads that exited during the session were captured on exit.
	c.threads.ForEach(func(t host.Thread) {
		s.registry.RecordThreadExit(t.ID(), t.Name())
	})
	c.current.Store((*session)(nil))
	c.threads.ResumeAll()

	if s.cfg.Flags&FlagCountAllocs != 0 {
		c.instrumentation.SetAllocTrackingEnabled(false)
	}

	if finish {
		keep(c.finish(s))
	}
	if s.output != nil {
		keep(errors.WithMessage(s.output.Close(), "could not close trace output"))
	}

	c.logger.Log(logging.LevelInfo, "Tracing stopped.", "finished", finish)
	return firstErr
}

func (c *Controller) finish(s *session) error {
	summary := writer.Summary{
		Format:          s.format,
		Streaming:       s.cfg.OutputMode == OutputStreaming,
		StartTimeUsec:   s.startTimeUsec,
		ElapsedUsec:     uint64(time.Since(s.start).Microseconds()),
		ClockOverheadNs: s.overheadNs,
		CountAllocs:     s.cfg.Flags&FlagCountAllocs != 0,
	}
	if summary.CountAllocs {
		summary.Allocs = c.instrumentation.AllocStats()
	}

	switch s.cfg.OutputMode {
	case OutputStreaming:
		return errors.WithMessage(
			writer.FinishStreaming(s.output, summary, s.registry),
			"could not write trace summary")
	case OutputLive:
		summary.Overflowed = s.global.Overflowed()
		summary.NumRecords = writer.NumRecords(s.global, s.format)
		return errors.WithMessage(
			writer.FinishLive(s.transport, s.global, summary, s.registry),
			"could not publish trace")
	default:
		summary.Overflowed = s.global.Overflowed()
		summary.NumRecords = writer.NumRecords(s.global, s.format)
		return errors.WithMessage(
			writer.FinishBuffered(s.output, s.global, summary, s.registry),
			"could not write trace")
	}
}

// IsTracingEnabled reports whether a session is in progress.
func (c *Controller) IsTracingEnabled() bool {
	return c.load() != nil
}

// Mode returns the active session's trace mode.
func (c *Controller) Mode() (TraceMode, bool) {
	if s := c.load(); s != nil {
		return s.cfg.TraceMode, true
	}
	return 0, false
}

// OutputMode returns the active session's output mode.
func (c *Controller) OutputMode() (OutputMode, bool) {
	if s := c.load(); s != nil {
		return s.cfg.OutputMode, true
	}
	return 0, false
}

// BufferSize returns the active session's buffer size in bytes.
func (c *Controller) BufferSize() (int, bool) {
	if s := c.load(); s != nil {
		return s.cfg.BufferSize, true
	}
	return 0, false
}

// Flags returns the active session's flag set.
func (c *Controller) Flags() (Flags, bool) {
	if s := c.load(); s != nil {
		return s.cfg.Flags, true
	}
	return 0, false
}

// IntervalMs returns the active session's sampling interval in milliseconds,
// or false when the session is not sampling.
func (c *Controller) IntervalMs() (int64, bool) {
	if s := c.load(); s != nil && s.cfg.TraceMode == ModeSampling {
		return s.cfg.SamplingInterval.Milliseconds(), true
	}
	return 0, false
}

// ThreadExiting must be called by the environment when a traced thread is
// about to terminate. It preserves the thread's identity for the summary's
// thread table and, in streaming mode, flushes the thread's buffer while the
// thread can still be named.
func (c *Controller) ThreadExiting(t host.Thread) {
	s := c.load()
	if s == nil {
		return
	}
	s.registry.RecordThreadExit(t.ID(), t.Name())
	if s.streaming != nil {
		if err := s.streaming.FlushThread(t); err != nil {
			c.logger.Log(logging.LevelError, "Could not flush exiting thread.",
				"tid", t.ID(), "err", err)
		}
	}
	s.clocks.ForgetThread(t.ID())
}
