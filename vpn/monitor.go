package vpn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/yllada/vpn-verify/common"
	"github.com/yllada/vpn-verify/config"
)

// Result describes how a monitored OpenVPN run ended.
type Result struct {
	// Connected is true once the completion marker was seen.
	Connected bool
	// LinesRead counts stdout lines consumed up to and including the marker.
	LinesRead int
	// Verified is true if the connected callback ran to completion.
	Verified bool
	// ExitErr is the error returned by waiting on the process, if any.
	ExitErr error
}

// ConnectedFunc is called once the tunnel is up and the settle delay has
// passed.
type ConnectedFunc func(ctx context.Context)

// Monitor launches OpenVPN with a configuration file and watches its
// console output for the completion marker.
type Monitor struct {
	cfg         *config.Config
	logger      common.Logger
	lineHandler func(string)
	onConnected ConnectedFunc

	// Hooks replaced in tests.
	newCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewMonitor creates a monitor for the given configuration.
func NewMonitor(cfg *config.Config) *Monitor {
	return &Monitor{
		cfg:        cfg,
		logger:     common.GetLogger(),
		newCommand: exec.CommandContext,
		sleep:      sleepContext,
	}
}

// SetLogger replaces the logger used for process output and lifecycle events.
func (m *Monitor) SetLogger(logger common.Logger) {
	m.logger = logger
}

// SetLineHandler sets a handler receiving each non-empty output line seen
// before the tunnel is established.
func (m *Monitor) SetLineHandler(handler func(string)) {
	m.lineHandler = handler
}

// SetOnConnected sets the callback run after the completion marker.
func (m *Monitor) SetOnConnected(fn ConnectedFunc) {
	m.onConnected = fn
}

// Run validates the configuration, launches OpenVPN and monitors it until
// it exits or ctx is cancelled. Once the completion marker appears the
// connected callback runs exactly once; OpenVPN is then left running and
// Run returns when it exits.
//
// Configuration problems wrap common.ErrConfiguration and launch failures
// wrap common.ErrProcessLaunch; in both cases nothing is monitored. A
// marker timeout returns common.ErrMarkerTimeout along with the result.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	if err := m.cfg.Validate(); err != nil {
		return Result{}, err
	}

	executable, err := m.cfg.ResolveExecutable()
	if err != nil {
		return Result{}, err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	cmd := m.newCommand(runCtx, executable, "--config", m.cfg.ConfigPath)
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = common.ProcessStopTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrProcessLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrProcessLaunch, err)
	}

	m.logger.Info("Connecting to OpenVPN server using config: %s", m.cfg.ConfigPath)
	m.logger.Debug("Command: %s --config %s", executable, m.cfg.ConfigPath)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", common.ErrProcessLaunch, executable, err)
	}
	m.logger.Info("OpenVPN process started with PID %d", cmd.Process.Pid)

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		m.logStderr(stderr)
	}()

	lines := NewLineReader(stdout)
	result, watchErr := m.watch(ctx, runCtx, stop, lines)

	// Keep reading so OpenVPN never blocks on a full pipe; the lines only
	// matter for the debug log from here on.
	lines.Drain(func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			m.logger.Debug("OpenVPN: %s", line)
		}
	})
	stderrDone.Wait()

	result.ExitErr = cmd.Wait()
	switch {
	case result.ExitErr == nil:
		m.logger.Info("OpenVPN terminated normally")
	case runCtx.Err() != nil:
		m.logger.Info("OpenVPN stopped: %v", result.ExitErr)
	default:
		m.logger.Warn("OpenVPN terminated with error: %v", result.ExitErr)
	}

	return result, watchErr
}

// watch consumes output until the marker, the end of the stream, the marker
// timeout, or cancellation. After the marker it runs the settle delay and
// the connected callback.
func (m *Monitor) watch(ctx, runCtx context.Context, stop context.CancelFunc, lines *LineReader) (Result, error) {
	watchCtx := runCtx
	if m.cfg.MarkerTimeout > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(runCtx, m.cfg.MarkerTimeout)
		defer cancel()
	}

	var result Result
	result.LinesRead, result.Connected = m.Watch(watchCtx, lines)

	if !result.Connected {
		switch {
		case ctx.Err() != nil:
			m.logger.Info("Interrupted before the tunnel was established")
			stop()
		case errors.Is(watchCtx.Err(), context.DeadlineExceeded):
			m.logger.Error("No completion marker after %v, stopping OpenVPN", m.cfg.MarkerTimeout)
			stop()
			return result, fmt.Errorf("%w after %v", common.ErrMarkerTimeout, m.cfg.MarkerTimeout)
		case lines.Err() != nil:
			m.logger.Error("Reading OpenVPN output failed: %v", lines.Err())
		default:
			m.logger.Warn("OpenVPN exited without establishing a connection")
		}
		return result, nil
	}

	m.logger.Info("Successfully connected to the VPN")

	if err := m.sleep(runCtx, m.cfg.SettleDelay); err != nil {
		m.logger.Info("Interrupted during settle delay")
		return result, nil
	}

	result.Verified = m.runConnected(runCtx)
	if result.Verified {
		m.logger.Info("OpenVPN is still running; interrupt to disconnect")
	}
	return result, nil
}

// Watch reads lines until one contains the completion marker. It returns
// the number of lines consumed, including the marker line, and whether the
// marker was found. Non-empty lines before the marker are passed to the
// line handler and logged.
func (m *Monitor) Watch(ctx context.Context, lines *LineReader) (int, bool) {
	consumed := 0
	for {
		line, ok := lines.Next(ctx)
		if !ok {
			return consumed, false
		}
		consumed++

		if strings.Contains(line, common.CompletionMarker) {
			return consumed, true
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m.logger.Debug("OpenVPN: %s", line)
		if m.lineHandler != nil {
			m.lineHandler(line)
		}
	}
}

// runConnected invokes the connected callback, recovering from panics so a
// failing check never takes the monitor down with it.
func (m *Monitor) runConnected(ctx context.Context) (ok bool) {
	if m.onConnected == nil {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Unexpected error during verification: %v", r)
			ok = false
		}
	}()

	m.onConnected(ctx)
	return true
}

func (m *Monitor) logStderr(r io.Reader) {
	lines := NewLineReader(r)
	lines.Drain(func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			m.logger.Warn("OpenVPN stderr: %s", line)
		}
	})
	if err := lines.Err(); err != nil {
		m.logger.Debug("Reading OpenVPN stderr: %v", err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
