package extractor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/pkg/logger"
)

const (
	defaultFrameTimeout = 5 * time.Second
	defaultStopGrace    = 2 * time.Second
)

// Option configures a Process.
type Option func(*Process)

// WithFrameTimeout bounds the write and read of one frame.
func WithFrameTimeout(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithStopGrace sets how long Close waits after closing stdin before killing.
func WithStopGrace(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithEnv appends environment variables to the model process.
func WithEnv(env ...string) Option {
	return func(p *Process) { p.env = append(p.env, env...) }
}

// WithLogger sets the logger used for lifecycle events and model stderr.
func WithLogger(l logger.Logger) Option {
	return func(p *Process) {
		if l != nil {
			p.log = l
		}
	}
}

// Process is a landmark.Extractor backed by a long-lived model process. One
// frame is in flight at a time. A timed out or dead process is replaced on the
// next call.
type Process struct {
	kind    landmark.Kind
	command string
	args    []string
	env     []string
	timeout time.Duration
	grace   time.Duration
	log     logger.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	conn     *Conn
	exited   chan struct{}
	starts   int
	isClosed bool
}

// NewProcess returns a Process for kind running command, split on spaces.
// The process starts lazily on the first frame.
func NewProcess(kind landmark.Kind, command string, opts ...Option) (*Process, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCommand, kind)
	}
	p := &Process{
		kind:    kind,
		command: fields[0],
		args:    fields[1:],
		timeout: defaultFrameTimeout,
		grace:   defaultStopGrace,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named(string(kind))
	return p, nil
}

// Kind returns the landmark kind this process produces.
func (p *Process) Kind() landmark.Kind { return p.kind }

// Starts returns how many times the model process was spawned.
func (p *Process) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

// Extract sends one frame to the model and decodes its landmarks.
func (p *Process) Extract(ctx context.Context, frame model.FrameSample) (landmark.Record, error) {
	const op = "extractor.extract"
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return landmark.Record{}, model.WrapKind(op, model.ErrFatal, ErrClosed)
	}
	if err := p.ensure(); err != nil {
		return landmark.Record{}, err
	}

	resp, err := p.conn.RoundTrip(ctx, NewRequest(p.kind, frame))
	if err != nil {
		if p.dead() {
			p.log.Warn(ctx, "model process exited", logger.Int("frame", frame.FrameNumber), logger.Error(err))
		}
		return landmark.Record{}, err
	}
	return resp.Record()
}

// Close terminates the model process.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isClosed = true
	p.stop()
	return nil
}

func (p *Process) dead() bool {
	if p.exited == nil {
		return true
	}
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *Process) ensure() error {
	if p.conn != nil && p.conn.Broken() == nil && !p.dead() {
		return nil
	}
	p.stop()
	return p.start()
}

func (p *Process) start() error {
	const op = "extractor.start"
	cmd := exec.Command(p.command, p.args...) //nolint:gosec // operator supplied model command
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return model.WrapKind(op, model.ErrTransient, fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.WrapKind(op, model.ErrTransient, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.WrapKind(op, model.ErrTransient, fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return model.WrapKind(op, model.ErrFatal, err)
		}
		return model.WrapKind(op, model.ErrTransient, err)
	}

	p.cmd, p.stdin = cmd, stdin
	p.conn = NewConn(stdout, stdin, p.timeout)
	p.exited = make(chan struct{})
	p.starts++
	p.log.Info(context.Background(), "model process started",
		logger.String("command", p.command),
		logger.Int("pid", cmd.Process.Pid),
		logger.Int("starts", p.starts),
	)

	go p.logStderr(stderr)
	go p.wait(cmd, p.exited)
	return nil
}

func (p *Process) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)
	if err != nil {
		p.log.Debug(context.Background(), "model process exited", logger.Error(err))
	}
}

func (p *Process) stop() {
	if p.cmd == nil {
		return
	}
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(p.grace):
		p.log.Warn(context.Background(), "model process stop timeout, killing")
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	p.cmd, p.stdin, p.conn, p.exited = nil, nil, nil, nil
}

func (p *Process) logStderr(r io.Reader) {
	ctx := context.Background()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			p.log.Error(ctx, "model error", logger.String("line", line))
		case containsAny(line, "[WARNING]", "[WARN]"):
			p.log.Warn(ctx, "model warning", logger.String("line", line))
		default:
			p.log.Debug(ctx, "model log", logger.String("line", line))
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
