package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taskloop/internal/config"
	"taskloop/internal/execlog"
	"taskloop/internal/model"
)

// Outcome classifies a finished invocation for the loop's state machine.
// The loop branches on this value, never on error types.
type Outcome int

const (
	// OutcomeSuccess means the process exited zero. Note the loop treats
	// the task-store checkbox as ground truth, not this value.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable covers non-zero exit, spawn errors and timeouts;
	// it counts against the task's retry budget.
	OutcomeRetryable
	// OutcomeFatal means the invocation cannot meaningfully be retried
	// (interrupted by shutdown).
	OutcomeFatal
)

// Result is the outcome of one agent invocation.
type Result struct {
	Outcome  Outcome
	ExitCode int
	// Output is stdout and stderr interleaved in arrival order.
	Output   string
	Reason   string
	Duration time.Duration
}

// Request describes one agent invocation.
type Request struct {
	Prompt string
	Tier   model.Tier
}

// Supervisor spawns the external agent, applies the hard timeout, emits
// heartbeat liveness warnings, and captures combined output. It never
// retries; retry policy belongs to the loop.
type Supervisor struct {
	cfg      *config.Config
	provider *Provider
	log      *execlog.Logger
	logger   *slog.Logger

	// graceTimeout is how long a terminated child gets before SIGKILL.
	graceTimeout time.Duration
}

// NewSupervisor creates a supervisor using the resolved provider.
func NewSupervisor(cfg *config.Config, provider *Provider, log *execlog.Logger, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:          cfg,
		provider:     provider,
		log:          log,
		logger:       logger,
		graceTimeout: 5 * time.Second,
	}
}

// Run invokes the agent once with the request's prompt and waits for it
// to finish, time out, or be cancelled.
func (s *Supervisor) Run(ctx context.Context, req Request) Result {
	start := time.Now()

	promptFile, err := s.writePromptFile(req.Prompt)
	if err != nil {
		return Result{
			Outcome:  OutcomeRetryable,
			ExitCode: -1,
			Reason:   fmt.Sprintf("write prompt file: %v", err),
			Duration: time.Since(start),
		}
	}
	defer os.Remove(promptFile)

	modelID := model.ModelID(req.Tier, s.modelOverride(req.Tier))
	s.log.Infof("%s (model %s, tier %s)", execlog.MarkerSpawn, modelID, req.Tier)

	cmd := exec.Command(s.cfg.AgentPath, promptFile)
	cmd.Env = s.provider.Env(os.Environ(), modelID, s.cfg.MaxOutputTokens, s.cfg.MaxThinkingTokens)
	// Own process group so the grace-period kill reaches agent children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailure(start, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailure(start, err)
	}

	if err := cmd.Start(); err != nil {
		return s.spawnFailure(start, err)
	}

	capture := newCaptureBuffer(s.log)
	defer capture.Close()

	var pumps errgroup.Group
	pumps.Go(func() error { return capture.pump(stdout) })
	pumps.Go(func() error { return capture.pump(stderr) })

	hb := newHeartbeat(capture, s.cfg.HeartbeatInterval, s.cfg.SilenceWarning, s.log)
	hbCtx, stopHB := context.WithCancel(context.Background())
	go hb.run(hbCtx)
	defer stopHB()

	waitCh := make(chan error, 1)
	go func() {
		pumps.Wait()
		waitCh <- cmd.Wait()
	}()

	timeout := time.NewTimer(s.cfg.TaskTimeout)
	defer timeout.Stop()

	select {
	case waitErr := <-waitCh:
		return s.finish(start, capture, waitErr)

	case <-timeout.C:
		s.log.Errorf("%s after %s, terminating agent", execlog.MarkerHardTimeout, s.cfg.TaskTimeout)
		s.terminate(cmd, waitCh)
		return Result{
			Outcome:  OutcomeRetryable,
			ExitCode: -1,
			Output:   capture.String(),
			Reason:   fmt.Sprintf("hard timeout after %s", s.cfg.TaskTimeout),
			Duration: time.Since(start),
		}

	case <-ctx.Done():
		s.log.Warnf("interrupt received, terminating agent")
		s.terminate(cmd, waitCh)
		return Result{
			Outcome:  OutcomeFatal,
			ExitCode: -1,
			Output:   capture.String(),
			Reason:   "interrupted",
			Duration: time.Since(start),
		}
	}
}

func (s *Supervisor) spawnFailure(start time.Time, err error) Result {
	s.log.Errorf("agent spawn failed: %v", err)
	return Result{
		Outcome:  OutcomeRetryable,
		ExitCode: -1,
		Reason:   fmt.Sprintf("spawn agent: %v", err),
		Duration: time.Since(start),
	}
}

func (s *Supervisor) finish(start time.Time, capture *captureBuffer, waitErr error) Result {
	res := Result{
		Output:   capture.String(),
		Duration: time.Since(start),
	}

	if waitErr == nil {
		res.Outcome = OutcomeSuccess
		res.ExitCode = 0
		return res
	}

	res.Outcome = OutcomeRetryable
	res.ExitCode = -1
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Reason = fmt.Sprintf("agent exited %d", res.ExitCode)
	return res
}

// terminate sends a graceful termination signal to the child's process
// group, waits the grace period, then force-kills if still alive.
func (s *Supervisor) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	select {
	case <-waitCh:
		return
	case <-time.After(s.graceTimeout):
		s.log.Errorf("%s: agent did not exit within %s", execlog.MarkerForceKill, s.graceTimeout)
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-waitCh
	}
}

// writePromptFile serializes the prompt to a temp file so the prompt
// never hits command-line length limits or process listings.
func (s *Supervisor) writePromptFile(prompt string) (string, error) {
	f, err := os.CreateTemp(".", "prompt-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(prompt); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Supervisor) modelOverride(tier model.Tier) string {
	switch tier {
	case model.TierCheap:
		return s.cfg.Models.Cheap
	case model.TierStandard:
		return s.cfg.Models.Standard
	case model.TierPremium:
		return s.cfg.Models.Premium
	}
	return ""
}

// captureBuffer accumulates interleaved agent output in memory and
// mirrors it to the execution log.
type captureBuffer struct {
	mu         sync.Mutex
	buf        []byte
	lastOutput time.Time
	raw        io.WriteCloser
}

func newCaptureBuffer(log *execlog.Logger) *captureBuffer {
	c := &captureBuffer{lastOutput: time.Now()}
	if log != nil {
		if w, err := log.RawWriter(); err == nil {
			c.raw = w
		}
	}
	return c
}

// pump copies a stream into the buffer chunk by chunk, in arrival order.
func (c *captureBuffer) pump(r io.Reader) error {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf = append(c.buf, chunk[:n]...)
			c.lastOutput = time.Now()
			if c.raw != nil {
				c.raw.Write(chunk[:n])
			}
			c.mu.Unlock()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

func (c *captureBuffer) LastOutput() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutput
}

func (c *captureBuffer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw != nil {
		c.raw.Close()
		c.raw = nil
	}
}
