package sandbox

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/container"
	"go.uber.org/zap"

	"github.com/dsolodov/runbox/config"
)

// CompletionKind classifies how an execution ended.
type CompletionKind string

const (
	// KindCompleted means the program ran to completion. A non-zero exit
	// is still completed; the stderr content is the diagnostic signal.
	KindCompleted CompletionKind = "completed"
	// KindTimedOut means the wall-clock timeout fired before the program
	// finished; the container was force-killed and removed.
	KindTimedOut CompletionKind = "timed-out"
	// KindFailedToStart means the exec mechanism itself failed and the
	// program never ran.
	KindFailedToStart CompletionKind = "failed-to-start"
)

// Request carries one execution's inputs. A Request is owned exclusively by
// the call that issues it.
type Request struct {
	Code     string
	Language string

	// Timeout overrides the configured wall-clock timeout when positive.
	Timeout time.Duration
	// MemoryBytes overrides the configured memory ceiling when positive.
	MemoryBytes int64
}

// Outcome is the immutable result returned to the caller. By the time an
// Outcome is returned, the workspace and container behind it are gone.
type Outcome struct {
	Stdout    string
	Stderr    string
	Kind      CompletionKind
	ExitCode  int
	Elapsed   time.Duration
	Truncated bool
}

// Runner is the engine's primary contract, consumed by the serving layer.
type Runner interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// Config holds the executor's operating limits.
type Config struct {
	// Root is the sandbox root directory workspaces are staged under.
	Root string
	// Timeout is the default wall-clock timeout per execution.
	Timeout time.Duration
	// MemoryBytes is the default container memory ceiling.
	MemoryBytes int64
	// OutputLimit is the capture cap in bytes, applied per stream.
	OutputLimit int
}

// Executor coordinates registry, staging, container lifecycle and output
// collection for a single logically-blocking Execute call. Executions share
// no mutable state; any number may run concurrently.
type Executor struct {
	logger    *zap.Logger
	config    *Config
	registry  *Registry
	stager    *Stager
	lifecycle *Lifecycle
	api       ContainerAPI
}

var _ Runner = (*Executor)(nil)

// ExecutorOption defines a functional option for Executor.
type ExecutorOption func(*Executor)

// WithRegistry replaces the default language registry.
func WithRegistry(r *Registry) ExecutorOption {
	return func(e *Executor) {
		e.registry = r
	}
}

// WithFileSystem sets the FileSystem used for staging.
func WithFileSystem(fs FileSystem) ExecutorOption {
	return func(e *Executor) {
		e.stager = NewStager(e.logger, e.config.Root, WithStagerFileSystem(fs))
	}
}

// NewExecutor creates an Executor on top of a container engine.
func NewExecutor(logger *zap.Logger, cfg *Config, api ContainerAPI, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:    logger,
		config:    cfg,
		registry:  NewRegistry(nil),
		stager:    NewStager(logger, cfg.Root),
		lifecycle: NewLifecycle(api, logger),
		api:       api,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig builds an Executor wired from the application configuration,
// including per-language image overrides.
func NewFromConfig(logger *zap.Logger, cfg *config.Config, api ContainerAPI) Runner {
	overrides := make(map[string]string, len(cfg.Languages))
	for key, lang := range cfg.Languages {
		overrides[key] = lang.Image
	}
	return NewExecutor(logger,
		&Config{
			Root:        cfg.Sandbox.Root,
			Timeout:     cfg.GetTimeout(),
			MemoryBytes: int64(cfg.Sandbox.MemoryMB) * 1024 * 1024,
			OutputLimit: cfg.Sandbox.OutputLimitKB * 1024,
		},
		api,
		WithRegistry(NewRegistry(overrides)),
	)
}

// Execute runs the request's source code in a disposable container and
// returns a definitive Outcome or a definitive setup error, never a hang.
// The workspace and container are torn down on every exit path.
func (e *Executor) Execute(ctx context.Context, req Request) (Outcome, error) {
	profile, err := e.registry.Resolve(req.Language)
	if err != nil {
		return Outcome{}, err
	}

	timeout := e.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	memory := e.config.MemoryBytes
	if req.MemoryBytes > 0 {
		memory = req.MemoryBytes
	}

	e.logger.Info("executing code in sandbox",
		zap.String("language", profile.Key),
		zap.Duration("timeout", timeout))

	ws, err := e.stager.Stage(req.Code, profile)
	if err != nil {
		return Outcome{}, err
	}
	defer e.stager.Remove(ws)

	handle, err := e.lifecycle.Acquire(ctx, ws, profile, memory)
	if err != nil {
		return Outcome{}, err
	}
	defer e.lifecycle.Release(handle)

	start := time.Now()
	deadline := start.Add(timeout)

	phases := [][]string{profile.Run}
	if profile.TwoPhase() {
		phases = [][]string{profile.Compile, profile.Run}
	}

	var last phaseResult
	for _, cmd := range phases {
		last = e.runPhase(ctx, handle, cmd, time.Until(deadline))
		if last.kind != KindCompleted || last.exitCode != 0 {
			// A failed compile step short-circuits with the compiler's
			// own diagnostics; timeouts and exec failures end the request.
			break
		}
	}

	outcome := Outcome{
		Stdout:    last.stdout,
		Stderr:    last.stderr,
		Kind:      last.kind,
		ExitCode:  last.exitCode,
		Elapsed:   time.Since(start),
		Truncated: last.truncated,
	}

	e.logger.Info("code execution finished",
		zap.String("language", profile.Key),
		zap.String("completion", string(outcome.Kind)),
		zap.Int("exit_code", outcome.ExitCode),
		zap.Duration("elapsed", outcome.Elapsed),
		zap.Bool("truncated", outcome.Truncated))

	return outcome, nil
}

type phaseResult struct {
	stdout    string
	stderr    string
	exitCode  int
	truncated bool
	kind      CompletionKind
}

// runPhase issues one command inside the running container and races stream
// completion against the remaining wall-clock budget. If the timer wins, the
// container is force-killed and removed immediately and whatever partial
// output was captured is returned marked timed-out.
func (e *Executor) runPhase(ctx context.Context, handle *ContainerHandle, cmd []string, remaining time.Duration) phaseResult {
	if remaining <= 0 {
		e.lifecycle.Release(handle)
		return phaseResult{kind: KindTimedOut, exitCode: -1}
	}

	execResp, err := e.api.ContainerExecCreate(ctx, handle.ID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   containerWorkdir,
	})
	if err != nil {
		e.logger.Error("exec create failed",
			zap.String("container_id", handle.ID), zap.Error(err))
		return phaseResult{stderr: err.Error(), kind: KindFailedToStart, exitCode: -1}
	}

	attach, err := e.api.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		e.logger.Error("exec attach failed",
			zap.String("container_id", handle.ID), zap.Error(err))
		return phaseResult{stderr: err.Error(), kind: KindFailedToStart, exitCode: -1}
	}
	defer attach.Close()

	collector := newOutputCollector(e.config.OutputLimit)
	done := collector.collect(attach.Reader)

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case copyErr := <-done:
		if copyErr != nil {
			e.logger.Debug("exec stream ended with error", zap.Error(copyErr))
		}
	case <-timer.C:
		// Force-kill and remove right away; Release is idempotent so the
		// deferred call in Execute becomes a no-op.
		e.logger.Warn("execution timed out, removing container",
			zap.String("container_id", handle.ID),
			zap.Duration("timeout", remaining))
		e.lifecycle.Release(handle)
		return phaseResult{
			stdout:    collector.stdout.String(),
			stderr:    collector.stderr.String(),
			truncated: collector.truncated(),
			kind:      KindTimedOut,
			exitCode:  -1,
		}
	}

	exitCode := 0
	if inspect, err := e.api.ContainerExecInspect(ctx, execResp.ID); err != nil {
		e.logger.Warn("exec inspect failed", zap.Error(err))
		exitCode = -1
	} else {
		exitCode = inspect.ExitCode
	}

	return phaseResult{
		stdout:    collector.stdout.String(),
		stderr:    collector.stderr.String(),
		truncated: collector.truncated(),
		exitCode:  exitCode,
		kind:      KindCompleted,
	}
}
