// Package harness turns an external command-line program into a function of
// a parameter point: it renders the invocation, runs the program under a
// timeout, reads the result artifact and classifies every failure.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/pkg/logger"
	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

const (
	artifactSuffix = ".out"
	// outputTailBytes is how much of stdout/stderr is kept per evaluation.
	outputTailBytes = 8 * 1024
	// waitDelay bounds how long pipes are drained after the process is killed.
	waitDelay = 2 * time.Second
)

// Observer receives one call per finished evaluation.
type Observer interface {
	ObserveEvaluation(outcome string, duration time.Duration)
}

// Config configures a Harness.
type Config struct {
	Space     *space.Space
	Command   Command
	Extractor Extractor
	// WorkDir holds the result artifacts. Each harness writes into its own
	// RunID subdirectory, created if missing.
	WorkDir string
	// RunID names the artifact subdirectory. A random id is used when empty.
	RunID string
	// Timeout bounds a single invocation; zero means no limit.
	Timeout time.Duration
	// Cleanup removes the artifact after a successful evaluation.
	Cleanup bool
	// Parallelism bounds concurrent invocations in EvaluateBatch.
	Parallelism int
	Logger      *slog.Logger
	Observer    Observer
}

// Evaluation describes one invocation, successful or not.
type Evaluation struct {
	Identity     string
	Point        space.Point
	Value        float64
	ExitCode     int
	Duration     time.Duration
	StartedAt    time.Time
	ArtifactPath string
	Stdout       string
	Stderr       string
}

// Harness evaluates points by running the configured external program. It
// never touches the parameter space or any result log; apart from the
// artifacts it names, every call is independent of every other.
type Harness struct {
	space       *space.Space
	cmd         Command
	extractor   Extractor
	runID       string
	workDir     string
	timeout     time.Duration
	cleanup     bool
	parallelism int
	log         *slog.Logger
	observer    Observer
	ids         allocator
}

// New validates cfg and prepares the working directory.
func New(cfg Config) (*Harness, error) {
	if cfg.Space == nil {
		return nil, fmt.Errorf("parameter space is required")
	}
	if err := cfg.Command.validate(cfg.Space); err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewMarker("")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "smbo")
	}
	if cfg.RunID == "" {
		cfg.RunID = utils.GenerateRunID()
	}
	if cfg.RunID != filepath.Base(cfg.RunID) || cfg.RunID == "." || cfg.RunID == ".." {
		return nil, fmt.Errorf("run id %q cannot be used as a directory name", cfg.RunID)
	}
	base, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}
	workDir := filepath.Join(base, cfg.RunID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir %s: %w", workDir, err)
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default
	}
	return &Harness{
		space:       cfg.Space,
		cmd:         cfg.Command,
		extractor:   cfg.Extractor,
		runID:       cfg.RunID,
		workDir:     workDir,
		timeout:     cfg.Timeout,
		cleanup:     cfg.Cleanup,
		parallelism: cfg.Parallelism,
		log:         cfg.Logger,
		observer:    cfg.Observer,
	}, nil
}

// WorkDir returns the absolute artifact directory of this harness.
func (h *Harness) WorkDir() string {
	return h.workDir
}

// RunID returns the id naming the artifact subdirectory.
func (h *Harness) RunID() string {
	return h.runID
}

// Evaluate runs the external program for p. A point outside the space is a
// *space.DomainError; every other failure is an *EvalError. The returned
// Evaluation carries the invocation metadata in both cases.
func (h *Harness) Evaluate(ctx context.Context, p space.Point) (Evaluation, error) {
	id, err := h.reserve(p)
	if err != nil {
		return Evaluation{Point: p}, err
	}
	return h.run(ctx, p, id)
}

// reserve validates p and allocates its identity.
func (h *Harness) reserve(p space.Point) (Identity, error) {
	encoded, err := h.space.Encode(p)
	if err != nil {
		return Identity{}, err
	}
	return h.ids.next(encoded), nil
}

func (h *Harness) artifactPath(id Identity) string {
	return filepath.Join(h.workDir, id.String()+artifactSuffix)
}

func (h *Harness) run(ctx context.Context, p space.Point, id Identity) (Evaluation, error) {
	artifact := h.artifactPath(id)
	ev := Evaluation{
		Identity:     id.String(),
		Point:        p.Clone(),
		ArtifactPath: artifact,
		ExitCode:     -1,
		StartedAt:    time.Now(),
	}
	log := h.log.With("identity", ev.Identity)

	err := h.invoke(ctx, p, id, &ev)
	ev.Duration = time.Since(ev.StartedAt)
	if err == nil {
		ev.Value, err = h.extract(artifact)
	}

	outcome := "success"
	if err != nil {
		var evalErr *EvalError
		if errors.As(err, &evalErr) {
			outcome = string(evalErr.Kind)
		}
		log.Warn("evaluation failed", "point", h.space.Format(p), "outcome", outcome, "error", err, "duration", ev.Duration)
	} else {
		log.Debug("evaluation finished", "point", h.space.Format(p), "value", ev.Value, "duration", ev.Duration)
		if h.cleanup {
			h.removeArtifact(log, artifact)
		}
	}
	if h.observer != nil {
		h.observer.ObserveEvaluation(outcome, ev.Duration)
	}
	return ev, err
}

// invoke starts the program and waits for it, classifying the exit.
func (h *Harness) invoke(ctx context.Context, p space.Point, id Identity, ev *Evaluation) error {
	if err := ctx.Err(); err != nil {
		return &EvalError{Kind: KindCanceled, Err: err}
	}
	if _, err := os.Stat(ev.ArtifactPath); err == nil {
		return &EvalError{Kind: KindLaunchFailure, Detail: "artifact path already exists: " + ev.ArtifactPath}
	}

	callCtx := ctx
	cancel := func() {}
	if h.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	defer cancel()

	args := h.cmd.render(h.space, p, id, ev.ArtifactPath)
	cmd := exec.CommandContext(callCtx, h.cmd.Program, args...)
	cmd.Dir = h.cmd.Dir
	cmd.Env = append(os.Environ(), h.cmd.environ(id, ev.ArtifactPath)...)
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	stdout := newTail(outputTailBytes)
	stderr := newTail(outputTailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if !h.cmd.writesOutput() {
		f, err := os.OpenFile(ev.ArtifactPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return &EvalError{Kind: KindLaunchFailure, Detail: "failed to create artifact", Err: err}
		}
		defer f.Close()
		cmd.Stdout = multiWriter(f, stdout)
	}

	h.log.Debug("starting external program", "identity", ev.Identity, "program", h.cmd.Program, "args", args)
	runErr := cmd.Run()
	ev.Stdout = stdout.String()
	ev.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		ev.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return &EvalError{Kind: KindTimeout, ExitCode: ev.ExitCode, Detail: fmt.Sprintf("killed after %s", h.timeout)}
	case ctx.Err() != nil:
		return &EvalError{Kind: KindCanceled, ExitCode: ev.ExitCode, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return nonZeroExit(exitErr.ExitCode(), lastLine(ev.Stderr))
	}
	return &EvalError{Kind: KindLaunchFailure, Err: runErr}
}

func (h *Harness) extract(artifact string) (float64, error) {
	data, err := os.ReadFile(artifact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, parseFailure("artifact missing: "+artifact, nil)
		}
		return 0, parseFailure("failed to read artifact", err)
	}
	v, err := h.extractor.Extract(data)
	if err != nil {
		return 0, parseFailure(h.extractor.Name()+" extractor", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, parseFailure(fmt.Sprintf("non-finite result %v", v), nil)
	}
	return v, nil
}

// removeArtifact deletes a transient artifact. Failures are logged only: a
// stray file must not abort a run.
func (h *Harness) removeArtifact(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove artifact", "path", path, "error", err)
	}
}
