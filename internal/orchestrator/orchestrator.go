// Package orchestrator runs one upload through validation, the analysis tool
// and result interpretation, and guarantees the artifact file is removed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ASK1E/SASTRA/internal/model"
	"github.com/ASK1E/SASTRA/internal/runner"
	"github.com/ASK1E/SASTRA/internal/security"
	"github.com/ASK1E/SASTRA/internal/workspace"
)

//go:generate mockgen -destination=../mocks/mock_invoker.go -package=mocks github.com/ASK1E/SASTRA/internal/orchestrator Invoker

// ErrScannerUnavailable is returned without doing any work while the tool is
// known to be missing or unstartable.
var ErrScannerUnavailable = errors.New("scanner unavailable")

// Invoker runs the analysis tool against a file. Probe checks that the tool
// could be started without running a scan.
type Invoker interface {
	Invoke(ctx context.Context, path string) (runner.Output, error)
	Probe(ctx context.Context) error
}

type Interpreter interface {
	Interpret(exitCode int, stdout, stderr []byte) model.ScanResult
}

type Config struct {
	Policy       security.Policy
	SniffContent bool
}

// Orchestrator is safe for concurrent use. Apart from the availability flag
// it holds no mutable state.
type Orchestrator struct {
	log         *slog.Logger
	cfg         Config
	workspaces  *workspace.Manager
	invoker     Invoker
	interpreter Interpreter
	unavailable atomic.Pointer[error]
}

func New(log *slog.Logger, cfg Config, workspaces *workspace.Manager, invoker Invoker, interpreter Interpreter) *Orchestrator {
	return &Orchestrator{
		log:         log,
		cfg:         cfg,
		workspaces:  workspaces,
		invoker:     invoker,
		interpreter: interpreter,
	}
}

// Scan validates req, runs the tool once against a private copy of its
// content and interprets the output. The returned error is one of
// *security.RejectionError, runner.ErrTimedOut, runner.ErrSpawnFailed,
// ErrScannerUnavailable or a context/filesystem error; tool failures that
// still produced a verdict are reported through the ScanResult kind.
func (o *Orchestrator) Scan(ctx context.Context, req model.UploadRequest) (model.ScanResult, error) {
	log := o.log.With("scan_id", ScanID(ctx), "filename", DisplayName(req.Filename))

	if err := o.validate(req); err != nil {
		log.Info("upload rejected", "err", err)
		return model.ScanResult{}, err
	}
	if err := o.Available(ctx); err != nil {
		return model.ScanResult{}, err
	}

	ws, err := o.workspaces.Acquire(req.Content, security.Extension(req.Filename))
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("materialize artifact: %w", err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn("workspace cleanup failed", "err", err)
		}
	}()

	start := time.Now()
	out, err := o.invoker.Invoke(ctx, ws.Path())
	switch {
	case errors.Is(err, runner.ErrSpawnFailed):
		o.markUnavailable(err)
		log.Error("scanner could not be started, refusing further scans", "err", err)
		return model.ScanResult{}, err
	case errors.Is(err, runner.ErrTimedOut):
		log.Warn("scan timed out", "duration", time.Since(start), "err", err)
		return model.ScanResult{}, err
	case err != nil:
		log.Warn("scan interrupted", "err", err)
		return model.ScanResult{}, err
	}

	result := o.interpreter.Interpret(out.ExitCode, out.Stdout, out.Stderr).
		Redact(ws.Path(), DisplayName(req.Filename))

	switch result.Kind {
	case model.ResultSuccess:
		log.Info("scan completed", "findings", len(result.Findings), "exit_code", out.ExitCode, "duration", out.Duration)
	default:
		log.Error("scan failed", "kind", result.Kind, "exit_code", out.ExitCode, "diagnostic", result.Diagnostic)
	}
	return result, nil
}

func (o *Orchestrator) validate(req model.UploadRequest) error {
	if err := o.cfg.Policy.Validate(req.Filename, req.EffectiveSize()); err != nil {
		return err
	}
	if o.cfg.SniffContent {
		return o.cfg.Policy.ValidateContent(req.Content)
	}
	return nil
}

// Available returns nil when scans can run. After a spawn failure it probes
// the tool again and only clears the flag once the probe succeeds.
func (o *Orchestrator) Available(ctx context.Context) error {
	cause := o.unavailable.Load()
	if cause == nil {
		return nil
	}
	if err := o.invoker.Probe(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrScannerUnavailable, *cause)
	}
	if o.unavailable.CompareAndSwap(cause, nil) {
		o.log.Info("scanner available again")
	}
	return nil
}

// Probe checks the tool at startup and marks it unavailable on failure.
func (o *Orchestrator) Probe(ctx context.Context) error {
	if err := o.invoker.Probe(ctx); err != nil {
		o.markUnavailable(err)
		return err
	}
	return nil
}

func (o *Orchestrator) markUnavailable(cause error) {
	o.unavailable.Store(&cause)
}

// DisplayName strips any directory components a client sent with the
// filename, so only the base name is ever reported back or logged.
func DisplayName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

type scanIDKey struct{}

// WithScanID attaches a correlation id to ctx for log lines emitted by Scan.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, id)
}

func ScanID(ctx context.Context) string {
	id, _ := ctx.Value(scanIDKey{}).(string)
	return id
}
