package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ASK1E/SASTRA/internal/api"
	"github.com/ASK1E/SASTRA/internal/config"
	"github.com/ASK1E/SASTRA/internal/docker"
	"github.com/ASK1E/SASTRA/internal/interpret"
	"github.com/ASK1E/SASTRA/internal/orchestrator"
	"github.com/ASK1E/SASTRA/internal/runner"
	"github.com/ASK1E/SASTRA/internal/scanners"
	"github.com/ASK1E/SASTRA/internal/security"
	"github.com/ASK1E/SASTRA/internal/workspace"
)

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		log.Error("shutdown", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	tool, err := scanners.Lookup(cfg.Scanner)
	if err != nil {
		return err
	}

	invoker, err := newInvoker(log, cfg, tool)
	if err != nil {
		return err
	}

	policy := security.NewPolicy(cfg.AllowedExtensions, cfg.MaxUploadBytes)
	orch := orchestrator.New(
		log,
		orchestrator.Config{
			Policy:       policy,
			SniffContent: cfg.SniffContent,
		},
		workspace.NewManager(cfg.TempDir),
		invoker,
		interpret.ForTool(tool),
	)
	if err := orch.Probe(ctx); err != nil {
		log.Error("scanner not available at startup, scans will be refused until it is", "scanner", tool.Name, "err", err)
	}

	handler := api.NewHandler(log, orch, policy, api.Limits{
		MaxConcurrent: cfg.MaxConcurrent,
		QueueTimeout:  cfg.QueueTimeout,
	})
	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     api.Routes(log, handler),
		ReadTimeout: cfg.ReadTimeout,
		// A request may queue for a slot and then run a full scan.
		WriteTimeout: cfg.QueueTimeout + cfg.ScanTimeout + 30*time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("scanner service listening", "addr", cfg.ListenAddr, "scanner", tool.Name, "runtime", cfg.Runtime)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func newInvoker(log *slog.Logger, cfg config.Config, tool scanners.Tool) (orchestrator.Invoker, error) {
	switch cfg.Runtime {
	case config.RuntimeDocker:
		cli, err := docker.New()
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		image := cfg.Image
		if image == "" {
			image = tool.Image
		}
		binary := cfg.ScannerBinary
		if binary == "" {
			binary = tool.Binary
		}
		toolArgs := tool.Command(cfg.Rules)
		args := func(path string) []string {
			return append([]string{binary}, toolArgs(path)...)
		}
		return docker.NewSandbox(log, cli, image, args, cfg.ScanTimeout), nil
	default:
		binary := cfg.ScannerBinary
		if binary == "" {
			binary = tool.Binary
		}
		return runner.NewExec(log, binary, tool.Command(cfg.Rules), cfg.ScanTimeout), nil
	}
}
