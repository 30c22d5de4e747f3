package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	advicehandler "bankguard/internal/advice/handler"
	"bankguard/internal/app"
	audithandler "bankguard/internal/audit/handler"
	compliancehandler "bankguard/internal/compliance/handler"
	fraudhandler "bankguard/internal/fraud/handler"
	pipelinehandler "bankguard/internal/pipeline/handler"
	"bankguard/internal/platform/config"
	"bankguard/internal/platform/httpserver"
	"bankguard/internal/platform/logger"
	"bankguard/internal/platform/tracing"
	profilehandler "bankguard/internal/profile/handler"
	rbachandler "bankguard/internal/rbac/handler"
	sessionhandler "bankguard/internal/session/handler"
	httptransport "bankguard/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}

	routerCfg := httptransport.Config{
		Logger:      log,
		Permissions: a.RBAC,
		Metrics:     promhttp.Handler(),
		RateLimit:   a.RateLimit,
		Checks:      a.Checks(),
	}
	if a.Tokens != nil {
		routerCfg.Tokens = a.Tokens
	} else {
		log.Warn("JWT signing key not set; management routes are unauthenticated")
	}
	router := httptransport.NewRouter(httptransport.Handlers{
		RBAC:       rbachandler.New(a.RBAC, log),
		Compliance: compliancehandler.New(a.Compliance, log),
		Sessions:   sessionhandler.New(a.Sessions, log),
		Profiles:   profilehandler.New(a.Profiles, log),
		Fraud:      fraudhandler.New(a.Fraud, log),
		Advice:     advicehandler.New(a.Advice, log),
		Audit:      audithandler.New(a.Audit, log),
		Pipeline:   pipelinehandler.New(a.Pipeline, log),
	}, routerCfg)

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting bankguard", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCancel(a.Sessions.StartSweeper(gctx, cfg.Session.SweepInterval))
	})
	g.Go(func() error {
		return ignoreCancel(a.Memory.StartSweeper(gctx, cfg.Memory.SweepInterval))
	})
	g.Go(func() error {
		return ignoreCancel(a.Audit.StartSweeper(gctx, cfg.Audit.SweepInterval))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	if err := shutdownTracing(closeCtx); err != nil {
		log.Warn("tracing shutdown failed", "error", err)
	}
	log.Info("shutdown complete")
	return runErr
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
