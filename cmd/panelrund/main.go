// Package main provides the panelrund server entrypoint.
//
// Usage:
//
//	panelrund serve [--config panelrun.yaml] [--bind :8080]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/panelkit/runtime/config"
	"github.com/panelkit/runtime/extension"
	"github.com/panelkit/runtime/metrics"
	"github.com/panelkit/runtime/panelmgr"
	"github.com/panelkit/runtime/relay"
	"github.com/panelkit/runtime/sandbox"
	"github.com/panelkit/runtime/server"
	"github.com/panelkit/runtime/snapshot"
	"github.com/panelkit/runtime/suspension"
	"github.com/panelkit/runtime/types"
)

const (
	exitSuccess     = 0
	exitConfigError = 1
	exitServerError = 2
)

func main() {
	app := &cli.App{
		Name:    "panelrund",
		Usage:   "panel execution runtime server",
		Version: types.Version,
		Commands: []*cli.Command{
			serveCommand(),
		},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitServerError)
	}
}

func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitServerError)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the panel execution runtime HTTP/WS server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to panelrun.yaml",
			},
			&cli.StringFlag{
				Name:  "bind",
				Usage: "override the configured bind address",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitConfigError)
		}
		cfg = *loaded
	}
	if bind := c.String("bind"); bind != "" {
		cfg.BindAddr = bind
	}

	log, err := zap.NewProduction()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build logger: %v", err), exitConfigError)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	registry := extension.NewRegistry()
	if err := registry.Register(extension.NewHTTPExtension(extension.HTTPConfig{
		Concurrency:  cfg.HTTPExt.Concurrency,
		Timeout:      cfg.HTTPExt.Timeout.Duration,
		AllowedHosts: cfg.HTTPExt.AllowedHosts,
	})); err != nil {
		return cli.Exit(fmt.Sprintf("failed to register http extension: %v", err), exitConfigError)
	}

	pool := sandbox.NewPool(sandbox.Config{
		MinInstances:    cfg.Sandbox.MinInstances,
		MaxInstances:    cfg.Sandbox.MaxInstances,
		DefaultTimeout:  cfg.Sandbox.DefaultTimeout.Duration,
		AcquireTimeout:  cfg.Sandbox.AcquireTimeout.Duration,
		HostCallLimit:   cfg.Sandbox.HostCallLimit,
		SuspendedBudget: cfg.Sandbox.SuspendedBudget.Duration,
		CacheMaxBytes:   cfg.Sandbox.CacheMaxBytes,
		CacheDiskDir:    cfg.Sandbox.CacheDiskDir,
	}, registry)

	suspensions := suspension.NewManager(pool, cfg.Suspension.DefaultTimeout.Duration)
	scheduler := panelmgr.NewTriggerScheduler(cfg.Sandbox.MaxInstances)
	panels := panelmgr.NewManager(pool, registry, suspensions, scheduler, cfg.Sandbox.DefaultTimeout.Duration)

	if cfg.Relay != nil {
		origin, err := os.Hostname()
		if err != nil || origin == "" {
			origin = "panelrund"
		}
		r, err := relay.NewRedis(relay.Config{
			URL:     cfg.Relay.URL,
			Channel: cfg.Relay.Channel,
			Timeout: cfg.Relay.Timeout.Duration,
			Retries: cfg.Relay.Retries,
		}, origin)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to configure relay: %v", err), exitConfigError)
		}
		panels.WithRelay(r)
		go func() {
			if err := r.Run(ctx, panels); err != nil {
				log.Warn("relay subscription stopped", zap.Error(err))
			}
		}()
	}

	coll := metrics.NewCollector(types.Version)

	srv := server.New(panels, pool, coll, log, types.Version)
	if cfg.Snapshot != nil {
		exp, err := snapshot.NewExporter(context.Background(), snapshot.S3Config{
			Bucket:       cfg.Snapshot.Bucket,
			Prefix:       cfg.Snapshot.Prefix,
			Region:       cfg.Snapshot.Region,
			Endpoint:     cfg.Snapshot.Endpoint,
			UsePathStyle: cfg.Snapshot.UsePathStyle,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to configure snapshot export: %v", err), exitConfigError)
		}
		srv = srv.WithSnapshots(exp)
	}

	httpSrv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("panelrund listening", zap.String("addr", cfg.BindAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(fmt.Sprintf("server error: %v", err), exitServerError)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return cli.Exit(fmt.Sprintf("shutdown error: %v", err), exitServerError)
		}
	}

	return cli.Exit("", exitSuccess)
}
