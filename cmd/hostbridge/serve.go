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

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/handler"
	"github.com/wippyai/wasi-hostbridge/runtime"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/world"
)

const shutdownTimeout = 10 * time.Second

var cmdServe = cli.Command{
	Name:  "serve",
	Usage: "serve HTTP requests through the runtime",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "addr",
			Value:  "127.0.0.1:8080",
			Usage:  "listen address",
			EnvVar: "HOSTBRIDGE_ADDR",
		},
		cli.StringFlag{
			Name:   "handler",
			Value:  "echo",
			Usage:  "request handler: echo or proxy",
			EnvVar: "HOSTBRIDGE_HANDLER",
		},
		cli.StringFlag{
			Name:   "upstream",
			Usage:  "upstream base URL for the proxy handler",
			EnvVar: "HOSTBRIDGE_UPSTREAM",
		},
		cli.DurationFlag{
			Name:   "turn-timeout",
			Value:  30 * time.Second,
			Usage:  "bound on the scheduler turns of one request",
			EnvVar: "HOSTBRIDGE_TURN_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "otlp-endpoint",
			Usage:  "OTLP/gRPC collector address for dispatch spans",
			EnvVar: "HOSTBRIDGE_OTLP_ENDPOINT",
		},
		cli.BoolFlag{
			Name:   "otlp-insecure",
			Usage:  "connect to the collector without TLS",
			EnvVar: "HOSTBRIDGE_OTLP_INSECURE",
		},
		cli.BoolFlag{
			Name:   "debug",
			Usage:  "debug logging and live handle tracking",
			EnvVar: "HOSTBRIDGE_DEBUG",
		},
	},
	Action: serve,
}

func selectHandler(name, upstream string) (runtime.Handler, error) {
	switch name {
	case "echo":
		return handler.Echo(), nil
	case "proxy":
		return handler.Proxy(upstream)
	default:
		return nil, fmt.Errorf("unknown handler %q", name)
	}
}

func serve(c *cli.Context) error {
	debug := c.Bool("debug")
	log, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	installLogger(log)

	fn, err := selectHandler(c.String("handler"), c.String("upstream"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &runtime.Config{
		Logger:      log,
		TurnTimeout: c.Duration("turn-timeout"),
		Debug:       debug,
	}
	if endpoint := c.String("otlp-endpoint"); endpoint != "" {
		tp, err := newTracerProvider(ctx, endpoint, c.Bool("otlp-insecure"))
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown", zap.Error(err))
			}
		}()
		cfg.TracerProvider = tp
		log.Info("exporting spans", zap.String("endpoint", endpoint))
	}

	wasi := preview2.New().
		WithArgs(append([]string{os.Args[0]}, c.Args()...)).
		WithEnv(environ()).
		WithLogger(log)
	h := world.New(wasi)
	defer h.Close()

	rt, err := runtime.Init(h, cfg)
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	defer func() {
		if err := runtime.Teardown(); err != nil {
			log.Warn("runtime teardown", zap.Error(err))
		}
	}()
	if err := rt.SetHandler(fn); err != nil {
		return err
	}
	if port, ok := rt.DebugPort(); ok {
		log.Info("debug port configured", zap.Int("port", port))
	}

	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           h.IncomingHandler(rt.Dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("serving",
		zap.String("addr", srv.Addr),
		zap.String("handler", c.String("handler")))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
