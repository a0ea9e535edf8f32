package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasi-hostbridge/runtime"
	"github.com/wippyai/wasi-hostbridge/scheduler"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/world"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "hostbridge"
	app.Version = Version
	app.Usage = "run request handlers on the WASI host bridge"
	app.Commands = []cli.Command{
		cmdServe,
		cmdFetch,
		cmdConsole,
	}
	return app
}

// newLogger returns a development console logger when stderr is a
// terminal and a JSON production logger otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg = zap.NewDevelopmentConfig()
		if !debug {
			cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	} else {
		cfg = zap.NewProductionConfig()
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
	}
	return cfg.Build()
}

func installLogger(l *zap.Logger) {
	scheduler.SetLogger(l)
	runtime.SetLogger(l)
	preview2.SetLogger(l)
}

// localRuntime initializes the runtime over an in-process host for the
// client commands. release tears down both.
func localRuntime() (rt *runtime.Runtime, release func(), err error) {
	h := world.New(preview2.New().WithEnv(environ()))
	rt, err = runtime.Init(h, nil)
	if err != nil {
		h.Close()
		return nil, nil, fmt.Errorf("init runtime: %w", err)
	}
	return rt, func() {
		_ = runtime.Teardown()
		h.Close()
	}, nil
}

// environ returns the process environment as a map.
func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
