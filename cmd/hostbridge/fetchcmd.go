package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var cmdFetch = cli.Command{
	Name:      "fetch",
	Usage:     "send one request through the runtime and print the response",
	ArgsUsage: "[METHOD] URL [BODY]",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:   "timeout",
			Value:  30 * time.Second,
			Usage:  "request timeout",
			EnvVar: "HOSTBRIDGE_TIMEOUT",
		},
		cli.BoolFlag{
			Name:   "debug",
			Usage:  "log runtime activity to stderr",
			EnvVar: "HOSTBRIDGE_DEBUG",
		},
	},
	Action: fetchAction,
}

func fetchAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowCommandHelp(c, "fetch")
	}

	log := zap.NewNop()
	if c.Bool("debug") {
		var err error
		if log, err = newLogger(true); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer func() { _ = log.Sync() }()
	}
	installLogger(log)

	rt, release, err := localRuntime()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	method, target, payload := parseLine(strings.Join(c.Args(), " "))
	ex, err := fetch(ctx, rt, method, target, payload)
	if err != nil {
		return err
	}
	return printExchange(os.Stdout, ex)
}

// printExchange writes the status line, a header table and the body.
func printExchange(w io.Writer, ex *exchange) error {
	fmt.Fprintf(w, "%s %s -> %d (%s)\n\n", ex.Method, ex.URL, ex.Status, ex.Elapsed.Round(time.Millisecond))

	table := tablewriter.NewWriter(w)
	table.Header("Header", "Value")
	for _, f := range ex.Headers {
		if err := table.Append(string(f.Name), string(f.Value)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if _, err := w.Write(ex.Body); err != nil {
		return err
	}
	if len(ex.Body) > 0 && ex.Body[len(ex.Body)-1] != '\n' {
		fmt.Fprintln(w)
	}
	return nil
}
