package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrbailey/lex-intel/internal/cli"
	"github.com/chrbailey/lex-intel/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "serve does not accept positional arguments")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	if err := rt.newServer().Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}

func (r *runtime) newServer() *httpapi.Server {
	triggers := httpapi.Triggers{
		Scrape: func(ctx context.Context) (any, error) {
			scraper, err := r.scrapeService()
			if err != nil {
				return nil, err
			}
			return scraper.Run(ctx)
		},
		Analyze: func(ctx context.Context) (any, error) {
			analyzer, err := r.analyzeService()
			if err != nil {
				return nil, err
			}
			return analyzer.Run(ctx)
		},
		Publish: func(ctx context.Context, platform string) (any, error) {
			return r.publishManager().Drain(ctx, platform)
		},
		Cycle: func(ctx context.Context) (any, error) {
			return r.runCycleOnce(ctx)
		},
	}

	return httpapi.NewServer(r.pool, r.embedder(), r.signalService(), triggers, r.logger, httpapi.Options{
		Host:           r.cfg.HTTPHost,
		Port:           r.cfg.HTTPPort,
		AdminTokenHash: r.cfg.AdminTokenHash,
	})
}
