package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/chrbailey/lex-intel/internal/cli"
)

// runDaemon schedules the daily cycle and the publish drain on cron
// expressions while the API server handles requests. Scheduled runs share
// the daemon's pool; overlapping cycles are prevented by cron's job wrapper.
func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon does not accept positional arguments")
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

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := scheduler.AddFunc(rt.cfg.CycleSchedule, func() {
		result, cycleErr := rt.runCycleOnce(ctx)
		if cycleErr != nil {
			rt.logger.Error().Err(cycleErr).Msg("scheduled cycle failed")
			return
		}
		rt.logger.Info().Interface("result", result).Msg("scheduled cycle finished")
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid cycle schedule %q: %v\n", rt.cfg.CycleSchedule, err)
		return 2
	}

	if _, err := scheduler.AddFunc(rt.cfg.PublishSchedule, func() {
		result, drainErr := rt.publishManager().Drain(ctx, "")
		if drainErr != nil {
			rt.logger.Error().Err(drainErr).Msg("scheduled publish drain failed")
			return
		}
		if result.Processed > 0 {
			rt.logger.Info().Interface("result", result).Msg("scheduled publish drain finished")
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid publish schedule %q: %v\n", rt.cfg.PublishSchedule, err)
		return 2
	}

	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	rt.logger.Info().
		Str("cycle_schedule", rt.cfg.CycleSchedule).
		Str("publish_schedule", rt.cfg.PublishSchedule).
		Msg("daemon started")

	if err := rt.newServer().Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}
