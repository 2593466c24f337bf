package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chrbailey/lex-intel/internal/cli"
)

func runHealth(args []string) int {
	fs, envLoader, timeout := commandFlags("health")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	if err := rt.pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Database unreachable: %v\n", err)
		return 1
	}
	fmt.Println("ok")
	return 0
}

func runScrape(args []string) int {
	fs, envLoader, timeout := commandFlags("scrape")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	scraper, err := rt.scrapeService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := scraper.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scrape failed: %v\n", err)
		return 1
	}
	return printJSON(result)
}

func runAnalyze(args []string) int {
	fs, envLoader, timeout := commandFlags("analyze")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	analyzer, err := rt.analyzeService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := analyzer.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analyze failed: %v\n", err)
		return 1
	}
	return printJSON(result)
}

func runPublish(args []string) int {
	fs, envLoader, timeout := commandFlags("publish")
	platform := fs.String("platform", "", "Only drain items for this platform")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	result, err := rt.publishManager().Drain(ctx, *platform)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
		return 1
	}
	return printJSON(result)
}

func runCycle(args []string) int {
	fs, envLoader, timeout := commandFlags("cycle")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	result, err := rt.runCycleOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cycle failed: %v\n", err)
		return 1
	}
	return printJSON(result)
}

func runStatus(args []string) int {
	fs, envLoader, timeout := commandFlags("status")
	if code, done := parseFlags(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := setup(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	articles, err := rt.pool.ArticleStatusCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query article counts: %v\n", err)
		return 1
	}
	depths, err := rt.pool.QueueDepths(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query queue depths: %v\n", err)
		return 1
	}
	latestScrape, err := rt.pool.LatestScrapeRun(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query latest scrape run: %v\n", err)
		return 1
	}
	latestBriefing, err := rt.pool.LatestBriefing(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query latest briefing: %v\n", err)
		return 1
	}

	status := map[string]any{
		"articles":     articles,
		"queue_depths": depths,
	}
	if latestScrape != nil {
		status["latest_scrape"] = latestScrape
	}
	if latestBriefing != nil {
		status["latest_briefing"] = map[string]any{
			"briefing_uuid": latestBriefing.BriefingUUID,
			"article_count": latestBriefing.ArticleCount,
			"model_used":    latestBriefing.ModelUsed,
			"created_at":    latestBriefing.CreatedAt,
		}
	}
	return printJSON(status)
}

func commandFlags(name string) (*flag.FlagSet, *cli.EnvLoader, *time.Duration) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	return fs, envLoader, timeout
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, true
		}
		return 2, true
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s does not accept positional arguments\n", fs.Name())
		return 2, true
	}
	return 0, false
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
