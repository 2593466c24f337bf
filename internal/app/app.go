// Package app implements the lex-intel command-line interface.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "scrape":
		return runScrape(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "publish":
		return runPublish(args[1:])
	case "cycle", "run-once":
		return runCycle(args[1:])
	case "status":
		return runStatus(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "lex-intel CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lex-intel <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  scrape   Fetch configured sources and ingest new articles")
	fmt.Fprintln(os.Stderr, "  analyze  Classify pending articles and synthesize a briefing")
	fmt.Fprintln(os.Stderr, "  publish  Drain the publish queue through platform adapters")
	fmt.Fprintln(os.Stderr, "  cycle    Run scrape + analyze + publish in sequence")
	fmt.Fprintln(os.Stderr, "  run-once Alias for cycle")
	fmt.Fprintln(os.Stderr, "  status   Show pipeline and queue status")
	fmt.Fprintln(os.Stderr, "  serve    Start the API server")
	fmt.Fprintln(os.Stderr, "  daemon   Run scheduled cycles plus the API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"lex-intel <command> -h\" for command-specific flags.")
}
