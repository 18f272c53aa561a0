package main

import (
	"fmt"
	"io"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

const (
	exitOK                  = 0
	exitInvalidInput        = 1
	exitCanonicalizationErr = 2
	exitOutputFailure       = 3
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args))
}

// run dispatches on the subcommand chosen by splitCommand.
func run(arguments []string) int {
	if len(arguments) > 0 {
		arguments = arguments[1:]
	}
	command, rest := splitCommand(arguments)

	switch command {
	case modeDiagnostic, modeExplain, modeProject, modeDiff, modeSummary:
		return runTraceMode(command, rest)
	case "gateway":
		return runGateway(rest)
	case "serve":
		return runServe(rest)
	case "version":
		fmt.Fprintln(stdout, "observer", version)
		return exitOK
	case "help":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Fprintln(stderr, "Usage:")
	fmt.Fprintln(stderr, "  observer [diagnostic|explain|project|summary] [--input <path|->] [--output <path|->] [--reference <trace.jsonl>]")
	fmt.Fprintln(stderr, "  observer diff --reference <trace.jsonl> [--input <path|->] [--output <path|->]")
	fmt.Fprintln(stderr, "  observer gateway [--gateway-url <url>] [--stream-id <id>] [--lane <lane>] [--limit <n>] [--follow] [--poll-interval <1s>] [--format line|json] [--output <path|->] [--config <observer.yaml>]")
	fmt.Fprintln(stderr, "  observer serve [--config <observer.yaml>] [--listen <host:port>]")
	fmt.Fprintln(stderr, "  observer version")
}
