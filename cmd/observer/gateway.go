package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/davidahmann/observer/core/config"
	coreerrors "github.com/davidahmann/observer/core/errors"
	"github.com/davidahmann/observer/core/gateway"
)

const exitGatewayFailure = 2

// runGateway streams gateway events as lines. Every failure exits 2; an
// interrupt while following exits 0.
func runGateway(arguments []string) int {
	flagSet := flag.NewFlagSet("gateway", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var gatewayURL string
	var streamID string
	var lane string
	var limit int
	var follow bool
	var pollInterval string
	var format string
	var outputPath string
	var helpFlag bool
	flagSet.StringVar(&configPath, "config", config.DefaultPath, "config file")
	flagSet.StringVar(&gatewayURL, "gateway-url", config.DefaultGatewayURL, "gateway base url")
	flagSet.StringVar(&streamID, "stream-id", config.DefaultStreamID, "gateway stream id")
	flagSet.StringVar(&lane, "lane", "", "gateway lane filter")
	flagSet.IntVar(&limit, "limit", config.DefaultLimit, "page size")
	flagSet.BoolVar(&follow, "follow", false, "keep polling for new events")
	flagSet.StringVar(&pollInterval, "poll-interval", "1s", "wait between empty polls (duration or seconds)")
	flagSet.StringVar(&format, "format", gateway.FormatLine, "line or json")
	flagSet.StringVar(&outputPath, "output", stdioPath, "destination, - for stdout")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := parseFlags(flagSet, arguments); err != nil {
		writeError("gateway", usageError("%v", err))
		return exitGatewayFailure
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	explicit := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	settings, err := config.Load(configPath, !explicit["config"])
	if err != nil {
		writeError("gateway", usageError("%v", err))
		return exitGatewayFailure
	}
	if !explicit["gateway-url"] {
		gatewayURL = settings.Gateway.URL
	}
	if !explicit["stream-id"] {
		streamID = settings.Gateway.StreamID
	}
	if !explicit["lane"] {
		lane = settings.Gateway.Lane
	}
	if !explicit["limit"] {
		limit = settings.Gateway.Limit
	}
	if !explicit["poll-interval"] {
		pollInterval = settings.Gateway.PollInterval
	}
	if format != gateway.FormatLine && format != gateway.FormatJSON {
		writeError("gateway", usageError("--format must be line or json"))
		return exitGatewayFailure
	}
	if limit <= 0 {
		writeError("gateway", usageError("--limit must be positive"))
		return exitGatewayFailure
	}
	interval, err := parsePollInterval(pollInterval)
	if err != nil {
		writeError("gateway", usageError("%v", err))
		return exitGatewayFailure
	}
	timeout, err := settings.Gateway.Timeout()
	if err != nil {
		writeError("gateway", usageError("%v", err))
		return exitGatewayFailure
	}

	client, err := gateway.NewClient(gatewayURL, timeout)
	if err != nil {
		writeError("gateway", err)
		return exitGatewayFailure
	}

	output := stdout
	if outputPath != stdioPath {
		// #nosec G304 -- output path is explicit local user input.
		file, err := os.Create(outputPath)
		if err != nil {
			writeError("gateway", coreerrors.Wrap(fmt.Errorf("open output: %w", err), coreerrors.CategoryIOFailure, "output_open_failed", "", false))
			return exitGatewayFailure
		}
		defer func() { _ = file.Close() }()
		output = file
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.Observe(ctx, gateway.ObserveOptions{
		Query:        gateway.Query{StreamID: streamID, Lane: lane, Limit: limit},
		Follow:       follow,
		PollInterval: interval,
	}, func(gatewayEvent map[string]any) error {
		line, err := gateway.RenderEvent(gatewayEvent, format)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(output, line+"\n"); err != nil {
			return coreerrors.Wrap(fmt.Errorf("write output: %w", err), coreerrors.CategoryIOFailure, "output_write_failed", "", false)
		}
		return nil
	})
	if err != nil {
		if isInterrupt(err) {
			return exitOK
		}
		writeError("gateway", err)
		return exitGatewayFailure
	}
	return exitOK
}

// parsePollInterval accepts a Go duration or a plain number of seconds.
func parsePollInterval(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("poll interval must be positive")
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid poll interval %q", value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("poll interval must be positive")
	}
	return parsed, nil
}
