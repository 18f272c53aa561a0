package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/davidahmann/observer/core/config"
	"github.com/davidahmann/observer/core/gateway"
	"github.com/davidahmann/observer/core/journal"
	"github.com/davidahmann/observer/core/observer"
	"github.com/davidahmann/observer/core/server"
	"github.com/davidahmann/observer/core/telemetry"
)

const (
	exitServeFailure = 2
	shutdownTimeout  = 5 * time.Second
)

func runServe(arguments []string) int {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var listenAddr string
	var helpFlag bool
	flagSet.StringVar(&configPath, "config", config.DefaultPath, "config file")
	flagSet.StringVar(&listenAddr, "listen", "", "listen address, overrides server.listen")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := parseFlags(flagSet, arguments); err != nil {
		writeError("serve", usageError("%v", err))
		return exitInvalidInput
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		writeError("serve", usageError("unexpected positional arguments"))
		return exitInvalidInput
	}
	explicitConfig := false
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})
	settings, err := config.Load(configPath, !explicitConfig)
	if err != nil {
		writeError("serve", usageError("%v", err))
		return exitInvalidInput
	}
	if strings.TrimSpace(listenAddr) != "" {
		settings.Server.Listen = strings.TrimSpace(listenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", settings.Server.Listen)
	if err != nil {
		writeError("serve", err)
		return exitServeFailure
	}
	if err := serve(ctx, settings, listener); err != nil {
		writeError("serve", err)
		return exitServeFailure
	}
	return exitOK
}

// serve runs the HTTP server on listener until ctx is done, then drains
// in-flight requests.
func serve(ctx context.Context, settings config.Config, listener net.Listener) error {
	logger := newLogger(settings.Log, stderr)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint: settings.Telemetry.Endpoint,
		Disabled: settings.Telemetry.Disabled,
	})
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	options := observer.Options{Logger: logger, Tracer: telemetry.Tracer("observer")}
	var archiveReader server.ArchiveReader
	if settings.Journal.Path != "" {
		archive, err := journal.Open(settings.Journal.Path)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() { _ = archive.Close() }()
		options.Journal = archive
		archiveReader = archive
		logger.Info("journal enabled", "path", settings.Journal.Path)
	}
	live := observer.New(options)

	timeout, err := settings.Gateway.Timeout()
	if err != nil {
		_ = listener.Close()
		return err
	}
	client, err := gateway.NewClient(settings.Gateway.URL, timeout)
	if err != nil {
		_ = listener.Close()
		return err
	}

	handler, err := server.NewHandler(server.Config{
		Observer:        live,
		Gateway:         client,
		Archive:         archiveReader,
		TailLimit:       settings.Gateway.Limit,
		MaxRequestBytes: settings.Server.MaxRequestBytes,
		Logger:          logger,
		Tracer:          telemetry.Tracer("server"),
	})
	if err != nil {
		_ = listener.Close()
		return err
	}
	httpServer := server.NewHTTPServer(listener.Addr().String(), handler)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	logger.Info("observer listening", "addr", listener.Addr().String(), "gateway", settings.Gateway.URL, "version", version)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("observer shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
