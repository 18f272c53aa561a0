package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/observer/core/errors"
	"github.com/davidahmann/observer/core/fsx"
	"github.com/davidahmann/observer/core/trace"
)

const (
	modeDiagnostic = "diagnostic"
	modeExplain    = "explain"
	modeProject    = "project"
	modeDiff       = "diff"
	modeSummary    = "summary"
)

const stdioPath = "-"

func runTraceMode(mode string, arguments []string) int {
	flagSet := flag.NewFlagSet(mode, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var inputPath string
	var outputPath string
	var referencePath string
	var helpFlag bool
	flagSet.StringVar(&inputPath, "input", stdioPath, "trace to read, - for stdin")
	flagSet.StringVar(&outputPath, "output", stdioPath, "destination, - for stdout")
	flagSet.StringVar(&referencePath, "reference", "", "reference trace in full trace format")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := parseFlags(flagSet, arguments); err != nil {
		writeError(mode, usageError("%v", err))
		return exitInvalidInput
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		writeError(mode, usageError("unexpected positional arguments"))
		return exitInvalidInput
	}

	events, err := readTrace(inputPath, mode == modeProject)
	if err != nil {
		writeError(mode, err)
		return exitCodeForInputError(err)
	}
	var reference []trace.ObservationEvent
	if strings.TrimSpace(referencePath) != "" {
		reference, err = readTrace(referencePath, false)
		if err != nil {
			writeError(mode, err)
			return exitCodeForInputError(err)
		}
	}
	if mode == modeDiff && reference == nil {
		writeError(mode, usageError("diff requires --reference"))
		return exitInvalidInput
	}

	events = trace.ApplyTraceDiagnostics(events, reference)
	traceDiagnostics := trace.TraceDiagnostics(events, reference)

	err = writeOutput(outputPath, func(writer io.Writer) error {
		switch mode {
		case modeExplain:
			return writeLines(writer, trace.ExplainLines(events, traceDiagnostics))
		case modeDiff:
			return writeLines(writer, trace.DiffLines(events, traceDiagnostics))
		case modeSummary:
			return writeLines(writer, trace.SummaryLines(events))
		default:
			return trace.WriteEvents(events, writer)
		}
	})
	if err != nil {
		writeError(mode, err)
		return exitOutputFailure
	}
	return exitOK
}

func readTrace(path string, expectRaw bool) ([]trace.ObservationEvent, error) {
	if path == stdioPath {
		return trace.ReadEvents(stdin, expectRaw)
	}
	// #nosec G304 -- trace path is explicit local user input.
	file, err := os.Open(path)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("open trace: %w", err), coreerrors.CategoryIOFailure, "trace_open_failed", "check the trace path", false)
	}
	defer func() { _ = file.Close() }()
	return trace.ReadEvents(file, expectRaw)
}

// writeOutput hands render a writer for path. File output only replaces the
// destination once render succeeds.
func writeOutput(path string, render func(io.Writer) error) error {
	if path == stdioPath {
		return render(stdout)
	}
	file, err := fsx.CreateAtomic(path, 0o644)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("open output: %w", err), coreerrors.CategoryIOFailure, "output_open_failed", "check the output directory exists and is writable", false)
	}
	if err := render(file); err != nil {
		_ = file.Abort()
		return err
	}
	if err := file.Commit(); err != nil {
		return coreerrors.Wrap(fmt.Errorf("commit output: %w", err), coreerrors.CategoryIOFailure, "output_commit_failed", "", false)
	}
	return nil
}

func writeLines(writer io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := io.WriteString(writer, line+"\n"); err != nil {
			return coreerrors.Wrap(fmt.Errorf("write output: %w", err), coreerrors.CategoryIOFailure, "output_write_failed", "", false)
		}
	}
	return nil
}
