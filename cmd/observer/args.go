package main

import (
	"flag"
	"strings"
)

// splitCommand picks the subcommand from the arguments after the program
// name. No arguments, or a leading flag other than version and help, selects
// the diagnostic mode so `observer --input trace.jsonl` rewrites a trace.
func splitCommand(arguments []string) (string, []string) {
	if len(arguments) == 0 {
		return modeDiagnostic, nil
	}
	first := arguments[0]
	switch first {
	case "--version", "-v":
		return "version", arguments[1:]
	case "--help", "-h":
		return "help", arguments[1:]
	}
	if first == "--" || isFlagToken(first) {
		return modeDiagnostic, arguments
	}
	return first, arguments[1:]
}

// parseFlags lets flags appear before or after positionals. Whether a flag
// consumes the next argument is read from flagSet, so flags must be defined
// before the call.
func parseFlags(flagSet *flag.FlagSet, arguments []string) error {
	return flagSet.Parse(flagsFirst(flagSet, arguments))
}

// flagsFirst moves flag tokens and their values ahead of positionals. The
// positionals follow a "--" so one that came after a "--" on the command line
// is never read as a flag.
func flagsFirst(flagSet *flag.FlagSet, arguments []string) []string {
	flags := make([]string, 0, len(arguments))
	positionals := make([]string, 0, len(arguments))

	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == "--" {
			positionals = append(positionals, arguments[index+1:]...)
			break
		}
		if !isFlagToken(argument) {
			positionals = append(positionals, argument)
			continue
		}
		flags = append(flags, argument)
		if takesValue(flagSet, argument) && index+1 < len(arguments) {
			index++
			flags = append(flags, arguments[index])
		}
	}

	if len(positionals) == 0 {
		return flags
	}
	flags = append(flags, "--")
	return append(flags, positionals...)
}

// isFlagToken is false for "-", which names stdin or stdout.
func isFlagToken(argument string) bool {
	return len(argument) > 1 && strings.HasPrefix(argument, "-")
}

func takesValue(flagSet *flag.FlagSet, argument string) bool {
	name := strings.TrimLeft(argument, "-")
	if strings.Contains(name, "=") {
		return false
	}
	defined := flagSet.Lookup(name)
	if defined == nil {
		return false
	}
	boolFlag, ok := defined.Value.(interface{ IsBoolFlag() bool })
	return !ok || !boolFlag.IsBoolFlag()
}
