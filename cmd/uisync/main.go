package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func init() {
	// The UI loop must own the process's first thread on platforms that
	// insist on it, so main stays pinned to it.
	runtime.LockOSThread()
}

func main() {
	args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	if len(args) == 0 {
		printHelp()
		os.Exit(exitUsage)
	}
	_, code := dispatchSubcommand(args)
	os.Exit(code)
}

// parseGlobalFlags strips --config from the front of the arguments.
func parseGlobalFlags(raw []string) ([]string, error) {
	filtered := make([]string, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("%s requires a path", arg)
			}
			configPath = raw[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			filtered = append(filtered, raw[i:]...)
			return filtered, nil
		}
	}
	return filtered, nil
}

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "demo":
		return true, runCommand(runDemoCommand, args[1:])
	case "event":
		return true, runCommand(runEventCommand, args[1:])
	case "serve":
		return true, runCommand(runServeCommand, args[1:])
	case "tail":
		return true, runCommand(runTailCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'uisync --help' for usage.")
		return true, exitUsage
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func printHelp() {
	fmt.Println("uisync - UI-thread call marshaling and cross-process named events")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  uisync [--config PATH] COMMAND [ARGS]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  demo [-workers N] [-calls M]     Marshal calls from N threads onto the UI loop")
	fmt.Println("  event create <name>              Create a named event and broker it until interrupted")
	fmt.Println("  event get <name>                 Check that a named event is reachable")
	fmt.Println("  event post <name>                Post a named event")
	fmt.Println("  event reset <name>               Reset a named event")
	fmt.Println("  event wait <name> [-timeout D]   Wait for a named event (exit code reflects status)")
	fmt.Println("  serve [-listen ADDR] [-events a,b] [-relay URL]")
	fmt.Println("                                   Broker named events and serve metrics, health and events")
	fmt.Println("  tail [-relay URL] [-prefix P]    Print telemetry relayed over NATS as JSON lines")
	fmt.Println("  version                          Show version information")
	fmt.Println("  help                             Show this help")
	fmt.Println()
	fmt.Println("EXIT CODES:")
	fmt.Println("  0 ok, 1 general failure, 2 usage or config error, 3 timeout, 4 not initialized, 5 interrupted")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  UISYNC_EVENT_DIR        Rendezvous directory for named events")
	fmt.Println("  UISYNC_EVENT_WATCH      Close a broker's listener when its path disappears")
	fmt.Println("  UISYNC_LOG_LEVEL        debug, info, warn or error")
	fmt.Println("  UISYNC_LOG_FORMAT       json, text or auto")
	fmt.Println("  UISYNC_METRICS_LISTEN   Address for the serve command's HTTP endpoint")
	fmt.Println("  UISYNC_TRACING_ENABLED  Export spans to stderr")
	fmt.Println("  UISYNC_RELAY_URL        NATS server for relayed telemetry")
}

func printVersion() {
	fmt.Printf("uisync %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
