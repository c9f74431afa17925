// Expo Client - session and realtime command line client for the expo platform.
//
// expoclient signs in against the expo backend, keeps the bearer token in
// the configured credential store, and streams realtime expo events to
// stdout (and optionally to a local MQTT broker).
//
// Usage:
//
//	expoclient [--config path] <command> [flags]
//
// Run "expoclient help" for the command list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the configuration file path.
const configEnv = "EXPO_CONFIG"

var errUsage = errors.New("usage error")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses global flags, loads configuration and dispatches to a command.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	global := pflag.NewFlagSet("expoclient", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(out)
	configPath := global.StringP("config", "c", "", "configuration file (default $"+configEnv+" or "+defaultConfigPath+")")
	showVersion := global.BoolP("version", "v", false, "print version and exit")
	global.Usage = func() { usage(out, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if *showVersion {
		fmt.Fprintf(out, "expoclient %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(out, global)
		return errUsage
	}
	name, cmdArgs := rest[0], rest[1:]
	if name == "help" {
		usage(out, global)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n", name)
		usage(out, global)
		return errUsage
	}

	path := getConfigPath(*configPath)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := newApp(ctx, cfg, in, out)
	if err != nil {
		return err
	}
	defer a.close()

	a.log.Debug("running command", "command", name, "config", path, "version", version)
	return cmd.run(ctx, a, cmdArgs)
}

// getConfigPath returns the flag value, then $EXPO_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

func usage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: expoclient [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, global.FlagUsages())
}
