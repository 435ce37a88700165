// printcast streams a Bambu Lab printer's camera and live telemetry into OBS.
//
// It subscribes to the printer's MQTT report feed, keeps a set of OBS
// sources in sync with the latest report and starts or stops the stream as
// prints begin and end.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/printcast/internal/bridge"
	"github.com/nerrad567/printcast/internal/infrastructure/config"
	"github.com/nerrad567/printcast/internal/infrastructure/logging"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "PRINTCAST_CONFIG"
)

// errHelp ends run without an error after usage has been printed.
var errHelp = errors.New("help requested")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath      string
	printSceneItems bool
	showVersion     bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("printcast", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default $"+configPathEnv+" or "+defaultConfigPath+")")
	fs.BoolVar(&opts.printSceneItems, "print-scene-items", false, "print the current OBS scene layout as JSON and exit")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, errHelp
		}
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the application body, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "printcast %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Default logger until config is loaded
	log := logging.Default()
	log.Info("starting printcast",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.printSceneItems {
		cfg.App.PrintSceneItemsAndExit = true
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	log.Info("bridging printer to OBS",
		"printer", cfg.Printer.Host,
		"serial", cfg.Printer.Serial,
		"obs", cfg.OBS.URL,
		"scene", cfg.OBS.Scene,
	)

	b, err := bridge.New(cfg, log, version)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Run(ctx); err != nil {
		return err
	}

	log.Info("printcast stopped")
	return nil
}

// getConfigPath picks the config file: the --config flag, then
// PRINTCAST_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
