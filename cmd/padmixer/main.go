// SPDX-License-Identifier: EPL-2.0

// Command padmixer plays clips through the mixing engine, records the main
// mix and lists audio endpoints.
//
// Usage:
//
//	padmixer devices [-config file]
//	padmixer play [-config file] [-record out.wav] [-monitor] [-loop] [-timeout d] clip...
//	padmixer render [-config file] [-rate hz] [-channels n] [-bits n] in out.wav
//	padmixer history [-config file] [-limit n]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ik5/padmixer/config"
	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/decode/libav"
	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/internal/logging"
)

const defaultConfigPath = "padmixer.yaml"

var errUsage = errors.New("usage: padmixer devices|play|render|history [flags] [args]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "padmixer:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	commands := map[string]func(context.Context, []string, io.Writer) error{
		"devices": runDevices,
		"play":    runPlay,
		"render":  runRender,
		"history": runHistory,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd(ctx, args[1:], stdout)
}

// setup loads the config file and installs the default logger. The
// returned func closes the log file, if any.
func setup(configPath string) (config.Config, func(), error) {
	cfg, err := config.Load(configPath, slog.Default())
	if err != nil {
		return config.Config{}, nil, err
	}

	logFile, err := logging.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFile, slog.HandlerOptions{})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("configure logger: %w", err)
	}
	closeLog := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return cfg, closeLog, nil
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML config file")
	return fs, configPath
}

func newBackend(cfg config.Config) (device.Backend, error) {
	if cfg.Backend == config.BackendVirtual {
		return device.NewVirtualBackend(
			[]string{"Virtual Output", "Virtual Monitor"},
			[]string{"Virtual Mic"},
		), nil
	}
	return device.NewMalgoBackend(slog.Default())
}

// library returns the in-process fallback decoder, or nil when the config
// turns it off.
func library(cfg config.Config) decode.OpenFunc {
	if !cfg.LibAV {
		return nil
	}
	return libav.Opener(slog.Default())
}
