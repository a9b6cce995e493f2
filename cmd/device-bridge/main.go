/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package main runs device-bridge, which relays device status lines to the CRM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/carverauto/devicebridge/pkg/bridge"
	"github.com/carverauto/devicebridge/pkg/config"
	"github.com/carverauto/devicebridge/pkg/crm"
	"github.com/carverauto/devicebridge/pkg/grpc"
	"github.com/carverauto/devicebridge/pkg/lifecycle"
	"github.com/carverauto/devicebridge/pkg/metrics"
	"github.com/carverauto/devicebridge/pkg/natsutil"
	"github.com/carverauto/devicebridge/pkg/version"
)

const programName = "device-bridge"

var (
	errArgCount    = errors.New("expected exactly 3 arguments: <port> <username> <password>")
	errInvalidPort = errors.New("port must be a number")
)

type options struct {
	configPath  string
	debug       bool
	showVersion bool
	port        int
	username    string
	password    string
}

func main() {
	ctx, stop := lifecycle.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML config file")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s [flags] <port> <username> <password>\n\nFlags:\n", programName)
		fs.PrintDefaults()
	}

	return fs
}

func parseArgs(args []string, stderr io.Writer) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	fs := newFlagSet(opts, stderr)

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	if opts.showVersion {
		return opts, fs, nil
	}

	if fs.NArg() != 3 {
		return nil, fs, fmt.Errorf("%w, got %d", errArgCount, fs.NArg())
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return nil, fs, fmt.Errorf("%w: %q", errInvalidPort, fs.Arg(0))
	}

	opts.port = port
	opts.username = fs.Arg(1)
	opts.password = fs.Arg(2)

	return opts, fs, nil
}

// run returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)

	switch {
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case err != nil:
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		fs.Usage()

		return 1
	case opts.showVersion:
		_, _ = fmt.Fprintln(stdout, version.Banner())
		return 0
	}

	cfg, err := config.Load(ctx, opts.configPath, nil)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	cfg.Port = opts.port
	cfg.Username = opts.username
	cfg.Password = opts.password

	if opts.debug {
		cfg.Logging.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		fs.Usage()

		return 1
	}

	if err := serve(ctx, &cfg, stdout); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)

		// Rejected credentials are a usage error.
		if errors.Is(err, bridge.ErrSession) {
			fs.Usage()
		}

		return 1
	}

	return 0
}

func serve(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	root, err := lifecycle.NewLoggerImpl(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log := root.Component("bridge")

	if _, err := metrics.InitializeMetrics(ctx, cfg.Metrics); err != nil && !errors.Is(err, metrics.ErrOTelMetricsDisabled) {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	defer func() {
		if err := metrics.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to flush metrics")
		}
	}()

	bridgeMetrics, err := metrics.NewBridgeMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	connector := crm.NewSalesforceConnector(cfg.CRM, &http.Client{Timeout: cfg.CRM.Timeout.Std()}, root.Component("crm"))

	handlerOpts := []bridge.HandlerOption{bridge.WithMetrics(bridgeMetrics)}

	if cfg.Events.Enabled {
		publisher, nc, err := natsutil.Connect(ctx, cfg.Events, root.Component("events"))
		if err != nil {
			return err
		}

		defer func() {
			if err := nc.Drain(); err != nil {
				log.Warn().Err(err).Msg("Failed to drain NATS connection")
			}
		}()

		handlerOpts = append(handlerOpts, bridge.WithPublisher(publisher))
	}

	handler := bridge.NewHandler(connector, bridge.HandlerConfig{
		Credentials:       crm.Credentials{Username: cfg.Username, Password: cfg.Password},
		IdleTimeout:       cfg.IdleTimeout.Std(),
		MaxLineLength:     cfg.MaxLineLength,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, log, handlerOpts...)

	server := bridge.NewServer(cfg.Address(), cfg.MaxConnections, handler, log)

	if err := server.Preflight(ctx); err != nil {
		return fmt.Errorf("login failed for %s: %w", cfg.Username, err)
	}

	if err := server.Listen(ctx); err != nil {
		return err
	}

	if cfg.Health.ListenAddr != "" {
		health := grpc.NewServer(cfg.Health.ListenAddr, root.Component("health"))
		if err := health.Listen(ctx); err != nil {
			return err
		}

		go func() {
			if err := health.Serve(); err != nil {
				log.Error().Err(err).Msg("Health server stopped")
			}
		}()

		health.SetServing(true)

		defer health.Stop(context.WithoutCancel(ctx))
	}

	_, _ = fmt.Fprintf(stdout, "Starting %s %s on port %d\n", programName, version.GetVersion(), cfg.Port)
	_, _ = fmt.Fprintln(stdout, "Press Ctrl-C to exit...")

	if err := server.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("Device listener failed")
		return err
	}

	log.Info().Msg("Shutdown complete")

	return nil
}
