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

// Package config builds the immutable bridge configuration from defaults, an optional
// file and DEVICEBRIDGE_ environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/carverauto/devicebridge/pkg/crm"
	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/metrics"
	"github.com/carverauto/devicebridge/pkg/models"
	"github.com/carverauto/devicebridge/pkg/natsutil"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DEVICEBRIDGE_"

const (
	minPort     = 1024
	maxPort     = 65535
	defaultName = "device-bridge"
)

var (
	ErrInvalidPort     = errors.New("port must be between 1024 and 65535")
	ErrMissingUsername = errors.New("username is required")
	ErrNegativeLimit   = errors.New("limit must not be negative")
	ErrInvalidBurst    = errors.New("burst must be at least 1 when requests_per_second is set")
	ErrMetricsEndpoint = errors.New("metrics enabled but endpoint is empty")
	ErrInvalidHealth   = errors.New("invalid health listen_addr")
)

// ConfigLoader fills dst from a single source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// HealthConfig enables the gRPC health endpoint.
type HealthConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// Config is built once at startup and passed by value afterwards.
type Config struct {
	Port       int    `json:"port" yaml:"port"`
	ListenHost string `json:"listen_host" yaml:"listen_host"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`

	// Zero disables each of the connection limits below.
	IdleTimeout       models.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	MaxLineLength     int             `json:"max_line_length" yaml:"max_line_length"`
	MaxConnections    int             `json:"max_connections" yaml:"max_connections"`
	RequestsPerSecond float64         `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int             `json:"burst" yaml:"burst"`

	CRM     crm.Config      `json:"crm" yaml:"crm"`
	Logging logger.Config   `json:"logging" yaml:"logging"`
	Metrics metrics.Config  `json:"metrics" yaml:"metrics"`
	Events  natsutil.Config `json:"events" yaml:"events"`
	Health  HealthConfig    `json:"health" yaml:"health"`
}

// Default returns the configuration used when no file or environment overrides are given.
func Default() Config {
	return Config{
		Burst:   1,
		CRM:     crm.DefaultConfig(),
		Logging: *logger.DefaultConfig(),
		Metrics: metrics.Config{ServiceName: defaultName},
		Events: natsutil.Config{
			Stream:  natsutil.DefaultStream,
			Subject: natsutil.DefaultSubject,
		},
	}
}

// Load applies the file at path (skipped when empty) and then the environment on top of
// Default. The result is not validated; callers apply positional arguments first.
func Load(ctx context.Context, path string, log logger.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := (&FileConfigLoader{}).Load(ctx, path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := NewEnvConfigLoader(log, EnvPrefix).Load(ctx, "", &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Address is the host:port the device listener binds.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ListenHost, fmt.Sprint(c.Port))
}

// Validate checks every section and fills section defaults.
func (c *Config) Validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}

	if c.Username == "" {
		return ErrMissingUsername
	}

	limits := map[string]int64{
		"idle_timeout":    int64(c.IdleTimeout),
		"max_line_length": int64(c.MaxLineLength),
		"max_connections": int64(c.MaxConnections),
	}

	for name, value := range limits {
		if value < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeLimit, name)
		}
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests_per_second", ErrNegativeLimit)
	}

	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return ErrInvalidBurst
	}

	if err := c.CRM.Validate(); err != nil {
		return err
	}

	if _, err := c.Logging.ResolveLevel(); err != nil {
		return err
	}

	if _, err := c.Logging.ResolveOutput(); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		return ErrMetricsEndpoint
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if c.Health.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.Health.ListenAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidHealth, err)
		}
	}

	return nil
}
