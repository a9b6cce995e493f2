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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicebridge/pkg/crm"
	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/models"
	"github.com/carverauto/devicebridge/pkg/natsutil"
)

func validConfig() Config {
	cfg := Default()
	cfg.Port = 5000
	cfg.Username = "bridge@example.com"
	cfg.Password = "secret"

	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Zero(t, cfg.IdleTimeout)
	assert.Zero(t, cfg.MaxLineLength)
	assert.Zero(t, cfg.MaxConnections)
	assert.Zero(t, cfg.RequestsPerSecond)
	assert.Equal(t, crm.DefaultLoginURL, cfg.CRM.LoginURL)
	assert.Zero(t, cfg.CRM.Timeout)
	assert.False(t, cfg.Events.Enabled)
	assert.Empty(t, cfg.Health.ListenAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"port too low", func(c *Config) { c.Port = 80 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"lowest port", func(c *Config) { c.Port = 1024 }, nil},
		{"highest port", func(c *Config) { c.Port = 65535 }, nil},
		{"missing username", func(c *Config) { c.Username = "" }, ErrMissingUsername},
		{"negative line length", func(c *Config) { c.MaxLineLength = -1 }, ErrNegativeLimit},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = models.Duration(-time.Second) }, ErrNegativeLimit},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -2 }, ErrNegativeLimit},
		{"rate without burst", func(c *Config) { c.RequestsPerSecond = 5; c.Burst = 0 }, ErrInvalidBurst},
		{"bad login url", func(c *Config) { c.CRM.LoginURL = "not a url" }, crm.ErrInvalidConfig},
		{"metrics without endpoint", func(c *Config) { c.Metrics.Enabled = true }, ErrMetricsEndpoint},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, natsutil.ErrNATSURLRequired},
		{"bad health addr", func(c *Config) { c.Health.ListenAddr = "nope" }, ErrInvalidHealth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, ":5000", cfg.Address())

	cfg.ListenHost = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:5000", cfg.Address())
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "bridge.json", `{
		"idle_timeout": "30s",
		"max_line_length": 256,
		"crm": {"login_url": "https://test.salesforce.com", "timeout": "10s"},
		"events": {"enabled": true, "nats_url": "nats://127.0.0.1:4222"}
	}`)

	cfg, err := Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, models.Duration(30*time.Second), cfg.IdleTimeout)
	assert.Equal(t, 256, cfg.MaxLineLength)
	assert.Equal(t, "https://test.salesforce.com", cfg.CRM.LoginURL)
	assert.Equal(t, models.Duration(10*time.Second), cfg.CRM.Timeout)
	assert.Equal(t, crm.DefaultAPIVersion, cfg.CRM.APIVersion)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, natsutil.DefaultSubject, cfg.Events.Subject)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "bridge.yaml", `
max_connections: 8
requests_per_second: 2.5
burst: 4
crm:
  schema:
    printer:
      object: Kiosk_Printer__c
      name_field: Name
      fields:
        offline reason: Status__c
health:
  listen_addr: "127.0.0.1:50051"
`)

	cfg, err := Load(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxConnections)
	assert.InDelta(t, 2.5, cfg.RequestsPerSecond, 0.0001)
	assert.Equal(t, 4, cfg.Burst)
	assert.Equal(t, "Kiosk_Printer__c", cfg.CRM.Schema.Printer.Object)
	assert.Equal(t, "Status__c", cfg.CRM.Schema.Printer.Fields["offline reason"])
	assert.Equal(t, "Store__c", cfg.CRM.Schema.Store.Object)
	assert.Equal(t, "127.0.0.1:50051", cfg.Health.ListenAddr)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)

	_, err = Load(context.Background(), writeFile(t, "bridge.toml", "port = 1"), nil)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(context.Background(), writeFile(t, "bridge.json", "{"), nil)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "bridge.json", `{"max_line_length": 256, "crm": {"client_id": "from-file"}}`)

	t.Setenv("DEVICEBRIDGE_MAX_LINE_LENGTH", "64")
	t.Setenv("DEVICEBRIDGE_IDLE_TIMEOUT", "2m")
	t.Setenv("DEVICEBRIDGE_CRM_CLIENT_ID", "from-env")
	t.Setenv("DEVICEBRIDGE_CRM_LOGIN_URL", "https://example.my.salesforce.com")
	t.Setenv("DEVICEBRIDGE_EVENTS_ENABLED", "true")
	t.Setenv("DEVICEBRIDGE_METRICS_HEADERS", `{"x-team":"kiosk"}`)
	t.Setenv("DEVICEBRIDGE_CRM_SCHEMA_STORE_OBJECT", "Shop__c")

	cfg, err := Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MaxLineLength)
	assert.Equal(t, models.Duration(2*time.Minute), cfg.IdleTimeout)
	assert.Equal(t, "from-env", cfg.CRM.ClientID)
	assert.Equal(t, "https://example.my.salesforce.com", cfg.CRM.LoginURL)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, map[string]string{"x-team": "kiosk"}, cfg.Metrics.Headers)
	assert.Equal(t, "Shop__c", cfg.CRM.Schema.Store.Object)
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	t.Setenv("DEVICEBRIDGE_MAX_CONNECTIONS", "many")

	_, err := Load(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVICEBRIDGE_MAX_CONNECTIONS")
}

func TestEnvLoaderRejectsNonStruct(t *testing.T) {
	loader := NewEnvConfigLoader(nil, EnvPrefix)

	var n int
	require.ErrorIs(t, loader.Load(context.Background(), "", &n), ErrDstMustBePointerToStruct)
	require.ErrorIs(t, loader.Load(context.Background(), "", Config{}), ErrDstMustBeNonNilPointer)
}
