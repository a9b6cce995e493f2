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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"

	"github.com/carverauto/devicebridge/pkg/models"
	"github.com/carverauto/devicebridge/pkg/version"
)

// ErrOTelMetricsDisabled is returned by InitializeMetrics when no exporter is configured.
var ErrOTelMetricsDisabled = errors.New("OTel metrics exporter disabled")

const (
	defaultServiceName    = "device-bridge"
	defaultExportInterval = 15 * time.Second
)

// The installed provider, kept so Shutdown can flush it.
var (
	exportMu       sync.Mutex
	exportProvider *sdkmetric.MeterProvider
)

// Config selects the OTLP collector metrics are pushed to.
type Config struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
	// ExportInterval of zero means 15s.
	ExportInterval models.Duration `json:"export_interval" yaml:"export_interval"`
}

func (c *Config) serviceName() string {
	if c.ServiceName == "" {
		return defaultServiceName
	}

	return c.ServiceName
}

func (c *Config) interval() time.Duration {
	if c.ExportInterval <= 0 {
		return defaultExportInterval
	}

	return c.ExportInterval.Std()
}

func (c *Config) exporterOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.Endpoint)}

	if c.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(c.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(c.Headers))
	}

	return opts
}

// InitializeMetrics installs an OTLP gRPC backed MeterProvider as the global provider.
// Repeated calls return the provider installed first.
func InitializeMetrics(ctx context.Context, config Config) (*sdkmetric.MeterProvider, error) {
	if !config.Enabled || config.Endpoint == "" {
		return nil, ErrOTelMetricsDisabled
	}

	exportMu.Lock()
	defer exportMu.Unlock()

	if exportProvider != nil {
		return exportProvider, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx, config.exporterOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(config.serviceName()),
		semconv.ServiceVersion(version.GetVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	exportProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(config.interval()))),
	)

	otel.SetMeterProvider(exportProvider)

	return exportProvider, nil
}

// Shutdown flushes pending data and stops the exporter. It is a no-op when nothing
// was installed.
func Shutdown(ctx context.Context) error {
	exportMu.Lock()
	defer exportMu.Unlock()

	if exportProvider == nil {
		return nil
	}

	err := exportProvider.Shutdown(ctx)
	exportProvider = nil

	return err
}
