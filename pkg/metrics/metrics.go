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

// Package metrics records bridge activity as OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/carverauto/devicebridge/pkg/bridge"

// Line outcomes; reason carries the failure class on "error".
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// BridgeMetrics is safe for concurrent use. A nil *BridgeMetrics records nothing.
type BridgeMetrics struct {
	lines    metric.Int64Counter
	sessions metric.Int64Counter
	active   metric.Int64UpDownCounter
	remote   metric.Float64Histogram
}

// NewBridgeMetrics creates the instruments on provider.
func NewBridgeMetrics(provider metric.MeterProvider) (*BridgeMetrics, error) {
	meter := provider.Meter(meterName)

	lines, err := meter.Int64Counter("devicebridge.lines",
		metric.WithDescription("Device lines answered, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create lines counter: %w", err)
	}

	sessions, err := meter.Int64Counter("devicebridge.sessions",
		metric.WithDescription("CRM session logins, by result"))
	if err != nil {
		return nil, fmt.Errorf("create sessions counter: %w", err)
	}

	active, err := meter.Int64UpDownCounter("devicebridge.connections.active",
		metric.WithDescription("Device connections currently open"))
	if err != nil {
		return nil, fmt.Errorf("create connections counter: %w", err)
	}

	remote, err := meter.Float64Histogram("devicebridge.remote.duration",
		metric.WithDescription("CRM call latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create remote histogram: %w", err)
	}

	return &BridgeMetrics{lines: lines, sessions: sessions, active: active, remote: remote}, nil
}

// RecordLine counts one answered line. reason is omitted when empty.
func (m *BridgeMetrics) RecordLine(ctx context.Context, outcome, reason string) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}

	m.lines.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSession counts a CRM login attempt by result.
func (m *BridgeMetrics) RecordSession(ctx context.Context, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// ConnectionOpened increments the open connection gauge.
func (m *BridgeMetrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}

	m.active.Add(ctx, 1)
}

// ConnectionClosed decrements the open connection gauge.
func (m *BridgeMetrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}

	m.active.Add(ctx, -1)
}

// ObserveRemote records how long a CRM operation took.
func (m *BridgeMetrics) ObserveRemote(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.remote.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
}
