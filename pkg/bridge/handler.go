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

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/carverauto/devicebridge/pkg/crm"
	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/mapping"
	"github.com/carverauto/devicebridge/pkg/metrics"
	"github.com/carverauto/devicebridge/pkg/models"
	"github.com/carverauto/devicebridge/pkg/protocol"
)

// Reasons attached to failed lines in logs, metrics and events.
const (
	ReasonMalformed      = "malformed"
	ReasonUnmappable     = "unmappable"
	ReasonLineTooLong    = "line_too_long"
	ReasonRateLimited    = "rate_limited"
	ReasonQueryFailed    = "query_failed"
	ReasonLookupMismatch = "lookup_mismatch"
	ReasonUpdateRejected = "update_rejected"
	ReasonUpdateFailed   = "update_failed"
)

// ReportPublisher receives the outcome of every answered line.
type ReportPublisher interface {
	PublishReport(ctx context.Context, outcome *models.ReportOutcome) error
}

// HandlerConfig holds the per-connection settings. Zero values disable the limits.
type HandlerConfig struct {
	Credentials       crm.Credentials
	IdleTimeout       time.Duration
	MaxLineLength     int
	RequestsPerSecond float64
	Burst             int
}

// HandlerOption configures optional collaborators of a Handler.
type HandlerOption func(*Handler)

// WithMetrics records line, session and remote call metrics.
func WithMetrics(m *metrics.BridgeMetrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithPublisher publishes a report event after each response.
func WithPublisher(p ReportPublisher) HandlerOption {
	return func(h *Handler) {
		h.publisher = p
	}
}

// Handler runs the authenticate, serve, close cycle for one device connection at a time.
// A single Handler is shared by all connections and holds no per-connection state.
type Handler struct {
	connector crm.Connector
	config    HandlerConfig
	metrics   *metrics.BridgeMetrics
	publisher ReportPublisher
	logger    logger.Logger
}

// NewHandler creates a Handler that opens one CRM session per connection.
func NewHandler(connector crm.Connector, config HandlerConfig, log logger.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		connector: connector,
		config:    config,
		logger:    log,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// connection is the state owned by a single Handle call.
type connection struct {
	id      string
	conn    net.Conn
	session crm.Session
	reader  *lineReader
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Preflight logs in and out once so bad credentials are reported before listening.
func (h *Handler) Preflight(ctx context.Context) error {
	session, err := h.connector.Login(ctx, h.config.Credentials)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSession, err)
	}

	if err := session.Logout(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Preflight logout failed")
	}

	h.logger.Info().Str("username", h.config.Credentials.Username).Msg("CRM credentials verified")

	return nil
}

// Handle serves conn until the device disconnects, a read fails or ctx is done, and then
// closes it. Each line read gets exactly one response, in order. Only a failed login is
// returned, wrapped in ErrSession; per-line failures are answered with Error.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	// Unblocks the pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c := &connection{
		id:     uuid.NewString(),
		conn:   conn,
		reader: newLineReader(conn, h.config.MaxLineLength),
	}

	c.log = h.logger.With().
		Str("connection_id", c.id).
		Str("remote_addr", remoteAddr(conn)).
		Logger()

	c.log.Info().Msg("Device connected")

	start := time.Now()
	session, err := h.connector.Login(ctx, h.config.Credentials)

	h.metrics.ObserveRemote(ctx, "login", time.Since(start), err)
	h.metrics.RecordSession(ctx, err)

	if err != nil {
		c.log.Error().Err(err).Msg("CRM login failed, closing connection")

		return fmt.Errorf("%w: %w", ErrSession, err)
	}

	c.session = session

	defer h.logout(ctx, c)

	h.metrics.ConnectionOpened(ctx)
	defer h.metrics.ConnectionClosed(ctx)

	if h.config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.config.RequestsPerSecond), h.config.Burst)
	}

	h.serve(ctx, c)

	return nil
}

func (h *Handler) serve(ctx context.Context, c *connection) {
	for {
		if h.config.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout)); err != nil {
				c.log.Warn().Err(err).Msg("Failed to set read deadline")
				return
			}
		}

		line, err := c.reader.ReadLine()

		var outcome *models.ReportOutcome

		switch {
		case err == nil:
			c.log.Debug().Str("line", line).Msg("Received line from device")

			outcome = h.process(ctx, c, line)
		case errors.Is(err, ErrLineTooLong):
			outcome = h.newOutcome(c, "")
			outcome.Reason = ReasonLineTooLong

			c.log.Warn().Int("max_line_length", h.config.MaxLineLength).Msg("Discarded over-long line")
		default:
			h.logReadError(ctx, c, err)
			return
		}

		h.metrics.RecordLine(ctx, lineOutcome(outcome), outcome.Reason)

		if err := protocol.WriteResponse(c.conn, models.ResponseToken(outcome.Response)); err != nil {
			c.log.Warn().Err(err).Msg("Failed to write response")
			return
		}

		h.publish(ctx, c, outcome)
	}
}

func (*Handler) logReadError(ctx context.Context, c *connection, err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF):
		c.log.Info().Msg("Device closed connection")
	case ctx.Err() != nil:
		c.log.Info().Msg("Shutting down connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.log.Info().Msg("Connection idle timeout")
	default:
		c.log.Warn().Err(err).Msg("Failed to read from device")
	}
}

func (*Handler) newOutcome(c *connection, line string) *models.ReportOutcome {
	return &models.ReportOutcome{
		ConnectionID: c.id,
		RemoteAddr:   remoteAddr(c.conn),
		Line:         line,
		Response:     string(models.ResponseError),
		Timestamp:    time.Now().UTC(),
	}
}

// process turns one line into at most one lookup and one update.
func (h *Handler) process(ctx context.Context, c *connection, line string) *models.ReportOutcome {
	outcome := h.newOutcome(c, line)

	report, err := protocol.Parse(line)
	if err != nil {
		outcome.Reason = ReasonMalformed
		c.log.Warn().Err(err).Str("line", line).Msg("Rejected line")

		return outcome
	}

	value := report.Value
	outcome.Kind = report.Kind.String()
	outcome.Name = report.Name
	outcome.Value = &value

	intent, err := mapping.Map(report)
	if err != nil {
		outcome.Reason = ReasonUnmappable
		c.log.Warn().Err(err).Str("line", line).Msg("Rejected line")

		return outcome
	}

	outcome.Field = intent.FieldName
	outcome.FieldValue = intent.FieldValue

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			outcome.Reason = ReasonRateLimited
			c.log.Warn().Err(err).Msg("Rate limiter wait aborted")

			return outcome
		}
	}

	start := time.Now()
	records, err := c.session.Query(ctx, intent.EntityKind, intent.FilterName)

	h.metrics.ObserveRemote(ctx, "query", time.Since(start), err)

	if err != nil {
		outcome.Reason = ReasonQueryFailed
		c.log.Error().Err(err).Str("kind", outcome.Kind).Str("name", intent.FilterName).Msg("Lookup failed")

		return outcome
	}

	if len(records) != 1 {
		outcome.Reason = ReasonLookupMismatch
		c.log.Warn().
			Err(ErrLookupMismatch).
			Str("kind", outcome.Kind).
			Str("name", intent.FilterName).
			Int("count", len(records)).
			Msg("Lookup did not match a single record")

		return outcome
	}

	outcome.RecordID = records[0].ID

	start = time.Now()
	err = c.session.Update(ctx, intent.EntityKind, outcome.RecordID, intent.FieldName, intent.FieldValue)

	h.metrics.ObserveRemote(ctx, "update", time.Since(start), err)

	var updateErr *crm.UpdateError

	switch {
	case errors.As(err, &updateErr):
		outcome.Reason = ReasonUpdateRejected

		for _, msg := range updateErr.Messages() {
			c.log.Warn().Str("record_id", outcome.RecordID).Str("error", msg).Msg("Update rejected")
		}
	case err != nil:
		outcome.Reason = ReasonUpdateFailed
		c.log.Error().Err(err).Str("record_id", outcome.RecordID).Msg("Update failed")
	default:
		outcome.Response = string(models.ResponseOK)
		c.log.Info().
			Str("kind", outcome.Kind).
			Str("name", intent.FilterName).
			Str("record_id", outcome.RecordID).
			Str("field", intent.FieldName).
			Str("value", intent.FieldValue).
			Msg("Updated record")
	}

	return outcome
}

func (h *Handler) publish(ctx context.Context, c *connection, outcome *models.ReportOutcome) {
	if h.publisher == nil {
		return
	}

	if err := h.publisher.PublishReport(ctx, outcome); err != nil {
		c.log.Warn().Err(err).Msg("Failed to publish report event")
	}
}

// logout runs even when ctx is already done.
func (h *Handler) logout(ctx context.Context, c *connection) {
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	err := c.session.Logout(ctx)

	h.metrics.ObserveRemote(ctx, "logout", time.Since(start), err)

	if err != nil {
		c.log.Warn().Err(err).Msg("CRM logout failed")
		return
	}

	c.log.Info().Msg("Connection closed")
}

func lineOutcome(outcome *models.ReportOutcome) string {
	if outcome.Response == string(models.ResponseOK) {
		return metrics.OutcomeOK
	}

	return metrics.OutcomeError
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
