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

// Package natsutil publishes bridge events to NATS JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/models"
)

const (
	DefaultStream  = "events"
	DefaultSubject = "events.devicebridge.report"

	reportEventType   = "com.carverauto.devicebridge.report"
	reportEventSource = "devicebridge/bridge"
)

var ErrNATSURLRequired = errors.New("events enabled but nats_url is empty")

// Config enables report events.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	NATSURL string `json:"nats_url" yaml:"nats_url"`
	Stream  string `json:"stream" yaml:"stream"`
	Subject string `json:"subject" yaml:"subject"`
}

// Validate fills defaults and rejects an enabled config without a server.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.NATSURL == "" {
		return ErrNATSURLRequired
	}

	if c.Stream == "" {
		c.Stream = DefaultStream
	}

	if c.Subject == "" {
		c.Subject = DefaultSubject
	}

	return nil
}

// JetStreamPublisher is the part of jetstream.JetStream the publisher needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher provides methods for publishing CloudEvents to NATS JetStream.
type EventPublisher struct {
	js      JetStreamPublisher
	subject string
}

// NewEventPublisher creates a new EventPublisher for the specified subject.
func NewEventPublisher(js JetStreamPublisher, subject string) *EventPublisher {
	return &EventPublisher{
		js:      js,
		subject: subject,
	}
}

// PublishReport publishes the outcome of one device line. The event id is used as the
// JetStream message id so redeliveries are de-duplicated.
func (p *EventPublisher) PublishReport(ctx context.Context, outcome *models.ReportOutcome) error {
	timestamp := outcome.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          reportEventSource,
		Type:            reportEventType,
		DataContentType: "application/json",
		Subject:         p.subject,
		Time:            &timestamp,
		Data:            outcome,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal report event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, eventBytes, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish report event: %w", err)
	}

	return nil
}

// Connect dials NATS, makes sure the stream captures the subject and returns a
// publisher bound to it. The caller owns the returned connection.
func Connect(ctx context.Context, cfg Config, log logger.Logger, extraOpts ...nats.Option) (*EventPublisher, *nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("device-bridge"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, nil, err
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", cfg.Stream).
		Str("subject", cfg.Subject).
		Msg("Report events enabled")

	return NewEventPublisher(js, cfg.Subject), nc, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
		}

		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		return nil
	}

	cfg := stream.CachedInfo().Config

	subjects := ensureSubjectList(cfg.Subjects, subject)
	if len(subjects) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject %s to stream %s: %w", subject, streamName, err)
	}

	return nil
}

// ensureSubjectList appends subject unless an existing pattern already matches it.
func ensureSubjectList(subjects []string, subject string) []string {
	if slices.ContainsFunc(subjects, func(pattern string) bool { return matchesSubject(pattern, subject) }) {
		return subjects
	}

	return append(subjects, subject)
}

// matchesSubject applies NATS wildcard rules: "*" matches one token, ">" the rest.
func matchesSubject(pattern, subject string) bool {
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > i
		}

		if i >= len(subjectTokens) {
			return false
		}

		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse)
}
