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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/models"
)

type publishedMsg struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs []publishedMsg
	err  error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.msgs = append(f.msgs, publishedMsg{subject: subject, data: payload})

	return &jetstream.PubAck{Stream: DefaultStream, Sequence: uint64(len(f.msgs))}, nil
}

func TestPublishReport(t *testing.T) {
	js := &fakeJetStream{}
	publisher := NewEventPublisher(js, DefaultSubject)

	value := int64(12)
	outcome := &models.ReportOutcome{
		ConnectionID: "conn-1",
		Line:         "S,Downtown,12",
		Kind:         "store",
		Name:         "Downtown",
		Value:        &value,
		Field:        "current stock",
		FieldValue:   "12",
		RecordID:     "a01",
		Response:     "OK",
	}

	require.NoError(t, publisher.PublishReport(context.Background(), outcome))
	require.Len(t, js.msgs, 1)
	assert.Equal(t, DefaultSubject, js.msgs[0].subject)

	var event struct {
		SpecVersion string               `json:"specversion"`
		ID          string               `json:"id"`
		Type        string               `json:"type"`
		Source      string               `json:"source"`
		Time        *time.Time           `json:"time"`
		Data        models.ReportOutcome `json:"data"`
	}

	require.NoError(t, json.Unmarshal(js.msgs[0].data, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, reportEventType, event.Type)
	assert.Equal(t, reportEventSource, event.Source)
	require.NotNil(t, event.Time)
	assert.Equal(t, "conn-1", event.Data.ConnectionID)
	assert.Equal(t, "a01", event.Data.RecordID)
	require.NotNil(t, event.Data.Value)
	assert.Equal(t, int64(12), *event.Data.Value)
}

func TestPublishReportError(t *testing.T) {
	errBroken := errors.New("broken pipe")
	publisher := NewEventPublisher(&fakeJetStream{err: errBroken}, DefaultSubject)

	err := publisher.PublishReport(context.Background(), &models.ReportOutcome{Line: "x"})
	require.ErrorIs(t, err, errBroken)
}

func TestConfigValidate(t *testing.T) {
	disabled := Config{}
	require.NoError(t, disabled.Validate())

	missing := Config{Enabled: true}
	require.ErrorIs(t, missing.Validate(), ErrNATSURLRequired)

	cfg := Config{Enabled: true, NATSURL: "nats://127.0.0.1:4222"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultStream, cfg.Stream)
	assert.Equal(t, DefaultSubject, cfg.Subject)
}

func TestMatchesSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"events.devicebridge.report", "events.devicebridge.report", true},
		{"events.*.report", "events.devicebridge.report", true},
		{"events.>", "events.devicebridge.report", true},
		{"events.>", "events", false},
		{"events.*", "events.devicebridge.report", false},
		{"other.>", "events.devicebridge.report", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesSubject(tt.pattern, tt.subject))
		})
	}
}

func TestEnsureSubjectList(t *testing.T) {
	assert.Equal(t, []string{"events.>"}, ensureSubjectList([]string{"events.>"}, DefaultSubject))
	assert.Equal(t, []string{"other", DefaultSubject}, ensureSubjectList([]string{"other"}, DefaultSubject))
}

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}

	t.Cleanup(ns.Shutdown)

	return ns
}

func TestConnectCreatesStreamAndPublishes(t *testing.T) {
	ns := runJetStreamServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config{Enabled: true, NATSURL: ns.ClientURL()}
	require.NoError(t, cfg.Validate())

	publisher, nc, err := Connect(ctx, cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer nc.Close()

	require.NoError(t, publisher.PublishReport(ctx, &models.ReportOutcome{
		ConnectionID: "conn-2",
		Line:         "P,Lobby,0",
		Response:     "OK",
	}))

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, DefaultStream)
	require.NoError(t, err)

	msg, err := stream.GetLastMsgForSubject(ctx, DefaultSubject)
	require.NoError(t, err)

	var event models.CloudEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, reportEventType, event.Type)
}

func TestConnectAddsSubjectToExistingStream(t *testing.T) {
	ns := runJetStreamServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)

	defer nc.Close()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{Name: DefaultStream, Subjects: []string{"events.other"}})
	require.NoError(t, err)

	cfg := Config{Enabled: true, NATSURL: ns.ClientURL()}
	require.NoError(t, cfg.Validate())

	_, bridgeConn, err := Connect(ctx, cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer bridgeConn.Close()

	stream, err := js.Stream(ctx, DefaultStream)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"events.other", DefaultSubject}, info.Config.Subjects)
}
