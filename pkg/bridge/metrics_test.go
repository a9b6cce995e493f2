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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/devicebridge/pkg/crm"
	"github.com/carverauto/devicebridge/pkg/metrics"
	"github.com/carverauto/devicebridge/pkg/models"
)

func TestHandleRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	bridgeMetrics, err := metrics.NewBridgeMetrics(provider)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	connector := crm.NewMockConnector(ctrl)
	session := crm.NewMockSession(ctrl)

	connector.EXPECT().Login(gomock.Any(), testCreds).Return(session, nil)
	session.EXPECT().Query(gomock.Any(), models.EntityStore, "Downtown").Return([]models.Record{{ID: "s01"}}, nil)
	session.EXPECT().Update(gomock.Any(), models.EntityStore, "s01", "current stock", "2").Return(nil)
	session.EXPECT().Logout(gomock.Any()).Return(nil)

	d := startHandler(t, newTestHandler(connector, HandlerConfig{}, WithMetrics(bridgeMetrics)))
	d.send("S,Downtown,2\n", "S,Downtown\n")
	d.expect("OK", "Error")

	require.NoError(t, d.conn.CloseWrite())
	require.NoError(t, d.finish())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	lines := map[string]int64{}
	active := int64(-1)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			switch m.Name {
			case "devicebridge.lines":
				for _, dp := range sum.DataPoints {
					outcome, _ := dp.Attributes.Value("outcome")
					lines[outcome.AsString()] += dp.Value
				}
			case "devicebridge.connections.active":
				active = 0
				for _, dp := range sum.DataPoints {
					active += dp.Value
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{metrics.OutcomeOK: 1, metrics.OutcomeError: 1}, lines)
	assert.Equal(t, int64(0), active)
}
