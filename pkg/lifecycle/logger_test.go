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

package lifecycle

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicebridge/pkg/logger"
)

func TestComponentLoggerTagsEntries(t *testing.T) {
	var buf bytes.Buffer

	impl, err := newLoggerImpl(&logger.Config{Level: "info"}, &buf)
	require.NoError(t, err)

	impl.Component("bridge").Info().Str("connection_id", "abc").Msg("connection accepted")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "bridge", entry["component"])
	assert.Equal(t, "abc", entry["connection_id"])
	assert.Equal(t, "connection accepted", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	impl, err := newLoggerImpl(&logger.Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	impl.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	impl.SetDebug(true)
	impl.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	impl.SetLevel(zerolog.ErrorLevel)
	buf.Reset()
	impl.Warn().Msg("hidden again")
	assert.Zero(t, buf.Len())
}

func TestCreateComponentLoggerRejectsBadConfig(t *testing.T) {
	_, err := CreateComponentLogger("bridge", &logger.Config{Level: "chatty"})
	require.Error(t, err)

	_, err = CreateComponentLogger("bridge", &logger.Config{Output: "printer"})
	require.Error(t, err)
}
