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

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicebridge/pkg/models"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name string
		line string
		want models.DeviceReport
	}{
		{"printer paper out", "P,PrinterA,0", models.DeviceReport{Kind: models.EntityPrinter, Name: "PrinterA", Value: 0}},
		{"printer paper ok", "P,PrinterA,1", models.DeviceReport{Kind: models.EntityPrinter, Name: "PrinterA", Value: 1}},
		{"store stock", "S,Store1,42", models.DeviceReport{Kind: models.EntityStore, Name: "Store1", Value: 42}},
		{"explicit plus sign", "S,Store1,+7", models.DeviceReport{Kind: models.EntityStore, Name: "Store1", Value: 7}},
		{"negative value", "P,Lab Printer,-3", models.DeviceReport{Kind: models.EntityPrinter, Name: "Lab Printer", Value: -3}},
		{"name with quote", "S,O'Brien's,5", models.DeviceReport{Kind: models.EntityStore, Name: "O'Brien's", Value: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	lines := []string{
		"",
		"P",
		"P,PrinterA",
		"P,PrinterA,0,extra",
		"P,PrinterA,",
		"X,PrinterA,0",
		"p,PrinterA,0",
		"PS,PrinterA,0",
		"P,,0",
		"P,PrinterA,zero",
		"S,Store1,4.2",
		"S,Store1, 42",
		"S,Store1,99999999999999999999",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteResponse(&buf, models.ResponseOK))
	require.NoError(t, WriteResponse(&buf, models.ResponseError))

	assert.Equal(t, "OK\nError\n", buf.String())
}

func TestResponse(t *testing.T) {
	assert.Equal(t, models.ResponseOK, Response(nil))
	assert.Equal(t, models.ResponseError, Response(errors.New("boom")))
}
