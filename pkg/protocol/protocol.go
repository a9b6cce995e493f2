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

// Package protocol decodes the comma separated status lines devices send and encodes the replies.
//
// A request line is "<kind>,<name>,<value>" where kind is "P" (printer) or "S" (store),
// name is non-empty and value is a base 10 integer. Every request is answered with a
// single "OK" or "Error" line.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carverauto/devicebridge/pkg/models"
)

const (
	fieldSeparator = ","
	fieldCount     = 3

	kindPrinter = "P"
	kindStore   = "S"
)

// ErrMalformedLine is wrapped by every Parse failure.
var ErrMalformedLine = errors.New("malformed line")

// Parse decodes one line, without its trailing newline, into a DeviceReport.
func Parse(line string) (models.DeviceReport, error) {
	fields := strings.Split(line, fieldSeparator)
	if len(fields) != fieldCount {
		return models.DeviceReport{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedLine, fieldCount, len(fields))
	}

	var kind models.EntityKind

	switch fields[0] {
	case kindPrinter:
		kind = models.EntityPrinter
	case kindStore:
		kind = models.EntityStore
	default:
		return models.DeviceReport{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedLine, fields[0])
	}

	if fields[1] == "" {
		return models.DeviceReport{}, fmt.Errorf("%w: empty name", ErrMalformedLine)
	}

	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return models.DeviceReport{}, fmt.Errorf("%w: value %q is not an integer", ErrMalformedLine, fields[2])
	}

	return models.DeviceReport{Kind: kind, Name: fields[1], Value: value}, nil
}

// WriteResponse writes the token followed by a newline.
func WriteResponse(w io.Writer, token models.ResponseToken) error {
	_, err := io.WriteString(w, string(token)+"\n")

	return err
}

// Response maps a processing result to the token the device sees.
func Response(err error) models.ResponseToken {
	if err != nil {
		return models.ResponseError
	}

	return models.ResponseOK
}
