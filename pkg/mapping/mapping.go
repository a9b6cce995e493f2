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

// Package mapping turns device reports into the field update to apply on the CRM.
package mapping

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/carverauto/devicebridge/pkg/models"
)

// Logical field names. The CRM schema resolves them to API field names.
const (
	FieldOfflineReason = "offline reason"
	FieldCurrentStock  = "current stock"
)

const (
	PaperOut = "Paper Out"
	PaperOK  = "Paper OK"
)

// ErrUnmappableReport is returned for reports whose kind has no mapping.
var ErrUnmappableReport = errors.New("unmappable report")

// Map derives the update for a report. Only zero and non-zero are distinguished for printers.
func Map(report models.DeviceReport) (models.UpdateIntent, error) {
	intent := models.UpdateIntent{
		EntityKind: report.Kind,
		FilterName: report.Name,
	}

	switch report.Kind {
	case models.EntityPrinter:
		intent.FieldName = FieldOfflineReason
		intent.FieldValue = PaperOK

		if report.Value == 0 {
			intent.FieldValue = PaperOut
		}
	case models.EntityStore:
		intent.FieldName = FieldCurrentStock
		intent.FieldValue = strconv.FormatInt(report.Value, 10)
	case models.EntityUnknown:
		fallthrough
	default:
		return models.UpdateIntent{}, fmt.Errorf("%w: %s", ErrUnmappableReport, report.Kind)
	}

	return intent, nil
}
