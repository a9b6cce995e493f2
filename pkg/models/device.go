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

// Package models holds the types shared between the device protocol, the CRM client and the bridge.
package models

import "fmt"

// EntityKind selects which family of remote records a device report targets.
type EntityKind int

const (
	EntityUnknown EntityKind = iota
	EntityPrinter
	EntityStore
)

// String returns the lower-case kind name used in logs and events.
func (k EntityKind) String() string {
	switch k {
	case EntityPrinter:
		return "printer"
	case EntityStore:
		return "store"
	case EntityUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DeviceReport is one decoded status line sent by a device.
type DeviceReport struct {
	Kind  EntityKind
	Name  string
	Value int64
}

// UpdateIntent describes the single field write a report turns into.
type UpdateIntent struct {
	EntityKind EntityKind
	FilterName string
	FieldName  string
	FieldValue string
}

// Record is a reference to a remote record returned by a lookup.
type Record struct {
	ID   string
	Name string
}

// ResponseToken is the one-word acknowledgment written back per input line.
type ResponseToken string

const (
	ResponseOK    ResponseToken = "OK"
	ResponseError ResponseToken = "Error"
)
