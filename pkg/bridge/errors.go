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

// Package bridge accepts device connections and turns each status line into a CRM update.
package bridge

import "errors"

var (
	// ErrListen is fatal: the device listener could not be bound or stopped accepting.
	ErrListen = errors.New("device listener failed")
	// ErrSession means the CRM login for a connection failed and the connection was dropped.
	ErrSession = errors.New("failed to open CRM session")
	// ErrLookupMismatch is returned when a lookup by name does not yield exactly one record.
	ErrLookupMismatch = errors.New("lookup did not match exactly one record")
	// ErrLineTooLong is returned by the line reader when max_line_length is exceeded.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)
