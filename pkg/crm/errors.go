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

package crm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthFailed           = errors.New("authentication failed")
	ErrRemoteCall           = errors.New("remote call failed")
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrSessionClosed        = errors.New("session closed")
	ErrUnknownEntity        = errors.New("no object configured for entity kind")
	ErrUnknownField         = errors.New("no API field configured")
	ErrInvalidIdentifier    = errors.New("invalid API identifier")
	ErrInvalidConfig        = errors.New("invalid CRM configuration")
)

// APIError is one entry of a Salesforce error response body.
type APIError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// UpdateError reports that the CRM refused to apply an update.
type UpdateError struct {
	RecordID string
	Errors   []APIError
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update of %s rejected: %s", e.RecordID, strings.Join(e.Messages(), "; "))
}

// Messages returns each rejection formatted as "CODE: message".
func (e *UpdateError) Messages() []string {
	out := make([]string, 0, len(e.Errors))

	for _, apiErr := range e.Errors {
		if apiErr.ErrorCode == "" {
			out = append(out, apiErr.Message)
			continue
		}

		out = append(out, apiErr.ErrorCode+": "+apiErr.Message)
	}

	return out
}

func remoteError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteCall, op, err)
}
