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

// Package crm is the client side of the remote directory the bridge updates.
//
// The bridge only needs four operations: open a session, look records up by name,
// write one field on a record, and close the session. Connector and Session capture
// that surface; SalesforceConnector implements it against the Salesforce REST API.
package crm

import (
	"context"
	"net/http"

	"github.com/carverauto/devicebridge/pkg/models"
)

//go:generate mockgen -destination=mock_crm.go -package=crm github.com/carverauto/devicebridge/pkg/crm Connector,Session,HTTPClient

// Credentials are the login values given on the command line.
type Credentials struct {
	Username string
	Password string
}

// Connector opens sessions. Implementations must be safe for concurrent use.
type Connector interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
}

// Session is owned by a single connection handler and is not shared.
type Session interface {
	// Query returns every record of kind whose name equals name exactly.
	Query(ctx context.Context, kind models.EntityKind, name string) ([]models.Record, error)
	// Update writes one logical field. A business rule rejection is returned as *UpdateError.
	Update(ctx context.Context, kind models.EntityKind, id, field, value string) error
	Logout(ctx context.Context) error
}

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
