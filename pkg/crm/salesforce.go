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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/carverauto/devicebridge/pkg/logger"
	"github.com/carverauto/devicebridge/pkg/models"
	"github.com/carverauto/devicebridge/pkg/version"
)

const (
	DefaultLoginURL   = "https://login.salesforce.com"
	DefaultAPIVersion = "v59.0"

	maxErrorBodyBytes = 64 << 10
)

// Config selects the Salesforce org and the objects the bridge writes to.
type Config struct {
	LoginURL     string          `json:"login_url" yaml:"login_url"`
	APIVersion   string          `json:"api_version" yaml:"api_version"`
	ClientID     string          `json:"client_id" yaml:"client_id"`
	ClientSecret string          `json:"client_secret" yaml:"client_secret"`
	Timeout      models.Duration `json:"timeout" yaml:"timeout"`
	Schema       Schema          `json:"schema" yaml:"schema"`
}

// DefaultConfig targets the production login host with the default schema. A zero
// Timeout leaves requests unbounded.
func DefaultConfig() Config {
	return Config{
		LoginURL:   DefaultLoginURL,
		APIVersion: DefaultAPIVersion,
		Schema:     DefaultSchema(),
	}
}

// Validate checks the pieces needed to build requests.
func (c *Config) Validate() error {
	u, err := url.Parse(c.LoginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid login_url %q", ErrInvalidConfig, c.LoginURL)
	}

	if !strings.HasPrefix(c.APIVersion, "v") {
		return fmt.Errorf("%w: api_version must look like v59.0, got %q", ErrInvalidConfig, c.APIVersion)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	return c.Schema.Validate()
}

type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

type queryResponse struct {
	TotalSize int                          `json:"totalSize"`
	Done      bool                         `json:"done"`
	Records   []map[string]json.RawMessage `json:"records"`
}

// SalesforceConnector logs in with the OAuth username-password flow.
type SalesforceConnector struct {
	config     Config
	httpClient HTTPClient
	logger     logger.Logger
}

// NewSalesforceConnector builds a connector. A nil httpClient gets a default client
// honouring config.Timeout.
func NewSalesforceConnector(config Config, httpClient HTTPClient, log logger.Logger) *SalesforceConnector {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout.Std(),
		}
	}

	return &SalesforceConnector{
		config:     config,
		httpClient: httpClient,
		logger:     log,
	}
}

// Login runs the OAuth 2.0 username-password flow against the login host.
func (c *SalesforceConnector) Login(ctx context.Context, creds Credentials) (Session, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(c.config.LoginURL, "/") + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: connectorTransport{connector: c}})

	token, err := oauthConfig.PasswordCredentialsToken(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, loginError(err)
	}

	instanceURL, _ := token.Extra("instance_url").(string)
	if token.AccessToken == "" || instanceURL == "" {
		return nil, fmt.Errorf("%w: token response missing access_token or instance_url", ErrAuthFailed)
	}

	c.logger.Debug().
		Str("instance_url", instanceURL).
		Msg("Opened CRM session")

	return &salesforceSession{
		connector:   c,
		accessToken: token.AccessToken,
		instanceURL: strings.TrimRight(instanceURL, "/"),
	}, nil
}

// loginError classifies a token endpoint failure. Transport failures are remote call
// errors, everything the endpoint answered is an authentication failure.
func loginError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		var oauthErr oauthError
		if jsonErr := json.Unmarshal(retrieveErr.Body, &oauthErr); jsonErr == nil && oauthErr.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrAuthFailed, oauthErr.Error, oauthErr.Description)
		}

		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		return fmt.Errorf("%w: %w: %d, response: %s", ErrAuthFailed, ErrUnexpectedStatusCode, status, string(retrieveErr.Body))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return remoteError("login", err)
	}

	return fmt.Errorf("%w: %w", ErrAuthFailed, err)
}

// connectorTransport sends the token request through the injected HTTPClient.
type connectorTransport struct {
	connector *SalesforceConnector
}

func (t connectorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.connector.do(req.Clone(req.Context()))
}

func (c *SalesforceConnector) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	return c.httpClient.Do(req)
}

// closeResponse closes the HTTP response body, logging any errors.
func (c *SalesforceConnector) closeResponse(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to close response body")
	}
}

type salesforceSession struct {
	connector   *SalesforceConnector
	accessToken string
	instanceURL string
	closed      bool
}

func (s *salesforceSession) dataURL(path string) string {
	return s.instanceURL + "/services/data/" + s.connector.config.APIVersion + path
}

func (s *salesforceSession) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	return req, nil
}

func (s *salesforceSession) Query(ctx context.Context, kind models.EntityKind, name string) ([]models.Record, error) {
	object, err := s.connector.config.Schema.object(kind)
	if err != nil {
		return nil, err
	}

	soql := lookupQuery(object, name)
	endpoint := s.dataURL("/query?" + url.Values{"q": {soql}}.Encode())

	req, err := s.newRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	s.connector.logger.Debug().Str("soql", soql).Msg("Querying CRM")

	resp, err := s.connector.do(req)
	if err != nil {
		return nil, remoteError("query", err)
	}
	defer s.connector.closeResponse(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, remoteError("query", fmt.Errorf("%w: %d, response: %s", ErrUnexpectedStatusCode, resp.StatusCode, string(body)))
	}

	var result queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, remoteError("query", fmt.Errorf("decode query response: %w", err))
	}

	records := make([]models.Record, 0, len(result.Records))

	for _, raw := range result.Records {
		var record models.Record

		if err := json.Unmarshal(raw["Id"], &record.ID); err != nil {
			return nil, remoteError("query", fmt.Errorf("decode record id: %w", err))
		}

		if nameValue, ok := raw[object.NameField]; ok {
			_ = json.Unmarshal(nameValue, &record.Name)
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *salesforceSession) Update(ctx context.Context, kind models.EntityKind, id, field, value string) error {
	object, err := s.connector.config.Schema.object(kind)
	if err != nil {
		return err
	}

	apiField, err := object.field(field)
	if err != nil {
		return err
	}

	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("%w: record id %q", ErrInvalidIdentifier, id)
	}

	payload, err := json.Marshal(map[string]string{apiField: value})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := s.dataURL("/sobjects/" + object.Object + "/" + id)

	req, err := s.newRequest(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.connector.do(req)
	if err != nil {
		return remoteError("update", err)
	}
	defer s.connector.closeResponse(resp)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusBadRequest, http.StatusNotFound:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		var apiErrors []APIError
		if err := json.Unmarshal(body, &apiErrors); err == nil && len(apiErrors) > 0 {
			return &UpdateError{RecordID: id, Errors: apiErrors}
		}

		return remoteError("update", fmt.Errorf("%w: %d, response: %s", ErrUnexpectedStatusCode, resp.StatusCode, string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return remoteError("update", fmt.Errorf("%w: %d, response: %s", ErrUnexpectedStatusCode, resp.StatusCode, string(body)))
	}
}

// Logout revokes the access token. The session is unusable afterwards even if the
// revoke call fails.
func (s *salesforceSession) Logout(ctx context.Context) error {
	if s.closed {
		return nil
	}

	form := url.Values{"token": {s.accessToken}}

	req, err := s.newRequest(ctx, http.MethodPost, s.instanceURL+"/services/oauth2/revoke", strings.NewReader(form.Encode()))
	s.closed = true

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()

	resp, err := s.connector.do(req)
	if err != nil {
		return remoteError("logout", err)
	}
	defer s.connector.closeResponse(resp)

	if resp.StatusCode != http.StatusOK {
		return remoteError("logout", fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode))
	}

	s.connector.logger.Debug().
		Dur("duration", time.Since(start)).
		Msg("Closed CRM session")

	return nil
}
