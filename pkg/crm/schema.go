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
	"fmt"
	"regexp"
	"strings"

	"github.com/carverauto/devicebridge/pkg/models"
)

// identifierPattern matches Salesforce object and field API names.
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// recordIDPattern matches 15 and 18 character record ids. The key prefix may start with a digit.
var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{15}([A-Za-z0-9]{3})?$`)

// ObjectSchema names the remote object backing one entity kind.
type ObjectSchema struct {
	Object    string            `json:"object" yaml:"object"`
	NameField string            `json:"name_field" yaml:"name_field"`
	Fields    map[string]string `json:"fields" yaml:"fields"`
}

// Schema maps entity kinds and logical field names onto API names.
type Schema struct {
	Printer ObjectSchema `json:"printer" yaml:"printer"`
	Store   ObjectSchema `json:"store" yaml:"store"`
}

// DefaultSchema matches the custom objects of the paper tracking app.
func DefaultSchema() Schema {
	return Schema{
		Printer: ObjectSchema{
			Object:    "Printer__c",
			NameField: "Name",
			Fields:    map[string]string{"offline reason": "Offline_Reason__c"},
		},
		Store: ObjectSchema{
			Object:    "Store__c",
			NameField: "Name",
			Fields:    map[string]string{"current stock": "Current_Stock__c"},
		},
	}
}

func (s *Schema) object(kind models.EntityKind) (ObjectSchema, error) {
	switch kind {
	case models.EntityPrinter:
		return s.Printer, nil
	case models.EntityStore:
		return s.Store, nil
	case models.EntityUnknown:
		fallthrough
	default:
		return ObjectSchema{}, fmt.Errorf("%w: %s", ErrUnknownEntity, kind)
	}
}

func (o *ObjectSchema) field(name string) (string, error) {
	apiName, ok := o.Fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %q on %s", ErrUnknownField, name, o.Object)
	}

	return apiName, nil
}

// Validate rejects names that could not be used safely inside a query or URL path.
func (s *Schema) Validate() error {
	for _, o := range []ObjectSchema{s.Printer, s.Store} {
		names := []string{o.Object, o.NameField}
		for _, apiField := range o.Fields {
			names = append(names, apiField)
		}

		for _, name := range names {
			if !identifierPattern.MatchString(name) {
				return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
			}
		}
	}

	return nil
}

var soqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// quoteSOQL renders value as a SOQL string literal.
func quoteSOQL(value string) string {
	return "'" + soqlEscaper.Replace(value) + "'"
}

// lookupQuery selects records whose name field equals name. Object and field names
// come from a validated Schema, the name is always quoted.
func lookupQuery(o ObjectSchema, name string) string {
	return fmt.Sprintf("SELECT Id, %s FROM %s WHERE %s = %s", o.NameField, o.Object, o.NameField, quoteSOQL(name))
}
