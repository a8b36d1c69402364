// Package openapi embeds the OpenAPI specification of the leadsync local API.
// The file is embedded at build time and served by the sidecar at runtime.
package openapi

import _ "embed"

// SpecYAML contains the OpenAPI 3.0 specification in YAML format.
// Served at: GET /_leadsync/v1/openapi.yaml, and converted for openapi.json.
//
//go:embed openapi.yaml
var SpecYAML []byte
