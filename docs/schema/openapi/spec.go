// Package openapi embeds the OpenAPI description of the assemblycore HTTP API.
package openapi

import _ "embed"

// APISpec contains the OpenAPI document served at /api/openapi.yaml.
//
//go:embed assemblycore.yaml
var APISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), APISpec...)
}
