// Package handlers provides HTTP request handlers for the leadsync local API.
//
// Handlers are organized by concern:
//
//   - submissions.go: submit, list, get and purge queued submissions
//   - sync.go: manual drain trigger
//   - health.go: health and readiness checks
//   - realtime.go: WebSocket and SSE cross-tab transports
//   - openapi.go: OpenAPI specification endpoints
//
// Handlers receive their dependencies through Deps and map typed errors
// onto the response envelope with response.ErrorFromType.
package handlers

//go:generate gomarkdoc --output README.md .
