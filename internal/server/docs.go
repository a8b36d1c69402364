// Package server provides the local HTTP surface of leadsync.
//
// This file contains general API documentation annotations for Swag/OpenAPI generation.
// Individual endpoint annotations live in the handler files.
package server

// @title Leadsync API
// @version 1.0
// @description Local API of the offline-resilient submission proxy. Submissions are
// @description delivered to the remote API when the network is up and queued durably
// @description when it is not. Record events are fanned out to every attached tab
// @description over WebSocket and Server-Sent Events.
//
// @contact.name Leadsync Project
// @contact.url https://github.com/agentstation/leadsync
//
// @license.name MIT
// @license.url https://github.com/agentstation/leadsync/blob/master/LICENSE
//
// @host 127.0.0.1:8787
// @BasePath /_leadsync/v1
//
// @securityDefinitions.apikey AdminKeyAuth
// @in header
// @name X-Leadsync-Key
// @description Admin key for sync triggers and queue purges (optional, configurable)
