// Package server provides the local HTTP surface of leadsync.
//
// The server composes a running leadsync.Client with the HTTP layers:
//
//   - Server: lifecycle of the realtime transports
//   - Config: listen address, admin key, limits and timeouts
//   - Router: API routes under the path prefix, the intercepting proxy for the rest
//   - Handlers: HTTP request handlers organized by domain
//
// Usage:
//
//	client, err := leadsync.New(ctx, leadsync.WithAPI(apiURL), leadsync.WithUpstream(appURL))
//	if err != nil {
//	    return err
//	}
//	srv := server.New(client, server.DefaultConfig(), logger)
//	srv.Start()
//	http.ListenAndServe("127.0.0.1:8787", srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
