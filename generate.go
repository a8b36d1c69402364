//go:generate gomarkdoc -e -f github -o README.md . --repository.url https://github.com/agentstation/leadsync --repository.default-branch master --repository.path /

// Package leadsync keeps a web front end usable while the network is down:
// it serves static resources from a versioned cache, captures writes in a
// durable queue, drains the queue on reconnect and tells every open
// browsing context about each record that reaches the remote API.
package leadsync
