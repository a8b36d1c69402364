// Package emoji provides symbol constants for CLI output.
package emoji

// Symbols used for status indicators in command output.
const (
	// Success marks completed operations and the active cache generation.
	Success = "✓"

	// Error marks failed operations and failed deliveries.
	Error = "✗"

	// Warning marks non-fatal problems.
	Warning = "!"

	// Optional marks absent optional values.
	Optional = "-"

	// Offline marks an unreachable network.
	Offline = "○"

	// Online marks a reachable network.
	Online = "●"
)
