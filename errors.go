package factorymcp

import "errors"

var (
	// ErrInvalidConfig indicates the configuration names an unknown
	// backend or is missing a required field.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrToolNotFound indicates the model requested a tool the MCP
	// server does not expose.
	ErrToolNotFound = errors.New("tool not found")
)
