package factorymcp

// Version is reported to MCP clients and set at build time via ldflags.
var Version = "dev"
