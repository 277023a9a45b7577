// Package meta holds build metadata shared by the CLI subcommands.
package meta

// Version is the gosfmcp release version. Overridden at build time via
// -ldflags "-X github.com/veldrane/snowflake-mcp/internal/meta.Version=...".
var Version = "1.0.0"
