// Package mcp serves a plan context store as a set of MCP tools over stdio
// or streamable HTTP.
package mcp

import (
	"fmt"

	mcplib "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"
)

const (
	// ServerName is the name advertised to MCP clients
	ServerName = "plancontextd"

	// DefaultHTTPPath is the endpoint of the HTTP transport
	DefaultHTTPPath = "/mcp"
)

// NewTransport builds the server side transport for kind ("stdio" or "http")
func NewTransport(kind, addr string) (transport.Transport, error) {
	switch kind {
	case "stdio":
		return stdio.NewStdioServerTransport(), nil
	case "http":
		if addr == "" {
			return nil, fmt.Errorf("http transport requires an address")
		}
		return http.NewHTTPTransport(DefaultHTTPPath).WithAddr(addr), nil
	default:
		return nil, fmt.Errorf("unknown MCP transport %q", kind)
	}
}

// NewServer creates an MCP server on t with every context tool registered
func NewServer(t transport.Transport, tools *ContextTools, version string) (*mcplib.Server, error) {
	server := mcplib.NewServer(
		t,
		mcplib.WithName(ServerName),
		mcplib.WithInstructions("Tracks which execution plan is active for a project or session. Contexts expire after a timeout unless extended."),
		mcplib.WithVersion(version),
	)
	if err := tools.Register(server); err != nil {
		return nil, err
	}
	return server, nil
}
