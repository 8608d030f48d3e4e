// Package mcp exposes the reaction trial as Model Context Protocol tools.
//
// The client holds no trial state. Every tool call is forwarded to the REST
// API and the JSON response is rendered as text for the model, so an MCP
// server can run in a separate process (stdio mode) or be mounted on the
// API server at /mcp.
package mcp
