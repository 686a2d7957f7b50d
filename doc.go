// Package mcp implements the server side of the Model Context Protocol: a
// transport-neutral JSON-RPC 2.0 session core with the MCP handler
// families (tools, prompts, resources, completions, logging, sampling,
// roots), bidirectional request correlation, progress routing, and
// cancellation, plus stdio and HTTP+SSE transport adapters.
package mcp
