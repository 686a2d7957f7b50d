package mcp

import (
	"context"
	"fmt"
	"strings"
)

// ToolHandler executes one tool call. The returned value is normalized
// into the wire shape by the rules of normalizeContentList; returning a
// ToolError produces an isError result, returning a JSONRPCError puts a
// protocol error on the wire. A returned *AsyncResult is awaited and its
// outcome converted by the same rules.
type ToolHandler func(ctx context.Context, ex *Exchange, args map[string]any) (any, error)

// Tool is a server-exposed, name-addressed function with a JSON Schema
// input. InputSchema is advertised verbatim; arguments are not validated
// against it.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

// ToolError is a domain-level tool failure. It is not a JSON-RPC error:
// it becomes a successful tools/call response with isError set.
type ToolError struct {
	Content []Content
}

func (e ToolError) Error() string {
	var parts []string
	for _, c := range e.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "; ")
}

// ToolErrorf builds a ToolError with a single text content element.
func ToolErrorf(format string, args ...any) ToolError {
	return ToolError{Content: []Content{TextContent(fmt.Sprintf(format, args...))}}
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type callToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

func handleToolsList(_ context.Context, ex *Exchange, _ any) (any, error) {
	s := ex.sess
	s.mu.Lock()
	tools := s.tools
	s.mu.Unlock()

	res := toolsListResult{Tools: make([]toolDescriptor, 0, len(tools))}
	for _, t := range tools {
		res.Tools = append(res.Tools, toolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return res, nil
}

func handleToolsCall(ctx context.Context, ex *Exchange, params any) (any, error) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	s := ex.sess
	s.mu.Lock()
	tool, ok := s.tools[p.Name]
	s.mu.Unlock()
	if !ok {
		return nil, invalidParams(fmt.Sprintf("Tool %s not found", p.Name))
	}

	convert := func(v any, err error) (any, error) {
		if err != nil {
			if rpcErr, isRPC := err.(JSONRPCError); isRPC {
				return nil, rpcErr
			}
			if toolErr, isTool := err.(ToolError); isTool {
				return callToolResult{Content: toolErr.Content, IsError: true}, nil
			}
			return callToolResult{Content: []Content{TextContent(err.Error())}, IsError: true}, nil
		}

		if toolErr, isTool := v.(ToolError); isTool {
			return callToolResult{Content: toolErr.Content, IsError: true}, nil
		}
		return callToolResult{Content: normalizeContentList(v), IsError: false}, nil
	}

	v, err := tool.Handler(ctx, ex, p.Arguments)
	if async, isAsync := v.(*AsyncResult); isAsync && err == nil {
		return async.transform(convert), nil
	}
	return convert(v, err)
}
