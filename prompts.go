package mcp

import (
	"context"
	"fmt"
)

// PromptHandler renders one prompt. It may return a PromptResponse, a
// PromptMessage, a Content, a list of either, or a JSONRPCError.
type PromptHandler func(ctx context.Context, ex *Exchange, args map[string]string) (any, error)

// PromptArg describes one named prompt argument.
type PromptArg struct {
	Name        string
	Description string
}

// Prompt is a server-exposed message template with named arguments.
// Required arguments are advertised before optional ones, each set in its
// declaration order.
type Prompt struct {
	Name         string
	Description  string
	RequiredArgs []PromptArg
	OptionalArgs []PromptArg
	Handler      PromptHandler
}

// PromptResponse is the richest shape a prompt handler can return.
// Messages elements may be PromptMessage or Content values.
type PromptResponse struct {
	Description string
	Messages    []any
}

type promptArgDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type promptDescriptor struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Arguments   []promptArgDescriptor `json:"arguments"`
}

type promptsListResult struct {
	Prompts []promptDescriptor `json:"prompts"`
}

type getPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

func describePrompt(p Prompt) promptDescriptor {
	args := make([]promptArgDescriptor, 0, len(p.RequiredArgs)+len(p.OptionalArgs))
	for _, a := range p.RequiredArgs {
		args = append(args, promptArgDescriptor{Name: a.Name, Description: a.Description, Required: true})
	}
	for _, a := range p.OptionalArgs {
		args = append(args, promptArgDescriptor{Name: a.Name, Description: a.Description, Required: false})
	}
	return promptDescriptor{Name: p.Name, Description: p.Description, Arguments: args}
}

func handlePromptsList(_ context.Context, ex *Exchange, _ any) (any, error) {
	s := ex.sess
	s.mu.Lock()
	prompts := s.prompts
	s.mu.Unlock()

	res := promptsListResult{Prompts: make([]promptDescriptor, 0, len(prompts))}
	for _, p := range prompts {
		res.Prompts = append(res.Prompts, describePrompt(p))
	}
	return res, nil
}

func handlePromptsGet(ctx context.Context, ex *Exchange, params any) (any, error) {
	var p struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	s := ex.sess
	s.mu.Lock()
	prompt, ok := s.prompts[p.Name]
	s.mu.Unlock()
	if !ok {
		return nil, invalidParams(fmt.Sprintf("Prompt %s not found", p.Name))
	}

	v, err := prompt.Handler(ctx, ex, p.Arguments)
	if err != nil {
		return nil, err
	}
	return normalizePromptResult(v)
}

// normalizePromptResult wraps a prompt handler's return value into the
// wire shape. A bare Content becomes a message with no role.
func normalizePromptResult(v any) (getPromptResult, error) {
	switch val := v.(type) {
	case getPromptResult:
		return val, nil
	case PromptResponse:
		msgs, err := normalizePromptMessages(val.Messages)
		if err != nil {
			return getPromptResult{}, err
		}
		return getPromptResult{Description: val.Description, Messages: msgs}, nil
	case PromptMessage:
		return getPromptResult{Messages: []PromptMessage{val}}, nil
	case []PromptMessage:
		return getPromptResult{Messages: val}, nil
	case Content:
		return getPromptResult{Messages: []PromptMessage{{Content: val}}}, nil
	case []Content:
		msgs := make([]PromptMessage, 0, len(val))
		for _, c := range val {
			msgs = append(msgs, PromptMessage{Content: c})
		}
		return getPromptResult{Messages: msgs}, nil
	case []any:
		msgs, err := normalizePromptMessages(val)
		if err != nil {
			return getPromptResult{}, err
		}
		return getPromptResult{Messages: msgs}, nil
	default:
		return getPromptResult{}, JSONRPCError{
			Code:    CodeInternalError,
			Message: fmt.Sprintf("unsupported prompt result type %T", v),
		}
	}
}

func normalizePromptMessages(in []any) ([]PromptMessage, error) {
	msgs := make([]PromptMessage, 0, len(in))
	for _, el := range in {
		switch m := el.(type) {
		case PromptMessage:
			msgs = append(msgs, m)
		case Content:
			msgs = append(msgs, PromptMessage{Content: m})
		default:
			return nil, JSONRPCError{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("unsupported prompt message type %T", el),
			}
		}
	}
	return msgs, nil
}
