package mcp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/altgrove/go-mcp"
)

func greetPrompt(handler mcp.PromptHandler) mcp.Prompt {
	return mcp.Prompt{
		Name:        "greet",
		Description: "Greeting template.",
		RequiredArgs: []mcp.PromptArg{
			{Name: "name", Description: "Who to greet"},
		},
		OptionalArgs: []mcp.PromptArg{
			{Name: "tone", Description: "Formal or casual"},
		},
		Handler: handler,
	}
}

func TestPromptsListOrdersArguments(t *testing.T) {
	sess, w := connect(t, mcp.WithPrompt(greetPrompt(nil)))
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`))

	res := result(t, w.envelope(t, 0))
	prompts := res["prompts"].([]any)
	require.Len(t, prompts, 1)

	args := prompts[0].(map[string]any)["arguments"].([]any)
	require.Len(t, args, 2)
	first := args[0].(map[string]any)
	second := args[1].(map[string]any)
	assert.Equal(t, "name", first["name"])
	assert.Equal(t, true, first["required"])
	assert.Equal(t, "tone", second["name"])
	assert.Equal(t, false, second["required"])
}

func TestPromptsGetNormalization(t *testing.T) {
	type testCase struct {
		name    string
		handler mcp.PromptHandler
		check   func(t *testing.T, res map[string]any)
	}

	testCases := []testCase{
		{
			name: "full response",
			handler: func(_ context.Context, _ *mcp.Exchange, args map[string]string) (any, error) {
				return mcp.PromptResponse{
					Description: "greeting",
					Messages: []any{
						mcp.PromptMessage{Role: mcp.RoleUser, Content: mcp.TextContent("hi " + args["name"])},
					},
				}, nil
			},
			check: func(t *testing.T, res map[string]any) {
				assert.Equal(t, "greeting", res["description"])
				msgs := res["messages"].([]any)
				require.Len(t, msgs, 1)
				msg := msgs[0].(map[string]any)
				assert.Equal(t, "user", msg["role"])
				assert.Equal(t, "hi ada", msg["content"].(map[string]any)["text"])
			},
		},
		{
			name: "bare content becomes roleless message",
			handler: func(context.Context, *mcp.Exchange, map[string]string) (any, error) {
				return mcp.TextContent("plain"), nil
			},
			check: func(t *testing.T, res map[string]any) {
				msgs := res["messages"].([]any)
				require.Len(t, msgs, 1)
				msg := msgs[0].(map[string]any)
				_, hasRole := msg["role"]
				assert.False(t, hasRole)
				assert.Equal(t, "plain", msg["content"].(map[string]any)["text"])
			},
		},
		{
			name: "list of messages",
			handler: func(context.Context, *mcp.Exchange, map[string]string) (any, error) {
				return []mcp.PromptMessage{
					{Role: mcp.RoleUser, Content: mcp.TextContent("q")},
					{Role: mcp.RoleAssistant, Content: mcp.TextContent("a")},
				}, nil
			},
			check: func(t *testing.T, res map[string]any) {
				msgs := res["messages"].([]any)
				require.Len(t, msgs, 2)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sess, w := connect(t, mcp.WithPrompt(greetPrompt(tc.handler)))
			initSession(t, sess, w)

			sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/get",` +
				`"params":{"name":"greet","arguments":{"name":"ada"}}}`))

			tc.check(t, result(t, w.envelope(t, 0)))
		})
	}
}

func TestPromptsGetUnknownName(t *testing.T) {
	sess, w := connect(t)
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"ghost"}}`))

	errObj := rpcError(t, w.envelope(t, 0))
	assert.Equal(t, float64(-32602), errObj["code"])
	assert.Equal(t, "Prompt ghost not found", errObj["message"])
}

func TestPromptMutationNotifies(t *testing.T) {
	sess, w := connect(t)
	initSession(t, sess, w)

	sess.AddPrompt(greetPrompt(nil))
	require.Equal(t, 1, w.count())
	assert.Equal(t, "notifications/prompts/list_changed", w.envelope(t, 0)["method"])

	w.reset()
	sess.RemovePrompt("greet")
	require.Equal(t, 1, w.count())
	assert.Equal(t, "notifications/prompts/list_changed", w.envelope(t, 0)["method"])
}
