package mcp_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/altgrove/go-mcp"
)

// tagging returns a middleware that records enter order into trace.
func tagging(name string, trace *[]string, mu *sync.Mutex) mcp.Middleware {
	return func(next mcp.HandlerFunc) mcp.HandlerFunc {
		return func(ctx context.Context, ex *mcp.Exchange, params any) (any, error) {
			mu.Lock()
			*trace = append(*trace, name)
			mu.Unlock()
			return next(ctx, ex, params)
		}
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var (
		trace []string
		mu    sync.Mutex
	)
	tool := mcp.Tool{
		Name: "t",
		Handler: func(context.Context, *mcp.Exchange, map[string]any) (any, error) {
			mu.Lock()
			trace = append(trace, "handler")
			mu.Unlock()
			return "ok", nil
		},
	}

	sess, w := connect(t,
		mcp.WithTool(tool),
		mcp.WithMiddleware(
			tagging("first", &trace, &mu),
			tagging("second", &trace, &mu),
		),
	)
	initSession(t, sess, w)

	// Initialize already ran through the stack; observe only the call.
	mu.Lock()
	trace = nil
	mu.Unlock()

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"t"}}`))

	require.Equal(t, 1, w.count())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "handler"}, trace,
		"the first configured middleware is outermost")
}

func TestAsyncFlattensNestedResults(t *testing.T) {
	tool := mcp.Tool{
		Name: "nested",
		Handler: func(context.Context, *mcp.Exchange, map[string]any) (any, error) {
			// A handler that is itself asynchronous under the async
			// middleware: the nested result is flattened.
			return mcp.Async(func() (any, error) { return "inner", nil }), nil
		},
	}
	sess, w := connect(t, mcp.WithTool(tool), mcp.WithMiddleware(mcp.WithAsync(nil)))
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nested"}}`))

	w.waitFrames(t, 1)
	res := result(t, w.envelope(t, 0))
	content := res["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "inner", content["text"])
}

func TestAsyncFailureKeepsTypedError(t *testing.T) {
	tool := mcp.Tool{
		Name: "asyncfail",
		Handler: func(context.Context, *mcp.Exchange, map[string]any) (any, error) {
			return mcp.Async(func() (any, error) {
				return nil, mcp.JSONRPCError{Code: mcp.CodeInvalidParams, Message: "deep"}
			}), nil
		},
	}
	sess, w := connect(t, mcp.WithTool(tool))
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"asyncfail"}}`))

	w.waitFrames(t, 1)
	errObj := rpcError(t, w.envelope(t, 0))
	assert.Equal(t, float64(-32602), errObj["code"])
	assert.Equal(t, "deep", errObj["message"])
}

func TestCustomExecutor(t *testing.T) {
	var (
		mu   sync.Mutex
		runs int
	)
	executor := func(fn func()) {
		mu.Lock()
		runs++
		mu.Unlock()
		go fn()
	}

	sess, w := connect(t,
		mcp.WithTool(sumTool()),
		mcp.WithMiddleware(mcp.WithAsync(executor)),
	)
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call",` +
		`"params":{"name":"sum","arguments":{"a":2,"b":3}}}`))

	w.waitFrames(t, 1)
	res := result(t, w.envelope(t, 0))
	assert.Equal(t, "5", res["content"].([]any)[0].(map[string]any)["text"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs, "handler dispatched through the provided executor")
}
