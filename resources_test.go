package mcp_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/altgrove/go-mcp"
)

func staticProvider() *mcp.StaticResources {
	return mcp.NewStaticResources(
		mcp.ResourceEntry{
			Resource: mcp.Resource{URI: "mem://doc", Name: "doc", MimeType: "text/markdown"},
			Handler: func(context.Context, *mcp.Exchange, string) (any, error) {
				return "# hello", nil
			},
		},
		mcp.ResourceEntry{
			Resource: mcp.Resource{URI: "mem://bin", Name: "bin"},
			Handler: func(context.Context, *mcp.Exchange, string) (any, error) {
				return []byte{1, 2, 3}, nil
			},
		},
	)
}

func TestResourcesUnsupported(t *testing.T) {
	sess, w := connect(t)
	initSession(t, sess, w)

	for _, method := range []string{
		"resources/list", "resources/read", "resources/subscribe", "resources/unsubscribe",
	} {
		w.reset()
		sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"` + method + `","params":{"uri":"mem://doc"}}`))
		errObj := rpcError(t, w.envelope(t, 0))
		assert.Equal(t, float64(-32602), errObj["code"], method)
		assert.Equal(t, "Resources are not supported", errObj["message"], method)
	}
}

func TestResourcesListAndRead(t *testing.T) {
	sess, w := connect(t, mcp.WithResources(staticProvider()))
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`))
	res := result(t, w.envelope(t, 0))
	resources := res["resources"].([]any)
	require.Len(t, resources, 2)
	assert.Equal(t, "mem://bin", resources[0].(map[string]any)["uri"])
	assert.Equal(t, "mem://doc", resources[1].(map[string]any)["uri"])

	w.reset()
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"mem://doc"}}`))
	res = result(t, w.envelope(t, 0))
	contents := res["contents"].([]any)
	require.Len(t, contents, 1)
	doc := contents[0].(map[string]any)
	assert.Equal(t, "mem://doc", doc["uri"])
	assert.Equal(t, "text/markdown", doc["mimeType"])
	assert.Equal(t, "# hello", doc["text"])

	w.reset()
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"mem://bin"}}`))
	res = result(t, w.envelope(t, 0))
	bin := res["contents"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/octet-stream", bin["mimeType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), bin["blob"])
}

func TestResourceNotFound(t *testing.T) {
	sess, w := connect(t, mcp.WithResources(staticProvider()))
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"mem://ghost"}}`))

	errObj := rpcError(t, w.envelope(t, 0))
	assert.Equal(t, float64(-32002), errObj["code"])
	assert.Equal(t, "mem://ghost", errObj["data"])
}

func TestResourceSubscriptionLifecycle(t *testing.T) {
	sess, w := connect(t, mcp.WithResources(staticProvider()))
	initSession(t, sess, w)

	// Subscribe echoes the URI.
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"resources/subscribe","params":{"uri":"mem://doc"}}`))
	res := result(t, w.envelope(t, 0))
	assert.Equal(t, "mem://doc", res["uri"])
	w.reset()

	// A change to a subscribed resource notifies.
	sess.NotifyResourceChanged("mem://doc")
	require.Equal(t, 1, w.count())
	notif := w.envelope(t, 0)
	assert.Equal(t, "notifications/resources/updated", notif["method"])
	assert.Equal(t, "mem://doc", notif["params"].(map[string]any)["uri"])
	w.reset()

	// Changes to unsubscribed resources stay silent.
	sess.NotifyResourceChanged("mem://bin")
	assert.Equal(t, 0, w.count())

	// Unsubscribe echoes, then further changes stay silent.
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":2,"method":"resources/unsubscribe","params":{"uri":"mem://doc"}}`))
	res = result(t, w.envelope(t, 0))
	assert.Equal(t, "mem://doc", res["uri"])
	w.reset()

	sess.NotifyResourceChanged("mem://doc")
	assert.Equal(t, 0, w.count())
}

func TestNotifyBeforeInitializedIsSilent(t *testing.T) {
	sess, w := connect(t, mcp.WithResources(staticProvider()))

	sess.Subscribe("mem://doc")
	sess.NotifyResourceChanged("mem://doc")
	assert.Equal(t, 0, w.count())
}

func TestResourceTemplatesList(t *testing.T) {
	priority := 0.5
	sess, w := connect(t,
		mcp.WithResources(staticProvider()),
		mcp.WithResourceTemplate(mcp.ResourceTemplate{
			URITemplate: "mem://{name}",
			Name:        "memory",
			Description: "In-memory documents",
			MimeType:    "text/plain",
			Annotations: &mcp.Annotations{Audience: []mcp.Role{mcp.RoleAssistant}, Priority: &priority},
		}),
	)
	initSession(t, sess, w)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"resources/templates/list"}`))

	res := result(t, w.envelope(t, 0))
	templates := res["resourceTemplates"].([]any)
	require.Len(t, templates, 1)
	tpl := templates[0].(map[string]any)
	assert.Equal(t, "mem://{name}", tpl["uriTemplate"])
	ann := tpl["annotations"].(map[string]any)
	assert.Equal(t, []any{"assistant"}, ann["audience"])
	assert.Equal(t, 0.5, ann["priority"])
}

func TestCapabilityAdvertisement(t *testing.T) {
	sess, w := connect(t,
		mcp.WithTool(sumTool()),
		mcp.WithPrompt(greetPrompt(nil)),
		mcp.WithResources(staticProvider()),
		mcp.WithLogging(),
		mcp.WithCompletion(mcp.CompletionRefPrompt, "greet",
			func(context.Context, *mcp.Exchange, mcp.CompletionArgument) (mcp.Completion, error) {
				return mcp.CompleteValues(), nil
			}),
	)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize",` +
		`"params":{"protocolVersion":"2025-06-18","capabilities":{},` +
		`"clientInfo":{"name":"c","version":"1"}}}`))

	res := result(t, w.envelope(t, 0))
	caps := res["capabilities"].(map[string]any)

	assert.Equal(t, map[string]any{}, caps["logging"])
	assert.Equal(t, map[string]any{}, caps["completions"])
	assert.Equal(t, map[string]any{"listChanged": false}, caps["prompts"])
	assert.Equal(t, map[string]any{"listChanged": true}, caps["tools"])
	assert.Equal(t, map[string]any{"subscribe": true, "listChanged": true}, caps["resources"])
}

func TestCapabilityAdvertisementEmpty(t *testing.T) {
	sess, w := connect(t)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize",` +
		`"params":{"protocolVersion":"2024-11-05","capabilities":{},` +
		`"clientInfo":{"name":"c","version":"1"}}}`))

	res := result(t, w.envelope(t, 0))
	caps := res["capabilities"].(map[string]any)
	assert.Empty(t, caps)
}
