package filesystem

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	mcp "github.com/altgrove/go-mcp"
)

type capture struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *capture) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *capture) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatal("no frames captured")
	}
	var env map[string]any
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &env); err != nil {
		t.Fatal(err)
	}
	return env
}

func setup(t *testing.T) (*mcp.Session, *capture) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "notes.md"), []byte("# notes\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	options, err := Options(root)
	if err != nil {
		t.Fatal(err)
	}
	srv := mcp.NewServer(mcp.Info{Name: "fs", Version: "0.1.0"}, options...)

	c := &capture{}
	sess := srv.Connect(c.send)
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":"i","method":"initialize",` +
		`"params":{"protocolVersion":"2025-03-26","capabilities":{},` +
		`"clientInfo":{"name":"c","version":"1"}}}`))
	sess.Ingest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	return sess, c
}

func callTool(t *testing.T, sess *mcp.Session, c *capture, name string, args map[string]any) map[string]any {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":` + string(params) + `}`))

	env := c.last(t)
	res, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected tool result, got %v", env)
	}
	return res
}

func toolText(t *testing.T, res map[string]any) string {
	t.Helper()
	content := res["content"].([]any)
	if len(content) == 0 {
		t.Fatal("empty content")
	}
	return content[0].(map[string]any)["text"].(string)
}

func TestReadFile(t *testing.T) {
	sess, c := setup(t)

	res := callTool(t, sess, c, "read_file", map[string]any{"path": "hello.txt"})
	if res["isError"] != false {
		t.Fatalf("unexpected error result: %v", res)
	}
	if got := toolText(t, res); got != "hello world\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestReadFileOutsideRoot(t *testing.T) {
	sess, c := setup(t)

	res := callTool(t, sess, c, "read_file", map[string]any{"path": "../escape"})
	if res["isError"] != true {
		t.Fatalf("expected error result, got %v", res)
	}
	if !strings.Contains(toolText(t, res), "access denied") {
		t.Errorf("unexpected message %q", toolText(t, res))
	}
}

func TestSearchFiles(t *testing.T) {
	sess, c := setup(t)

	res := callTool(t, sess, c, "search_files", map[string]any{"pattern": "**.md"})
	if got := toolText(t, res); got != "sub/notes.md" {
		t.Errorf("unexpected matches %q", got)
	}
}

func TestEditFileDiffAndWrite(t *testing.T) {
	sess, c := setup(t)

	res := callTool(t, sess, c, "edit_file", map[string]any{
		"path":    "hello.txt",
		"oldText": "hello world",
		"newText": "goodbye world",
	})
	diff := toolText(t, res)
	if !strings.Contains(diff, "--- hello.txt (original)") {
		t.Errorf("diff header missing: %q", diff)
	}
	if !strings.Contains(diff, "goodbye") {
		t.Errorf("diff body missing change: %q", diff)
	}

	read := callTool(t, sess, c, "read_file", map[string]any{"path": "hello.txt"})
	if got := toolText(t, read); got != "goodbye world\n" {
		t.Errorf("edit not applied: %q", got)
	}
}

func TestEditFileDryRun(t *testing.T) {
	sess, c := setup(t)

	callTool(t, sess, c, "edit_file", map[string]any{
		"path":    "hello.txt",
		"oldText": "hello",
		"newText": "changed",
		"dryRun":  true,
	})

	read := callTool(t, sess, c, "read_file", map[string]any{"path": "hello.txt"})
	if got := toolText(t, read); got != "hello world\n" {
		t.Errorf("dry run must not write: %q", got)
	}
}

func TestResourceReadThroughProvider(t *testing.T) {
	sess, c := setup(t)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":2,"method":"resources/read",` +
		`"params":{"uri":"file:///hello.txt"}}`))

	env := c.last(t)
	res, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result, got %v", env)
	}
	contents := res["contents"].([]any)[0].(map[string]any)
	if contents["text"] != "hello world\n" {
		t.Errorf("unexpected contents %v", contents)
	}
}

func TestPathCompletion(t *testing.T) {
	sess, c := setup(t)

	sess.Ingest([]byte(`{"jsonrpc":"2.0","id":3,"method":"completion/complete",` +
		`"params":{"ref":{"type":"ref/prompt","name":"review_file"},` +
		`"argument":{"name":"path","value":"sub"}}}`))

	env := c.last(t)
	res := env["result"].(map[string]any)["completion"].(map[string]any)
	values := res["values"].([]any)
	if len(values) != 1 || values[0] != "sub/notes.md" {
		t.Errorf("unexpected completions %v", values)
	}
}

func TestListDirectory(t *testing.T) {
	sess, c := setup(t)

	res := callTool(t, sess, c, "list_directory", map[string]any{"path": "."})
	text := toolText(t, res)
	if !strings.Contains(text, "[FILE] hello.txt") || !strings.Contains(text, "[DIR] sub") {
		t.Errorf("unexpected listing %q", text)
	}
}
