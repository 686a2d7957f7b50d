package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mcp "github.com/altgrove/go-mcp"
	"github.com/gobwas/glob"
)

func (s *server) tools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name: "read_file",
			Description: "Read the complete contents of a file relative to the served root. " +
				"Returns detailed error messages if the file cannot be read.",
			InputSchema: objectSchema(map[string]any{
				"path": map[string]any{"type": "string", "description": "File path relative to the served root"},
			}, "path"),
			Handler: s.readFile,
		},
		{
			Name: "write_file",
			Description: "Create a new file or completely overwrite an existing file with new content. " +
				"Use with caution as it will overwrite existing files without warning.",
			InputSchema: objectSchema(map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			}, "path", "content"),
			Handler: s.writeFile,
		},
		{
			Name: "edit_file",
			Description: "Replace exact text sequences in a file and return a git-style diff of the " +
				"changes. With dryRun the diff is returned without writing the file.",
			InputSchema: objectSchema(map[string]any{
				"path":    map[string]any{"type": "string"},
				"oldText": map[string]any{"type": "string"},
				"newText": map[string]any{"type": "string"},
				"dryRun":  map[string]any{"type": "boolean"},
			}, "path", "oldText", "newText"),
			Handler: s.editFile,
		},
		{
			Name: "search_files",
			Description: "Search the served tree for files whose relative path matches a glob " +
				"pattern, e.g. **/*.go. Returns one matching path per line.",
			InputSchema: objectSchema(map[string]any{
				"pattern": map[string]any{"type": "string", "description": "Glob pattern matched against relative paths"},
			}, "pattern"),
			Handler: s.searchFiles,
		},
		{
			Name:        "list_directory",
			Description: "List one directory, marking entries with [FILE] and [DIR] prefixes.",
			InputSchema: objectSchema(map[string]any{
				"path": map[string]any{"type": "string"},
			}, "path"),
			Handler: s.listDirectory,
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", mcp.ToolErrorf("missing required argument %q", name)
	}
	return v, nil
}

func (s *server) readFile(_ context.Context, _ *mcp.Exchange, args map[string]any) (any, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	path, err := s.resolve(rel)
	if err != nil {
		return nil, mcp.ToolErrorf("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, mcp.ToolErrorf("failed to read %s: %v", rel, err)
	}
	return string(content), nil
}

func (s *server) writeFile(_ context.Context, _ *mcp.Exchange, args map[string]any) (any, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	path, err := s.resolve(rel)
	if err != nil {
		return nil, mcp.ToolErrorf("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, mcp.ToolErrorf("failed to create parent directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, mcp.ToolErrorf("failed to write %s: %v", rel, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

func (s *server) editFile(_ context.Context, _ *mcp.Exchange, args map[string]any) (any, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	oldText, err := stringArg(args, "oldText")
	if err != nil {
		return nil, err
	}
	newText, ok := args["newText"].(string)
	if !ok {
		return nil, mcp.ToolErrorf("missing required argument %q", "newText")
	}
	dryRun, _ := args["dryRun"].(bool)

	path, err := s.resolve(rel)
	if err != nil {
		return nil, mcp.ToolErrorf("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, mcp.ToolErrorf("failed to read %s: %v", rel, err)
	}

	original := normalizeNewlines(string(content))
	oldText = normalizeNewlines(oldText)
	if !strings.Contains(original, oldText) {
		return nil, mcp.ToolErrorf("could not find exact match for edit in %s", rel)
	}
	modified := strings.Replace(original, oldText, normalizeNewlines(newText), 1)

	diff := diffPreview(original, modified, rel)
	if !dryRun {
		if err := os.WriteFile(path, []byte(modified), 0o600); err != nil {
			return nil, mcp.ToolErrorf("failed to write %s: %v", rel, err)
		}
	}
	return diff, nil
}

func (s *server) searchFiles(_ context.Context, _ *mcp.Exchange, args map[string]any) (any, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, mcp.ToolErrorf("invalid pattern %q: %v", pattern, err)
	}

	var matches []string
	walkErr := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." || d.IsDir() {
			return nil
		}
		if g.Match(filepath.ToSlash(rel)) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if walkErr != nil {
		return nil, mcp.ToolErrorf("search failed: %v", walkErr)
	}

	sort.Strings(matches)
	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}

func (s *server) listDirectory(_ context.Context, _ *mcp.Exchange, args map[string]any) (any, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	path, err := s.resolve(rel)
	if err != nil {
		return nil, mcp.ToolErrorf("%v", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mcp.ToolErrorf("failed to list %s: %v", rel, err)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		prefix := "[FILE]"
		if e.IsDir() {
			prefix = "[DIR]"
		}
		lines = append(lines, prefix+" "+e.Name())
	}
	return strings.Join(lines, "\n"), nil
}
