// Package filesystem exposes a directory tree through MCP: file tools
// with diff-previewed edits, a code-review prompt, and a resource provider
// serving files by file:// URI.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mcp "github.com/altgrove/go-mcp"
)

// Options returns the server options wiring every filesystem capability
// rooted at root. The path must exist and be a directory.
func Options(root string) ([]mcp.ServerOption, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	s := &server{root: abs}

	return []mcp.ServerOption{
		mcp.WithInstructions("Filesystem access rooted at " + abs),
		mcp.WithTool(s.tools()...),
		mcp.WithPrompt(s.reviewPrompt()),
		mcp.WithResources(&provider{root: abs}),
		mcp.WithCompletion(mcp.CompletionRefPrompt, "review_file", s.completePath),
	}, nil
}

type server struct {
	root string
}

func (s *server) reviewPrompt() mcp.Prompt {
	return mcp.Prompt{
		Name:        "review_file",
		Description: "Ask for a review of one file in the served tree.",
		RequiredArgs: []mcp.PromptArg{
			{Name: "path", Description: "File path relative to the served root"},
		},
		OptionalArgs: []mcp.PromptArg{
			{Name: "focus", Description: "Aspect to focus the review on"},
		},
		Handler: s.handleReviewPrompt,
	}
}

func (s *server) handleReviewPrompt(_ context.Context, _ *mcp.Exchange, args map[string]string) (any, error) {
	path, err := s.resolve(args["path"])
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := fmt.Sprintf("Please review the following file (%s):\n\n%s", args["path"], content)
	if focus := args["focus"]; focus != "" {
		text += "\n\nFocus on: " + focus
	}
	return mcp.PromptResponse{
		Description: "Code review request for " + args["path"],
		Messages: []any{
			mcp.PromptMessage{Role: mcp.RoleUser, Content: mcp.TextContent(text)},
		},
	}, nil
}

// completePath suggests relative paths under the root that extend the
// typed prefix.
func (s *server) completePath(_ context.Context, _ *mcp.Exchange, arg mcp.CompletionArgument) (mcp.Completion, error) {
	if arg.Name != "path" {
		return mcp.CompleteValues(), nil
	}

	var matches []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil
		}
		if strings.HasPrefix(rel, arg.Value) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return mcp.Completion{}, fmt.Errorf("failed to walk root: %w", err)
	}

	sort.Strings(matches)
	return mcp.CompleteValues(matches...), nil
}

// resolve maps a client-supplied relative path to an absolute path,
// refusing escapes from the served root.
func (s *server) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if !underRoot(s.root, abs) {
		return "", fmt.Errorf("access denied - path %s outside served root", rel)
	}
	return abs, nil
}
