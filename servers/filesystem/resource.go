package filesystem

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	mcp "github.com/altgrove/go-mcp"
)

// provider serves the files under root as resources addressed by
// file:// URIs relative to the root.
type provider struct {
	root string
}

func (p *provider) SupportsListChanged() bool   { return false }
func (p *provider) SupportsSubscriptions() bool { return true }

func (p *provider) List(_ context.Context, _ *mcp.Exchange, _ string) (mcp.ResourceList, error) {
	var resources []mcp.Resource
	err := filepath.WalkDir(p.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil {
			return nil
		}
		resources = append(resources, p.describe(rel))
		return nil
	})
	if err != nil {
		return mcp.ResourceList{}, fmt.Errorf("failed to walk root: %w", err)
	}

	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
	return mcp.ResourceList{Resources: resources}, nil
}

func (p *provider) Get(_ context.Context, _ *mcp.Exchange, uri string) (*mcp.ResourceEntry, error) {
	rel, ok := strings.CutPrefix(uri, "file:///")
	if !ok {
		return nil, nil
	}
	path := filepath.Clean(filepath.Join(p.root, filepath.FromSlash(rel)))
	if !underRoot(p.root, path) {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil
	}

	entry := mcp.ResourceEntry{
		Resource: p.describe(rel),
		Handler: func(context.Context, *mcp.Exchange, string) (any, error) {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", rel, err)
			}
			if isText(content) {
				return string(content), nil
			}
			return content, nil
		},
	}
	return &entry, nil
}

func (p *provider) Subscribe(ex *mcp.Exchange, uri string)   { ex.Session().Subscribe(uri) }
func (p *provider) Unsubscribe(ex *mcp.Exchange, uri string) { ex.Session().Unsubscribe(uri) }
func (p *provider) IsSubscribed(ex *mcp.Exchange, uri string) bool {
	return ex.Session().IsSubscribed(uri)
}

func (p *provider) describe(rel string) mcp.Resource {
	mimeType := mime.TypeByExtension(filepath.Ext(rel))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mcp.Resource{
		URI:      "file:///" + filepath.ToSlash(rel),
		Name:     filepath.Base(rel),
		MimeType: mimeType,
	}
}

// isText reports whether content looks like UTF-8 text without NUL bytes.
func isText(content []byte) bool {
	if !utf8.Valid(content) {
		return false
	}
	for _, b := range content {
		if b == 0 {
			return false
		}
	}
	return true
}
