package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ResourceHandler produces the body of one resource. It may return a
// string (text contents), []byte or io.Reader (blob contents), a
// ResourceContents, or a list of ResourceContents.
type ResourceHandler func(ctx context.Context, ex *Exchange, uri string) (any, error)

// ResourceEntry couples a resource descriptor with its read handler.
type ResourceEntry struct {
	Resource
	Handler ResourceHandler
}

// Resources is the pluggable provider behind the resources/* methods.
// When no provider is configured every resources/* call fails with
// Invalid Params.
type Resources interface {
	// SupportsListChanged reports whether the provider emits list-change
	// notifications; advertised at initialize.
	SupportsListChanged() bool
	// SupportsSubscriptions reports whether per-URI subscriptions are
	// supported; advertised at initialize and gating updated notifications.
	SupportsSubscriptions() bool
	// List returns one page of resource descriptors.
	List(ctx context.Context, ex *Exchange, cursor string) (ResourceList, error)
	// Get resolves a URI to its entry, or nil when unknown.
	Get(ctx context.Context, ex *Exchange, uri string) (*ResourceEntry, error)

	Subscribe(ex *Exchange, uri string)
	Unsubscribe(ex *Exchange, uri string)
	IsSubscribed(ex *Exchange, uri string) bool
}

// ResourceList is one page of resource descriptors.
type ResourceList struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// StaticResources is the default in-memory provider: a URI-keyed lookup
// map with session-held subscriptions.
type StaticResources struct {
	mu      sync.Mutex
	entries map[string]ResourceEntry
}

// NewStaticResources builds a provider serving the given entries.
func NewStaticResources(entries ...ResourceEntry) *StaticResources {
	m := make(map[string]ResourceEntry, len(entries))
	for _, e := range entries {
		m[e.URI] = e
	}
	return &StaticResources{entries: m}
}

// Add registers or replaces an entry.
func (p *StaticResources) Add(e ResourceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[e.URI] = e
}

// Remove deletes an entry by URI.
func (p *StaticResources) Remove(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, uri)
}

// SupportsListChanged implements Resources.
func (p *StaticResources) SupportsListChanged() bool { return true }

// SupportsSubscriptions implements Resources.
func (p *StaticResources) SupportsSubscriptions() bool { return true }

// List implements Resources. The cursor is accepted and ignored; the
// whole map is returned in URI order.
func (p *StaticResources) List(_ context.Context, _ *Exchange, _ string) (ResourceList, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := ResourceList{Resources: make([]Resource, 0, len(p.entries))}
	for _, e := range p.entries {
		res.Resources = append(res.Resources, e.Resource)
	}
	sort.Slice(res.Resources, func(i, j int) bool { return res.Resources[i].URI < res.Resources[j].URI })
	return res, nil
}

// Get implements Resources.
func (p *StaticResources) Get(_ context.Context, _ *Exchange, uri string) (*ResourceEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[uri]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Subscribe implements Resources by recording the URI on the session.
func (p *StaticResources) Subscribe(ex *Exchange, uri string) { ex.sess.Subscribe(uri) }

// Unsubscribe implements Resources.
func (p *StaticResources) Unsubscribe(ex *Exchange, uri string) { ex.sess.Unsubscribe(uri) }

// IsSubscribed implements Resources.
func (p *StaticResources) IsSubscribed(ex *Exchange, uri string) bool { return ex.sess.IsSubscribed(uri) }

var errNoResources = invalidParams("Resources are not supported")

func (s *Session) provider() Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources
}

func handleResourcesList(ctx context.Context, ex *Exchange, params any) (any, error) {
	provider := ex.sess.provider()
	if provider == nil {
		return nil, errNoResources
	}

	var p struct {
		Cursor string `json:"cursor"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}
	return provider.List(ctx, ex, p.Cursor)
}

type readResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

func handleResourcesRead(ctx context.Context, ex *Exchange, params any) (any, error) {
	provider := ex.sess.provider()
	if provider == nil {
		return nil, errNoResources
	}

	var p struct {
		URI string `json:"uri"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	entry, err := provider.Get(ctx, ex, p.URI)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, JSONRPCError{Code: CodeResourceNotFound, Message: "Resource not found", Data: p.URI}
	}

	v, err := entry.Handler(ctx, ex, p.URI)
	if err != nil {
		return nil, err
	}
	contents, err := normalizeResourceContents(entry, v)
	if err != nil {
		return nil, err
	}
	return readResourceResult{Contents: contents}, nil
}

// normalizeResourceContents turns a resource handler's return value into
// the contents list: string bodies become text entries, bytes and streams
// become base64 blob entries.
func normalizeResourceContents(entry *ResourceEntry, v any) ([]ResourceContents, error) {
	switch val := v.(type) {
	case ResourceContents:
		return []ResourceContents{val}, nil
	case []ResourceContents:
		return val, nil
	case string:
		return []ResourceContents{{
			URI:      entry.URI,
			MimeType: defaultMime(entry.MimeType, "text/plain"),
			Text:     val,
		}}, nil
	case []byte:
		return []ResourceContents{{
			URI:      entry.URI,
			MimeType: defaultMime(entry.MimeType, "application/octet-stream"),
			Blob:     base64.StdEncoding.EncodeToString(val),
		}}, nil
	case io.Reader:
		data, err := io.ReadAll(val)
		if err != nil {
			return nil, fmt.Errorf("failed to read resource body: %w", err)
		}
		return []ResourceContents{{
			URI:      entry.URI,
			MimeType: defaultMime(entry.MimeType, "application/octet-stream"),
			Blob:     base64.StdEncoding.EncodeToString(data),
		}}, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("unsupported resource body type %T", v)
		}
		return []ResourceContents{{
			URI:      entry.URI,
			MimeType: defaultMime(entry.MimeType, "application/json"),
			Text:     string(b),
		}}, nil
	}
}

func defaultMime(mime, fallback string) string {
	if mime != "" {
		return mime
	}
	return fallback
}

type subscribeResult struct {
	URI string `json:"uri"`
}

func handleResourcesSubscribe(_ context.Context, ex *Exchange, params any) (any, error) {
	provider := ex.sess.provider()
	if provider == nil {
		return nil, errNoResources
	}

	var p struct {
		URI string `json:"uri"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	provider.Subscribe(ex, p.URI)
	return subscribeResult{URI: p.URI}, nil
}

func handleResourcesUnsubscribe(_ context.Context, ex *Exchange, params any) (any, error) {
	provider := ex.sess.provider()
	if provider == nil {
		return nil, errNoResources
	}

	var p struct {
		URI string `json:"uri"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	provider.Unsubscribe(ex, p.URI)
	return subscribeResult{URI: p.URI}, nil
}

type templatesListResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

func handleResourcesTemplatesList(_ context.Context, ex *Exchange, _ any) (any, error) {
	if ex.sess.provider() == nil {
		return nil, errNoResources
	}

	s := ex.sess
	s.mu.Lock()
	templates := s.resourceTemplates
	s.mu.Unlock()

	if templates == nil {
		templates = []ResourceTemplate{}
	}
	return templatesListResult{ResourceTemplates: templates}, nil
}
