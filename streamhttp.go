package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SessionIDHeader carries the session id on HTTP requests and responses.
const SessionIDHeader = "Mcp-Session-Id"

// StreamableHTTP is the HTTP+SSE transport adapter. A POST carries inbound
// messages, a GET opens the SSE stream the session's outbound traffic is
// queued on, and a DELETE removes the session. It implements http.Handler
// and can be mounted on any mux.
type StreamableHTTP struct {
	srv    *Server
	logger *slog.Logger

	endpoint string
	origins  []glob.Glob

	onConnect    func(*Session)
	onDisconnect func(*Session)

	mu       sync.Mutex
	sessions map[string]*httpSession
}

// StreamableHTTPOption configures the HTTP transport.
type StreamableHTTPOption func(*StreamableHTTP)

// WithAllowedOrigins installs the Origin allow-list. Entries are glob
// patterns ("https://*.example.com") and must compile; requests from
// non-matching origins are rejected with 403. An empty list allows all.
func WithAllowedOrigins(patterns ...string) StreamableHTTPOption {
	return func(t *StreamableHTTP) {
		for _, p := range patterns {
			t.origins = append(t.origins, glob.MustCompile(p))
		}
	}
}

// WithEndpointEvent makes the first SSE frame of each GET an
// "event: endpoint" frame carrying url suffixed with the session id.
func WithEndpointEvent(url string) StreamableHTTPOption {
	return func(t *StreamableHTTP) { t.endpoint = url }
}

// WithHTTPLogger sets the transport logger.
func WithHTTPLogger(logger *slog.Logger) StreamableHTTPOption {
	return func(t *StreamableHTTP) {
		t.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "streamhttp"),
		)
	}
}

// WithHTTPOnConnect sets a callback invoked with each new session.
func WithHTTPOnConnect(fn func(*Session)) StreamableHTTPOption {
	return func(t *StreamableHTTP) { t.onConnect = fn }
}

// WithHTTPOnDisconnect sets a callback invoked once per session when it
// goes away: a DELETE, a transport shutdown, or the client dropping its
// event stream.
func WithHTTPOnDisconnect(fn func(*Session)) StreamableHTTPOption {
	return func(t *StreamableHTTP) { t.onDisconnect = fn }
}

// NewStreamableHTTP creates the HTTP transport for srv.
func NewStreamableHTTP(srv *Server, options ...StreamableHTTPOption) *StreamableHTTP {
	t := &StreamableHTTP{
		srv:      srv,
		logger:   slog.Default(),
		sessions: make(map[string]*httpSession),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// httpSession carries the transport-private slots of one session: its id,
// creation time, and the pending-message queue drained by the SSE stream.
type httpSession struct {
	id      string
	sess    *Session
	created time.Time

	mu      sync.Mutex
	backlog [][]byte
	capture *[][]byte

	wake chan struct{}
	done chan struct{}
	gone sync.Once
}

func (h *httpSession) send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture != nil {
		*h.capture = append(*h.capture, data)
		return nil
	}
	h.backlog = append(h.backlog, data)
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *httpSession) takeBacklog() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.backlog
	h.backlog = nil
	return out
}

func (t *StreamableHTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !t.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (t *StreamableHTTP) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(t.origins) == 0 {
		return true
	}
	for _, g := range t.origins {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

// notifyDisconnect fires the disconnect callback at most once per session.
func (t *StreamableHTTP) notifyDisconnect(hs *httpSession) {
	hs.gone.Do(func() {
		if t.onDisconnect != nil {
			t.onDisconnect(hs.sess)
		}
	})
}

func (t *StreamableHTTP) lookup(id string) (*httpSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hs, ok := t.sessions[id]
	return hs, ok
}

func (t *StreamableHTTP) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		t.handleInitializePost(w, body)
		return
	}

	hs, ok := t.lookup(sid)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	hs.sess.Ingest(body)
	w.WriteHeader(http.StatusAccepted)
}

// handleInitializePost serves the only POST allowed without a session id.
// It issues the session id and returns the initialize response in the POST
// body alongside the Mcp-Session-Id header.
func (t *StreamableHTTP) handleInitializePost(w http.ResponseWriter, body []byte) {
	var peek struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &peek); err != nil || peek.Method != MethodInitialize {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	hs := &httpSession{
		id:      uuid.NewString(),
		created: time.Now(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	hs.sess = t.srv.Connect(hs.send)

	t.mu.Lock()
	t.sessions[hs.id] = hs
	t.mu.Unlock()

	if t.onConnect != nil {
		t.onConnect(hs.sess)
	}

	// Capture the synchronous initialize response so it can be returned in
	// this POST's body rather than the not-yet-open SSE stream.
	var captured [][]byte
	hs.mu.Lock()
	hs.capture = &captured
	hs.mu.Unlock()

	hs.sess.Ingest(body)

	hs.mu.Lock()
	hs.capture = nil
	hs.mu.Unlock()

	w.Header().Set(SessionIDHeader, hs.id)
	if len(captured) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(captured[0]); err != nil {
		t.logger.Error("failed to write initialize response", slog.String("err", err.Error()))
	}
}

func (t *StreamableHTTP) handleGet(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		// Fallback for EventSource clients that cannot set headers.
		sid = r.URL.Query().Get("sessionId")
	}
	hs, ok := t.lookup(sid)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to upgrade session: %v", err), http.StatusInternalServerError)
		return
	}

	if t.endpoint != "" {
		msg := sse.Message{Type: sse.Type("endpoint")}
		msg.AppendData(fmt.Sprintf("%s?sessionId=%s", t.endpoint, hs.id))
		if err := stream.Send(&msg); err != nil {
			t.logger.Error("failed to write endpoint frame", slog.String("err", err.Error()))
			return
		}
		if err := stream.Flush(); err != nil {
			return
		}
	}

	for {
		for _, frame := range hs.takeBacklog() {
			msg := sse.Message{}
			msg.AppendData(string(frame))
			if err := stream.Send(&msg); err != nil {
				t.logger.Warn("failed to send frame", slog.String("err", err.Error()))
				return
			}
		}
		if err := stream.Flush(); err != nil {
			return
		}

		select {
		case <-hs.wake:
		case <-hs.done:
			return
		case <-r.Context().Done():
			// The client dropped its event stream.
			t.notifyDisconnect(hs)
			return
		}
	}
}

func (t *StreamableHTTP) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		sid = r.URL.Query().Get("sessionId")
	}
	if sid == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	hs, ok := t.sessions[sid]
	if ok {
		delete(t.sessions, sid)
	}
	t.mu.Unlock()

	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	hs.sess.BindSend(nil)
	close(hs.done)
	t.notifyDisconnect(hs)
	w.WriteHeader(http.StatusOK)
}

// Shutdown detaches and removes every session.
func (t *StreamableHTTP) Shutdown() {
	t.mu.Lock()
	dropped := make([]*httpSession, 0, len(t.sessions))
	for id, hs := range t.sessions {
		hs.sess.BindSend(nil)
		close(hs.done)
		delete(t.sessions, id)
		dropped = append(dropped, hs)
	}
	t.mu.Unlock()

	for _, hs := range dropped {
		t.notifyDisconnect(hs)
	}
}
