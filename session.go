package mcp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// SendFunc writes one serialized envelope to the client. The session holds
// its write lock for the duration of a call, so implementations receive
// whole envelopes one at a time.
type SendFunc func(data []byte) error

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server holds the configuration every connection starts from: identity,
// handler families, middleware, and codec. It is a session factory; all
// per-connection state lives on the Session a transport obtains from
// Connect.
type Server struct {
	info             Info
	instructions     string
	advertiseLogging bool

	codec  Codec
	logger *slog.Logger

	tools             map[string]Tool
	prompts           map[string]Prompt
	resources         Resources
	resourceTemplates []ResourceTemplate
	completions       map[completionKey]CompletionFunc
	defaultCompletion DefaultCompletionFunc
	rootsChanged      func(*Session)

	middleware  []Middleware
	errLogLevel slog.Level

	clientReqTimeout time.Duration

	ctxData map[string]any
}

type completionKey struct {
	refType string
	refName string
}

const defaultClientReqTimeout = 120 * time.Second

// sweepInterval bounds how often the outstanding-request table is swept.
const sweepInterval = 500 * time.Millisecond

// NewServer creates a server configuration with the given identity.
func NewServer(info Info, options ...ServerOption) *Server {
	s := &Server{
		info:        info,
		codec:       NewJSONCodec(),
		logger:      slog.Default(),
		tools:       make(map[string]Tool),
		prompts:     make(map[string]Prompt),
		completions: make(map[completionKey]CompletionFunc),
		errLogLevel: slog.LevelInfo,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.clientReqTimeout == 0 {
		s.clientReqTimeout = defaultClientReqTimeout
	}
	return s
}

// WithInstructions sets the instructions string returned at initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithLogging advertises the logging capability at initialize.
func WithLogging() ServerOption {
	return func(s *Server) { s.advertiseLogging = true }
}

// WithCodec replaces the default JSON codec.
func WithCodec(codec Codec) ServerOption {
	return func(s *Server) { s.codec = codec }
}

// WithTool registers tools available to every new session.
func WithTool(tools ...Tool) ServerOption {
	return func(s *Server) {
		for _, t := range tools {
			s.tools[t.Name] = t
		}
	}
}

// WithPrompt registers prompts available to every new session.
func WithPrompt(prompts ...Prompt) ServerOption {
	return func(s *Server) {
		for _, p := range prompts {
			s.prompts[p.Name] = p
		}
	}
}

// WithResources configures the resource provider.
func WithResources(provider Resources) ServerOption {
	return func(s *Server) { s.resources = provider }
}

// WithResourceTemplate appends resource templates in order.
func WithResourceTemplate(templates ...ResourceTemplate) ServerOption {
	return func(s *Server) { s.resourceTemplates = append(s.resourceTemplates, templates...) }
}

// WithCompletion registers a completion handler for one (refType, refName)
// pair, e.g. ("ref/prompt", "greet").
func WithCompletion(refType, refName string, fn CompletionFunc) ServerOption {
	return func(s *Server) { s.completions[completionKey{refType, refName}] = fn }
}

// WithDefaultCompletion registers the fallback completion handler used when
// no specific handler matches.
func WithDefaultCompletion(fn DefaultCompletionFunc) ServerOption {
	return func(s *Server) { s.defaultCompletion = fn }
}

// WithRootsChangedCallback sets the callback invoked when the client
// notifies that its roots list changed.
func WithRootsChangedCallback(fn func(*Session)) ServerOption {
	return func(s *Server) { s.rootsChanged = fn }
}

// WithMiddleware appends middleware to the dispatch stack. The first
// middleware given is outermost after the built-in error middleware.
func WithMiddleware(mw ...Middleware) ServerOption {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

// WithErrorLogLevel sets the level handler failures are logged at.
func WithErrorLogLevel(level slog.Level) ServerOption {
	return func(s *Server) { s.errLogLevel = level }
}

// WithClientRequestTimeout bounds how long outbound requests wait for a
// client response before completing with ErrRequestTimeout.
func WithClientRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.clientReqTimeout = d }
}

// WithContext attaches an opaque value map carried verbatim on every
// session, available to handlers via Exchange.
func WithContext(data map[string]any) ServerOption {
	return func(s *Server) { s.ctxData = data }
}

// WithServerLogger sets the logger for the server and its sessions.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "server"),
		)
	}
}

// Session initialization states.
const (
	stateFresh = iota
	stateInitializing
	stateInitialized
)

// Session is the per-connection state container. A transport feeds it raw
// message text via Ingest and receives serialized envelopes through the
// bound SendFunc. All exported methods are safe for concurrent use.
type Session struct {
	info             Info
	instructions     string
	advertiseLogging bool
	codec            Codec
	logger           *slog.Logger
	clientReqTimeout time.Duration

	dispatch map[string]HandlerFunc

	mu                sync.Mutex
	tools             map[string]Tool
	prompts           map[string]Prompt
	resources         Resources
	resourceTemplates []ResourceTemplate
	completions       map[completionKey]CompletionFunc
	defaultCompletion DefaultCompletionFunc
	rootsChanged      func(*Session)
	loggingLevel      LogLevel

	clientInfo         Info
	clientCapabilities ClientCapabilities
	protocolVersion    string
	initState          int

	subscriptions map[string]struct{}
	inFlight      map[string]*cancelSignal
	outstanding   map[string]*outstandingRequest
	lastSweep     time.Time

	rootsCache  []Root
	rootsValid  bool
	rootsFlight singleflight.Group

	nextID atomic.Int64

	writeMu sync.Mutex
	send    SendFunc

	ctxData map[string]any
}

// Connect creates a session bound to the given transport write callback.
// The callback may be nil and bound later with BindSend.
func (s *Server) Connect(send SendFunc) *Session {
	sess := &Session{
		info:             s.info,
		instructions:     s.instructions,
		advertiseLogging: s.advertiseLogging,
		codec:            s.codec,
		logger:           s.logger,
		clientReqTimeout: s.clientReqTimeout,

		tools:             copyMap(s.tools),
		prompts:           copyMap(s.prompts),
		resources:         s.resources,
		resourceTemplates: append([]ResourceTemplate(nil), s.resourceTemplates...),
		completions:       copyMap(s.completions),
		defaultCompletion: s.defaultCompletion,
		rootsChanged:      s.rootsChanged,

		subscriptions: make(map[string]struct{}),
		inFlight:      make(map[string]*cancelSignal),
		outstanding:   make(map[string]*outstandingRequest),

		send:    send,
		ctxData: s.ctxData,
	}
	sess.dispatch = buildDispatch(baseHandlers(), s.middleware, s.logger, s.errLogLevel)
	return sess
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BindSend swaps the transport write callback. Passing nil detaches the
// session from its output; subsequent emissions are dropped and logged.
func (s *Session) BindSend(send SendFunc) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.send = send
}

// Context returns the opaque value map configured with WithContext.
func (s *Session) Context() map[string]any { return s.ctxData }

// ClientInfo returns the client identity recorded at initialize.
func (s *Session) ClientInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ClientCapabilities returns the capabilities recorded at initialize.
func (s *Session) ClientCapabilities() ClientCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCapabilities
}

// ProtocolVersion returns the negotiated protocol version.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// Initialized reports whether the initialized notification has been seen.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initState == stateInitialized
}

// Ingest processes one inbound message text: a single envelope or a batch
// array. Responses for synchronous handlers are emitted before Ingest
// returns; async results are emitted as they complete, except within a
// batch, whose response array is assembled in full.
func (s *Session) Ingest(data []byte) {
	s.sweepOutstanding(time.Now())

	v, err := s.codec.Deserialize(data)
	items, batch := parseMessage(v, err)
	if len(items) == 0 {
		return
	}

	if !batch {
		resp, async := s.dispatchItem(items[0])
		switch {
		case resp != nil:
			s.emitEnvelope(resp)
		case async != nil:
			go func() {
				if env := awaitEnvelope(async); env != nil {
					s.emitEnvelope(env)
				}
			}()
		}
		return
	}

	var responses []any
	for _, item := range items {
		resp, async := s.dispatchItem(item)
		if async != nil {
			resp = awaitEnvelope(async)
		}
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	// A batch of notifications produces no response at all.
	if len(responses) > 0 {
		s.emitEnvelope(responses)
	}
}

func awaitEnvelope(r *AsyncResult) map[string]any {
	v, _ := r.wait()
	env, _ := v.(map[string]any)
	return env
}

// dispatchItem routes one parsed item. It returns a completed response
// envelope, or an AsyncResult resolving to one (or to nil when the
// response is suppressed), or neither for notifications.
func (s *Session) dispatchItem(item parsedItem) (map[string]any, *AsyncResult) {
	switch item.kind {
	case itemParseError:
		return errorEnvelope(item.id, *item.errObj), nil

	case itemResponse:
		item.method = methodClientResponse
	}

	handler, ok := s.dispatch[item.method]
	if !ok {
		if item.hasID && item.kind == itemRequest {
			return errorEnvelope(item.id, methodNotFound(item.method)), nil
		}
		return nil, nil
	}

	ex := &Exchange{
		sess:          s,
		reqID:         item.id,
		hasReqID:      item.kind == itemRequest,
		progressToken: metaProgressToken(item.params),
	}

	ctx := context.Background()
	var key string
	if item.kind == itemRequest {
		var cancelCtx context.CancelFunc
		ctx, cancelCtx = context.WithCancel(ctx)
		ex.cancel = newCancelSignal(cancelCtx)
		key = idKey(item.id)
		s.storeInFlight(key, ex.cancel)
	}

	// finish turns the handler outcome into a wire envelope, enforcing
	// in-flight cleanup and post-cancellation suppression.
	finish := func(v any, err error) map[string]any {
		if item.kind != itemRequest {
			return nil
		}
		defer func() {
			s.removeInFlight(key)
			// Release the request context once the outcome is decided.
			ex.cancel.cancel()
		}()
		if ex.cancel.completed() {
			return nil
		}
		if err != nil {
			rpcErr, ok := err.(JSONRPCError)
			if !ok {
				rpcErr = JSONRPCError{Code: CodeInternalError, Message: err.Error()}
			}
			return errorEnvelope(item.id, rpcErr)
		}
		return resultEnvelope(item.id, v)
	}

	params := item.params
	if item.kind == itemResponse {
		params = item
	}

	v, err := handler(ctx, ex, params)
	if async, isAsync := v.(*AsyncResult); isAsync && err == nil {
		return nil, async.transform(func(v any, err error) (any, error) {
			return finish(v, err), nil
		})
	}
	return finish(v, err), nil
}

func metaProgressToken(params any) any {
	obj, ok := params.(map[string]any)
	if !ok {
		return nil
	}
	meta, ok := obj["_meta"].(map[string]any)
	if !ok {
		return nil
	}
	return meta["progressToken"]
}

func (s *Session) storeInFlight(key string, c *cancelSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[key] = c
}

func (s *Session) removeInFlight(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func (s *Session) lookupInFlight(key string) (*cancelSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.inFlight[key]
	return c, ok
}

func resultEnvelope(id, result any) map[string]any {
	if result == nil {
		result = struct{}{}
	}
	return map[string]any{"jsonrpc": JSONRPCVersion, "id": id, "result": result}
}

func errorEnvelope(id any, e JSONRPCError) map[string]any {
	return map[string]any{"jsonrpc": JSONRPCVersion, "id": id, "error": e}
}

// emitEnvelope serializes v and writes it to the transport. The write lock
// makes each envelope an atomic write.
func (s *Session) emitEnvelope(v any) error {
	data, err := s.codec.Serialize(v)
	if err != nil {
		s.logger.Error("failed to serialize envelope", slog.String("err", err.Error()))
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.send == nil {
		s.logger.Warn("session has no output, dropping envelope")
		return errNoOutput
	}
	if err := s.send(data); err != nil {
		s.logger.Error("failed to send envelope", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (s *Session) emitNotification(method string, params any) {
	env := map[string]any{"jsonrpc": JSONRPCVersion, "method": method}
	if params != nil {
		env["params"] = params
	}
	s.emitEnvelope(env)
}

// AddTool registers or replaces a tool on this session, emitting
// notifications/tools/list_changed when the session is initialized.
func (s *Session) AddTool(t Tool) {
	s.mu.Lock()
	tools := copyMap(s.tools)
	tools[t.Name] = t
	s.tools = tools
	initialized := s.initState == stateInitialized
	s.mu.Unlock()

	if initialized {
		s.emitNotification(MethodNotificationsToolsListChanged, nil)
	}
}

// RemoveTool removes a tool by name. Removing an unknown name is a no-op
// and emits nothing.
func (s *Session) RemoveTool(name string) {
	s.mu.Lock()
	if _, ok := s.tools[name]; !ok {
		s.mu.Unlock()
		return
	}
	tools := copyMap(s.tools)
	delete(tools, name)
	s.tools = tools
	initialized := s.initState == stateInitialized
	s.mu.Unlock()

	if initialized {
		s.emitNotification(MethodNotificationsToolsListChanged, nil)
	}
}

// AddPrompt registers or replaces a prompt, emitting
// notifications/prompts/list_changed when the session is initialized.
func (s *Session) AddPrompt(p Prompt) {
	s.mu.Lock()
	prompts := copyMap(s.prompts)
	prompts[p.Name] = p
	s.prompts = prompts
	initialized := s.initState == stateInitialized
	s.mu.Unlock()

	if initialized {
		s.emitNotification(MethodNotificationsPromptsListChanged, nil)
	}
}

// RemovePrompt removes a prompt by name.
func (s *Session) RemovePrompt(name string) {
	s.mu.Lock()
	if _, ok := s.prompts[name]; !ok {
		s.mu.Unlock()
		return
	}
	prompts := copyMap(s.prompts)
	delete(prompts, name)
	s.prompts = prompts
	initialized := s.initState == stateInitialized
	s.mu.Unlock()

	if initialized {
		s.emitNotification(MethodNotificationsPromptsListChanged, nil)
	}
}

// NotifyResourcesListChanged emits notifications/resources/list_changed if
// the session is initialized and the provider advertises list changes.
func (s *Session) NotifyResourcesListChanged() {
	s.mu.Lock()
	ok := s.initState == stateInitialized && s.resources != nil && s.resources.SupportsListChanged()
	s.mu.Unlock()

	if ok {
		s.emitNotification(MethodNotificationsResourcesListChanged, nil)
	}
}

// NotifyResourceChanged emits notifications/resources/updated for uri if
// the session is initialized, the provider supports subscriptions, and the
// uri is currently subscribed.
func (s *Session) NotifyResourceChanged(uri string) {
	s.mu.Lock()
	_, subscribed := s.subscriptions[uri]
	ok := s.initState == stateInitialized &&
		s.resources != nil && s.resources.SupportsSubscriptions() && subscribed
	s.mu.Unlock()

	if ok {
		s.emitNotification(MethodNotificationsResourcesUpdated, resourceUpdatedParams{URI: uri})
	}
}

// Subscribe records a resource subscription on the session. Providers
// that keep no subscription state of their own delegate here.
func (s *Session) Subscribe(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[uri] = struct{}{}
}

// Unsubscribe removes a resource subscription.
func (s *Session) Unsubscribe(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, uri)
}

// IsSubscribed reports whether uri is currently subscribed.
func (s *Session) IsSubscribed(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[uri]
	return ok
}

// cancelSignal is the one-shot completion a handler can observe to learn
// its request was cancelled by the client.
type cancelSignal struct {
	once   sync.Once
	done   chan struct{}
	reason string
	cancel context.CancelFunc
}

func newCancelSignal(cancel context.CancelFunc) *cancelSignal {
	return &cancelSignal{done: make(chan struct{}), cancel: cancel}
}

func (c *cancelSignal) complete(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func (c *cancelSignal) completed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
