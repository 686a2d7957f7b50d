package mcp

import (
	"context"
	"fmt"
	"log/slog"
)

// Exchange is the handler-facing capability object scoped to one inbound
// message. Handlers use it to call back to the client (roots, sampling,
// pings), report progress, emit log messages, and observe cancellation of
// the request they are serving.
type Exchange struct {
	sess     *Session
	reqID    any
	hasReqID bool

	progressToken any
	cancel        *cancelSignal
}

// Session returns the session this exchange belongs to.
func (ex *Exchange) Session() *Session { return ex.sess }

// RequestID returns the id of the inbound request this exchange serves,
// or false when it serves a notification.
func (ex *Exchange) RequestID() (any, bool) { return ex.reqID, ex.hasReqID }

// Context returns the opaque value map configured on the server.
func (ex *Exchange) Context() map[string]any { return ex.sess.ctxData }

// Cancelled returns a channel closed when the client cancels the request
// this exchange serves. For notifications the channel never closes.
func (ex *Exchange) Cancelled() <-chan struct{} {
	if ex.cancel == nil {
		return nil
	}
	return ex.cancel.done
}

// CancelReason returns the reason carried by the cancellation
// notification, or "" if the request has not been cancelled.
func (ex *Exchange) CancelReason() string {
	if ex.cancel == nil || !ex.cancel.completed() {
		return ""
	}
	return ex.cancel.reason
}

// ReportProgress emits notifications/progress correlated to the current
// request. It reports false, emitting nothing, when the request carries no
// progress token.
func (ex *Exchange) ReportProgress(p ProgressParams) bool {
	if ex.progressToken == nil {
		return false
	}
	params := map[string]any{
		"progressToken": ex.progressToken,
		"progress":      p.Progress,
	}
	if p.Total != 0 {
		params["total"] = p.Total
	}
	if p.Message != "" {
		params["message"] = p.Message
	}
	ex.sess.emitNotification(MethodNotificationsProgress, params)
	return true
}

// LogMessage logs locally on the session logger, and additionally emits
// notifications/message when the client has configured a logging level via
// logging/setLevel.
func (ex *Exchange) LogMessage(level LogLevel, logger, message string, data any) {
	ex.sess.logger.Log(context.Background(), slogLevel(level), message,
		slog.String("mcpLogger", logger), slog.Any("data", data))

	ex.sess.mu.Lock()
	configured := ex.sess.loggingLevel != ""
	ex.sess.mu.Unlock()
	if !configured {
		return
	}

	ex.sess.emitNotification(MethodNotificationsMessage, logMessageParams{
		Level:  level,
		Logger: logger,
		Data:   map[string]any{"error": message, "details": data},
	})
}

// SendNotification emits an arbitrary notification to the client.
func (ex *Exchange) SendNotification(method string, params any) {
	ex.sess.emitNotification(method, params)
}

// SendRequest issues a server-originated request and blocks for the
// response. When onProgress is non-nil a progress token is generated and
// registered so matching notifications/progress frames reach the callback.
func (ex *Exchange) SendRequest(ctx context.Context, method string, params map[string]any, onProgress ProgressFunc) (any, error) {
	return ex.sess.request(ctx, method, params, onProgress)
}

// Ping sends a server-to-client ping and waits for the pong.
func (ex *Exchange) Ping(ctx context.Context) error {
	_, err := ex.sess.request(ctx, MethodPing, nil, nil)
	return err
}

// ListRoots returns the client's root list. Clients without the roots
// capability yield an empty list. When the client advertises
// roots.listChanged the first result is memoized; the cache is invalidated
// by notifications/roots/list_changed. Otherwise every call issues a fresh
// roots/list request.
func (ex *Exchange) ListRoots(ctx context.Context, onProgress ProgressFunc) ([]Root, error) {
	s := ex.sess

	s.mu.Lock()
	caps := s.clientCapabilities
	s.mu.Unlock()

	if caps.Roots == nil {
		return []Root{}, nil
	}
	if !caps.Roots.ListChanged {
		return s.fetchRoots(ctx, onProgress)
	}

	// Memoized: concurrent callers share a single roots/list round trip.
	v, err, _ := s.rootsFlight.Do("roots", func() (any, error) {
		s.mu.Lock()
		if s.rootsValid {
			cached := s.rootsCache
			s.mu.Unlock()
			return cached, nil
		}
		s.mu.Unlock()

		roots, err := s.fetchRoots(ctx, onProgress)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.rootsCache = roots
		s.rootsValid = true
		s.mu.Unlock()
		return roots, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Root), nil
}

func (s *Session) fetchRoots(ctx context.Context, onProgress ProgressFunc) ([]Root, error) {
	result, err := s.request(ctx, MethodRootsList, nil, onProgress)
	if err != nil {
		return nil, err
	}

	var res struct {
		Roots []Root `json:"roots"`
	}
	if err := bindParams(result, &res); err != nil {
		return nil, fmt.Errorf("malformed roots/list result: %w", err)
	}
	return res.Roots, nil
}

// invalidateRoots drops the memoized roots list.
func (s *Session) invalidateRoots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootsValid = false
	s.rootsCache = nil
}

// CreateMessage asks the client to run an LLM completion. It returns
// (nil, nil) when the client does not advertise the sampling capability.
func (ex *Exchange) CreateMessage(ctx context.Context, req SamplingRequest, onProgress ProgressFunc) (*SamplingResult, error) {
	s := ex.sess

	s.mu.Lock()
	caps := s.clientCapabilities
	s.mu.Unlock()
	if caps.Sampling == nil {
		return nil, nil
	}

	params := map[string]any{"messages": req.Messages}
	if req.ModelPreferences != nil {
		params["modelPreferences"] = req.ModelPreferences
	}
	if req.SystemPrompt != "" {
		params["systemPrompt"] = req.SystemPrompt
	}
	if req.MaxTokens != 0 {
		params["maxTokens"] = req.MaxTokens
	}

	result, err := s.request(ctx, MethodSamplingCreateMessage, params, onProgress)
	if err != nil {
		return nil, err
	}

	var res SamplingResult
	if err := bindParams(result, &res); err != nil {
		return nil, fmt.Errorf("malformed sampling result: %w", err)
	}
	return &res, nil
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo, LogLevelNotice:
		return slog.LevelInfo
	case LogLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
