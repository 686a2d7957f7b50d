package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// baseHandlers returns the full dispatch table before middleware
// composition. Every MCP method and inbound notification is present;
// capability gating happens inside the handlers.
func baseHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		MethodInitialize: handleInitialize,
		MethodPing:       handlePing,

		MethodToolsList: handleToolsList,
		MethodToolsCall: handleToolsCall,

		MethodPromptsList: handlePromptsList,
		MethodPromptsGet:  handlePromptsGet,

		MethodResourcesList:          handleResourcesList,
		MethodResourcesRead:          handleResourcesRead,
		MethodResourcesSubscribe:     handleResourcesSubscribe,
		MethodResourcesUnsubscribe:   handleResourcesUnsubscribe,
		MethodResourcesTemplatesList: handleResourcesTemplatesList,

		MethodCompletionComplete: handleCompletionComplete,
		MethodLoggingSetLevel:    handleLoggingSetLevel,

		MethodNotificationsInitialized:      handleNotificationsInitialized,
		MethodNotificationsCancelled:        handleNotificationsCancelled,
		MethodNotificationsProgress:         handleNotificationsProgress,
		MethodNotificationsRootsListChanged: handleNotificationsRootsListChanged,

		methodClientResponse: handleClientResponse,
	}
}

func handleInitialize(_ context.Context, ex *Exchange, params any) (any, error) {
	var p initializeParams
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}

	s := ex.sess
	s.mu.Lock()

	if s.initState != stateFresh {
		s.mu.Unlock()
		return nil, invalidParams("Session is initialized already")
	}

	if !slices.Contains(supportedProtocolVersions, p.ProtocolVersion) {
		s.mu.Unlock()
		return nil, JSONRPCError{
			Code:    CodeInvalidRequest,
			Message: "Unsupported protocol version",
			Data: map[string]any{
				"error":     fmt.Sprintf("unsupported protocol version %q", p.ProtocolVersion),
				"supported": supportedProtocolVersions,
			},
		}
	}

	s.clientInfo = p.ClientInfo
	s.clientCapabilities = p.Capabilities
	s.protocolVersion = p.ProtocolVersion
	s.initState = stateInitializing

	caps := ServerCapabilities{}
	if s.advertiseLogging {
		caps.Logging = &LoggingCapability{}
	}
	if len(s.completions) > 0 || s.defaultCompletion != nil {
		caps.Completions = &CompletionsCapability{}
	}
	if len(s.prompts) > 0 {
		caps.Prompts = &PromptsCapability{ListChanged: false}
	}
	if len(s.tools) > 0 {
		caps.Tools = &ToolsCapability{ListChanged: true}
	}
	if s.resources != nil {
		caps.Resources = &ResourcesCapability{
			Subscribe:   s.resources.SupportsSubscriptions(),
			ListChanged: s.resources.SupportsListChanged(),
		}
	}

	res := initializeResult{
		ProtocolVersion: p.ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
	s.mu.Unlock()

	return res, nil
}

func handlePing(_ context.Context, _ *Exchange, _ any) (any, error) {
	return struct{}{}, nil
}

func handleLoggingSetLevel(_ context.Context, ex *Exchange, params any) (any, error) {
	var p struct {
		Level LogLevel `json:"level"`
	}
	if err := bindParams(params, &p); err != nil {
		return nil, invalidParams(err.Error())
	}
	if !ValidLogLevel(p.Level) {
		return nil, invalidParams(fmt.Sprintf("unknown logging level %q", p.Level))
	}

	s := ex.sess
	s.mu.Lock()
	s.loggingLevel = p.Level
	s.mu.Unlock()
	return struct{}{}, nil
}

func handleNotificationsInitialized(_ context.Context, ex *Exchange, _ any) (any, error) {
	s := ex.sess
	s.mu.Lock()
	// Idempotent; never downgrades. An initialized notification before a
	// successful initialize is ignored.
	if s.initState == stateInitializing {
		s.initState = stateInitialized
	}
	s.mu.Unlock()
	return nil, nil
}

func handleNotificationsCancelled(_ context.Context, ex *Exchange, params any) (any, error) {
	obj, ok := params.(map[string]any)
	if !ok {
		return nil, nil
	}
	requestID, ok := obj["requestId"]
	if !ok {
		return nil, nil
	}
	reason, _ := obj["reason"].(string)

	s := ex.sess
	if sig, found := s.lookupInFlight(idKey(requestID)); found {
		s.logger.Debug("cancelling in-flight request",
			slog.String("requestId", idKey(requestID)), slog.String("reason", reason))
		sig.complete(reason)
	}
	return nil, nil
}

func handleNotificationsProgress(_ context.Context, ex *Exchange, params any) (any, error) {
	obj, ok := params.(map[string]any)
	if !ok {
		return nil, nil
	}
	token := tokenKey(obj["progressToken"])
	if token == "" {
		return nil, nil
	}
	// Absent registrations are ignored.
	if fn, found := progressFor(token); found {
		fn(obj)
	}
	return nil, nil
}

func handleNotificationsRootsListChanged(_ context.Context, ex *Exchange, _ any) (any, error) {
	s := ex.sess
	s.invalidateRoots()

	s.mu.Lock()
	callback := s.rootsChanged
	s.mu.Unlock()
	if callback != nil {
		callback(s)
	}
	return nil, nil
}

// handleClientResponse is the pseudo-method handler for envelopes that
// carry an id and a result or error: it completes the matching outstanding
// server request. Responses without a match are dropped.
func handleClientResponse(_ context.Context, ex *Exchange, params any) (any, error) {
	item, ok := params.(parsedItem)
	if !ok {
		return nil, nil
	}

	s := ex.sess
	o, found := s.takeOutstanding(idKey(item.id))
	if !found {
		s.logger.Debug("dropping unmatched client response", slog.String("id", idKey(item.id)))
		return nil, nil
	}

	if item.errObj != nil {
		o.complete(clientOutcome{err: ClientError{
			Code:    item.errObj.Code,
			Message: item.errObj.Message,
			Data:    item.errObj.Data,
		}})
		return nil, nil
	}
	o.complete(clientOutcome{result: item.result})
	return nil, nil
}
