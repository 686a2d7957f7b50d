package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRequestCancelled completes an outbound request that was cancelled
// locally with CancelServerRequest.
var ErrRequestCancelled = errors.New("client request cancelled")

type clientOutcome struct {
	result any
	err    error
}

// outstandingRequest correlates a server-initiated request id with the
// completion its caller is blocked on.
type outstandingRequest struct {
	id      int64
	created time.Time
	ch      chan clientOutcome
	token   string
}

func (o *outstandingRequest) complete(out clientOutcome) {
	if o.token != "" {
		unregisterProgress(o.token)
	}
	select {
	case o.ch <- out:
	default:
	}
}

// request sends a server-originated request and blocks until the client
// responds, the context is cancelled, or the timeout sweep expires it.
// Context cancellation carries may-interrupt semantics: a
// notifications/cancelled is sent and any later response is dropped.
func (s *Session) request(ctx context.Context, method string, params map[string]any, onProgress ProgressFunc) (any, error) {
	id := s.nextID.Add(1)

	var token string
	if onProgress != nil {
		token = uuid.NewString()
		registerProgress(token, onProgress)
		if params == nil {
			params = map[string]any{}
		}
		meta, _ := params["_meta"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["progressToken"] = token
		params["_meta"] = meta
	}

	o := &outstandingRequest{
		id:      id,
		created: time.Now(),
		ch:      make(chan clientOutcome, 1),
		token:   token,
	}
	key := fmt.Sprintf("n:%d", id)

	s.mu.Lock()
	s.outstanding[key] = o
	s.mu.Unlock()

	env := map[string]any{"jsonrpc": JSONRPCVersion, "id": id, "method": method}
	if params != nil {
		env["params"] = params
	}
	if err := s.emitEnvelope(env); err != nil {
		s.takeOutstanding(key)
		if token != "" {
			unregisterProgress(token)
		}
		return nil, err
	}

	select {
	case out := <-o.ch:
		return out.result, out.err
	case <-ctx.Done():
		if removed, ok := s.takeOutstanding(key); ok {
			removed.complete(clientOutcome{err: ctx.Err()})
			s.emitNotification(MethodNotificationsCancelled, cancelledParams{RequestID: id})
		}
		return nil, ctx.Err()
	}
}

// CancelServerRequest removes an outbound request locally without
// notifying the client; its caller unblocks with ErrRequestCancelled. Any
// later response for the id is dropped.
func (s *Session) CancelServerRequest(id int64) {
	if o, ok := s.takeOutstanding(fmt.Sprintf("n:%d", id)); ok {
		o.complete(clientOutcome{err: ErrRequestCancelled})
	}
}

func (s *Session) takeOutstanding(key string) (*outstandingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outstanding[key]
	if ok {
		delete(s.outstanding, key)
	}
	return o, ok
}

// sweepOutstanding expires entries older than the client request timeout.
// The sweep is opportunistic, driven by transport activity, and runs at
// most once per sweepInterval across concurrent callers.
func (s *Session) sweepOutstanding(now time.Time) {
	s.mu.Lock()
	if now.Sub(s.lastSweep) < sweepInterval {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now

	var expired []*outstandingRequest
	for key, o := range s.outstanding {
		if now.Sub(o.created) >= s.clientReqTimeout {
			delete(s.outstanding, key)
			expired = append(expired, o)
		}
	}
	s.mu.Unlock()

	for _, o := range expired {
		o.complete(clientOutcome{err: ErrRequestTimeout})
	}
}

// progressRegistry maps progress tokens to callbacks for outbound
// requests. It is process-wide; tokens are random UUIDs, so entries from
// different sessions cannot collide.
var progressRegistry sync.Map // string -> ProgressFunc

func registerProgress(token string, fn ProgressFunc) {
	progressRegistry.Store(token, fn)
}

func unregisterProgress(token string) {
	progressRegistry.Delete(token)
}

func progressFor(token string) (ProgressFunc, bool) {
	v, ok := progressRegistry.Load(token)
	if !ok {
		return nil, false
	}
	fn, ok := v.(ProgressFunc)
	return fn, ok
}
