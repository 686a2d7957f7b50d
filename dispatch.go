package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// HandlerFunc is the uniform signature of every dispatch table entry. The
// Exchange is scoped to the current inbound message and is the only legal
// path back to the client. The returned value may be an *AsyncResult, in
// which case the dispatcher awaits it; outside a batch the wait does not
// block the read loop.
type HandlerFunc func(ctx context.Context, ex *Exchange, params any) (any, error)

// Middleware wraps a HandlerFunc. The first middleware of a configured
// stack is outermost.
type Middleware func(next HandlerFunc) HandlerFunc

// AsyncResult is a one-shot future a handler may return instead of an
// immediate value. The dispatcher awaits it and emits the response when it
// completes.
type AsyncResult struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewAsyncResult returns an unresolved AsyncResult.
func NewAsyncResult() *AsyncResult {
	return &AsyncResult{done: make(chan struct{})}
}

// Async runs fn in its own goroutine and returns its future result.
func Async(fn func() (any, error)) *AsyncResult {
	r := NewAsyncResult()
	go func() {
		r.Complete(fn())
	}()
	return r
}

// Complete resolves the result. Only the first call has any effect.
func (r *AsyncResult) Complete(v any, err error) {
	r.once.Do(func() {
		r.value = v
		r.err = err
		close(r.done)
	})
}

func (r *AsyncResult) wait() (any, error) {
	<-r.done
	// A handler may resolve with a nested AsyncResult; flatten it.
	if nested, ok := r.value.(*AsyncResult); ok {
		return nested.wait()
	}
	return r.value, r.err
}

// transform derives a new result whose outcome is f applied to this one.
func (r *AsyncResult) transform(f func(v any, err error) (any, error)) *AsyncResult {
	out := NewAsyncResult()
	go func() {
		out.Complete(f(r.wait()))
	}()
	return out
}

// WithError returns the middleware that converts handler panics and
// non-JSONRPCError failures into internal errors, logging them at level.
// It is installed outermost on every dispatch entry.
func WithError(logger *slog.Logger, level slog.Level) Middleware {
	toRPC := func(v any, err error) (any, error) {
		if err == nil {
			return v, nil
		}
		if rpcErr, ok := err.(JSONRPCError); ok {
			return nil, rpcErr
		}
		logger.Log(context.Background(), level, "handler failed", slog.String("err", err.Error()))
		return nil, JSONRPCError{Code: CodeInternalError, Message: err.Error()}
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ex *Exchange, params any) (result any, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Log(ctx, level, "handler panicked", slog.Any("panic", rec))
					result = nil
					err = JSONRPCError{Code: CodeInternalError, Message: fmt.Sprintf("%v", rec)}
				}
			}()

			v, err := next(ctx, ex, params)
			if ar, ok := v.(*AsyncResult); ok && err == nil {
				return ar.transform(toRPC), nil
			}
			return toRPC(v, err)
		}
	}
}

// WithAsync returns the middleware that hands the handler off to run and
// returns an AsyncResult, making otherwise-synchronous handlers concurrent.
// Passing nil uses a plain goroutine per call.
func WithAsync(run func(func())) Middleware {
	if run == nil {
		run = func(fn func()) { go fn() }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ex *Exchange, params any) (any, error) {
			r := NewAsyncResult()
			run(func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.Complete(nil, fmt.Errorf("%v", rec))
					}
				}()
				r.Complete(next(ctx, ex, params))
			})
			return r, nil
		}
	}
}

// withInitCheck rejects calls made before the session is initialized.
func withInitCheck(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ex *Exchange, params any) (any, error) {
		if !ex.sess.Initialized() {
			return nil, invalidParams("Session not initialized.")
		}
		return next(ctx, ex, params)
	}
}

// initCheckExempt lists the methods callable in any session state.
var initCheckExempt = map[string]struct{}{
	MethodInitialize:               {},
	MethodPing:                     {},
	MethodNotificationsInitialized: {},
	methodClientResponse:           {},
}

// buildDispatch composes the dispatch table once: error middleware
// outermost, then the user stack in configured order, then the init check
// on every non-exempt method, then the base handler.
//
// User middleware wraps the request methods only. The built-in
// notification handlers and the client-response pseudo-handler stay
// synchronous so cancellation, progress, and response correlation keep
// their arrival order even when the async middleware is installed.
func buildDispatch(base map[string]HandlerFunc, userMW []Middleware, logger *slog.Logger, errLevel slog.Level) map[string]HandlerFunc {
	table := make(map[string]HandlerFunc, len(base))
	errMW := WithError(logger, errLevel)

	for method, h := range base {
		composed := h
		if _, exempt := initCheckExempt[method]; !exempt {
			composed = withInitCheck(composed)
		}
		if !strings.HasPrefix(method, "notifications/") && method != methodClientResponse {
			for i := len(userMW) - 1; i >= 0; i-- {
				composed = userMW[i](composed)
			}
		}
		table[method] = errMW(composed)
	}
	return table
}
