package mcp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(t *testing.T, options ...ServerOption) *Session {
	t.Helper()
	srv := NewServer(Info{Name: "t", Version: "0"}, options...)
	return srv.Connect(func([]byte) error { return nil })
}

func TestSweepExpiresOldRequests(t *testing.T) {
	sess := testSession(t, WithClientRequestTimeout(10*time.Millisecond))

	errs := make(chan error, 1)
	go func() {
		_, err := sess.request(context.Background(), MethodRootsList, nil, nil)
		errs <- err
	}()

	// Wait for the entry to land in the table.
	deadline := time.Now().Add(time.Second)
	for {
		sess.mu.Lock()
		n := len(sess.outstanding)
		sess.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// Sweep from far enough in the future to pass both the interval gate
	// and the timeout.
	sess.sweepOutstanding(time.Now().Add(time.Second))

	select {
	case err := <-errs:
		if !errors.Is(err, ErrRequestTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("caller never unblocked")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.outstanding) != 0 {
		t.Fatalf("table not empty: %d entries", len(sess.outstanding))
	}
}

func TestSweepIsRateLimited(t *testing.T) {
	sess := testSession(t, WithClientRequestTimeout(time.Nanosecond))

	now := time.Now()
	sess.sweepOutstanding(now)

	// Plant an expired entry after the first sweep.
	o := &outstandingRequest{id: 1, created: now.Add(-time.Hour), ch: make(chan clientOutcome, 1)}
	sess.mu.Lock()
	sess.outstanding["n:1"] = o
	sess.mu.Unlock()

	// Within the interval nothing is swept.
	sess.sweepOutstanding(now.Add(100 * time.Millisecond))
	sess.mu.Lock()
	remaining := len(sess.outstanding)
	sess.mu.Unlock()
	if remaining != 1 {
		t.Fatal("sweep ran inside the rate-limit window")
	}

	// Past the interval the entry goes.
	sess.sweepOutstanding(now.Add(sweepInterval + time.Millisecond))
	sess.mu.Lock()
	remaining = len(sess.outstanding)
	sess.mu.Unlock()
	if remaining != 0 {
		t.Fatal("sweep did not run after the rate-limit window")
	}
}

func TestCancelServerRequestIsLocal(t *testing.T) {
	var sent [][]byte
	srv := NewServer(Info{Name: "t", Version: "0"})
	sess := srv.Connect(func(data []byte) error {
		sent = append(sent, data)
		return nil
	})

	errs := make(chan error, 1)
	go func() {
		_, err := sess.request(context.Background(), MethodRootsList, nil, nil)
		errs <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		sess.mu.Lock()
		n := len(sess.outstanding)
		sess.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(time.Millisecond)
	}

	sess.CancelServerRequest(1)

	select {
	case err := <-errs:
		if !errors.Is(err, ErrRequestCancelled) {
			t.Fatalf("expected local cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("caller never unblocked")
	}

	// Only the request itself was written; no cancelled notification.
	if len(sent) != 1 {
		t.Fatalf("expected 1 outbound frame, got %d", len(sent))
	}
}

func TestProgressTokenLifecycle(t *testing.T) {
	sess := testSession(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.request(context.Background(), MethodRootsList, nil, func(map[string]any) {})
	}()

	var token string
	deadline := time.Now().Add(time.Second)
	for token == "" {
		var o *outstandingRequest
		sess.mu.Lock()
		for _, e := range sess.outstanding {
			o = e
		}
		sess.mu.Unlock()
		if o != nil {
			token = o.token
		}
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
	}

	if _, ok := progressFor(token); !ok {
		t.Fatal("token not registered while request is outstanding")
	}

	// Terminal completion removes the registration.
	o, _ := sess.takeOutstanding("n:1")
	o.complete(clientOutcome{result: map[string]any{}})
	<-done

	if _, ok := progressFor(token); ok {
		t.Fatal("token still registered after completion")
	}
}
