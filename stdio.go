package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// StdIO serves a single session over a line-delimited reader/writer pair:
// one envelope or one batch array per newline-terminated UTF-8 line. EOF
// on the reader stops the loop and detaches the session output.
type StdIO struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	onConnect    func(*Session)
	onDisconnect func(*Session)
}

// StdIOOption configures a StdIO transport.
type StdIOOption func(*StdIO)

// WithStdIOLogger sets the transport logger.
func WithStdIOLogger(logger *slog.Logger) StdIOOption {
	return func(t *StdIO) {
		t.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "stdio"),
		)
	}
}

// WithStdIOOnConnect sets a callback invoked with the session before the
// read loop starts. Use it to keep a handle for runtime mutations such as
// AddTool.
func WithStdIOOnConnect(fn func(*Session)) StdIOOption {
	return func(t *StdIO) { t.onConnect = fn }
}

// WithStdIOOnDisconnect sets a callback invoked when the read loop stops.
func WithStdIOOnDisconnect(fn func(*Session)) StdIOOption {
	return func(t *StdIO) { t.onDisconnect = fn }
}

// NewStdIO creates a stdio transport over the given streams.
func NewStdIO(reader io.Reader, writer io.Writer, options ...StdIOOption) *StdIO {
	t := &StdIO{
		reader: reader,
		writer: writer,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Serve connects one session and pumps messages until EOF, a read error,
// or context cancellation. It returns nil on clean EOF.
func (t *StdIO) Serve(ctx context.Context, srv *Server) error {
	sess := srv.Connect(func(data []byte) error {
		// The session write lock serializes callers, so a line is one
		// atomic write.
		if _, err := t.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return nil
	})

	if t.onConnect != nil {
		t.onConnect(sess)
	}
	defer func() {
		sess.BindSend(nil)
		if t.onDisconnect != nil {
			t.onDisconnect(sess)
		}
	}()

	type lineOrErr struct {
		line string
		err  error
	}
	lines := make(chan lineOrErr)

	// Reading happens in its own goroutine so a slow reader cannot block
	// context cancellation.
	go func() {
		// bufio.Reader instead of bufio.Scanner avoids max token size errors.
		reader := bufio.NewReader(t.reader)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				select {
				case lines <- lineOrErr{err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case lines <- lineOrErr{line: strings.TrimSuffix(line, "\n")}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var le lineOrErr
		select {
		case <-ctx.Done():
			return ctx.Err()
		case le = <-lines:
		}

		if le.err != nil {
			if errors.Is(le.err, io.EOF) {
				return nil
			}
			t.logger.Error("failed to read message", slog.String("err", le.err.Error()))
			return le.err
		}
		if strings.TrimSpace(le.line) == "" {
			continue
		}

		sess.Ingest([]byte(le.line))
	}
}
