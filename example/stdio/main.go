// Command stdio serves the filesystem MCP server over stdin/stdout.
package main

import (
	"context"
	"log/slog"
	"os"

	mcp "github.com/altgrove/go-mcp"
	"github.com/altgrove/go-mcp/servers/filesystem"
)

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	options, err := filesystem.Options(root)
	if err != nil {
		slog.Error("failed to configure filesystem server", "err", err)
		os.Exit(1)
	}
	options = append(options, mcp.WithLogging())

	srv := mcp.NewServer(mcp.Info{Name: "filesystem", Version: "1.0.0"}, options...)

	if err := mcp.NewStdIO(os.Stdin, os.Stdout).Serve(context.Background(), srv); err != nil &&
		err != context.Canceled {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
