// Package main provides the entry point for the spanscope MCP (Model Context Protocol) server.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"spanscope/internal/clients"
	"spanscope/internal/config"
	mcpsrv "spanscope/internal/mcp"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// stdout carries the protocol, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.SlogLevel()}))
	slog.SetDefault(logger)

	backend, err := clients.New(cfg.Backend, nil, logger)
	if err != nil {
		log.Fatalf("Failed to create backend client: %v", err)
	}

	s := server.NewMCPServer(
		"spanscope-mcp",
		version,
	)
	mcpsrv.New(backend, nil, logger).RegisterTools(s)

	logger.Info("spanscope MCP server listening on stdio", "backend", cfg.Backend.KindName())
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
