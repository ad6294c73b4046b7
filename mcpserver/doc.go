// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the SQL practice engine as MCP tools: query
// execution in both sandbox modes, reference database publishing, lab
// session start/reset/end, schema preview and orphan-file sweeping. It
// uses the mark3labs/mcp-go library to handle the protocol details.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, manager, authoringSvc, sessionSvc, reaper)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
