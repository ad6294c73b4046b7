// Package main is the entry point for the sqldojo MCP server.
//
// The sqldojo server implements a Model Context Protocol (MCP) server that
// executes untrusted SQL against SQLite database files in bounded sandboxes.
// It builds reference databases for practice questions and labs, grades
// practice answers by result-set fingerprint, and manages per-student lab
// session databases through their full lifecycle (start, reset, end, sweep).
// The server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
