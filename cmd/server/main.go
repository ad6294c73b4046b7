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

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/authoring"
	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/logger"
	"github.com/sqldojo/sqldojo/mcpserver"
	"github.com/sqldojo/sqldojo/reaper"
	"github.com/sqldojo/sqldojo/session"
	"github.com/sqldojo/sqldojo/store"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Metadata store and its interface views
			func(cfg *config.Config) (*store.SQLiteStore, error) {
				return store.NewSQLiteStore(cfg.Storage.MetadataDB)
			},
			func(s *store.SQLiteStore) store.SessionStore { return s },
			func(s *store.SQLiteStore) store.AttemptStore { return s },

			// Database lifecycle manager
			func(log *zap.Logger, cfg *config.Config) *lifecycle.Manager {
				return lifecycle.NewManager(log, cfg)
			},

			// Session reaper
			func(log *zap.Logger, cfg *config.Config, sessions store.SessionStore, attempts store.AttemptStore) *reaper.Reaper {
				return reaper.NewReaper(log, cfg, sessions, attempts)
			},

			// Domain services
			session.NewService,
			authoring.NewService,

			// MCP Server
			mcpserver.New,
		),

		// Close the metadata store on shutdown
		fx.Invoke(
			func(lc fx.Lifecycle, s *store.SQLiteStore) {
				lc.Append(fx.StopHook(s.Close))
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
