package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/authoring"
	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/reaper"
	"github.com/sqldojo/sqldojo/sandbox"
	"github.com/sqldojo/sqldojo/session"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	manager   *lifecycle.Manager
	authoring *authoring.Service
	sessions  *session.Service
	reaper    *reaper.Reaper
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, manager *lifecycle.Manager,
	authoringSvc *authoring.Service, sessionSvc *session.Service, r *reaper.Reaper) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		manager:   manager,
		authoring: authoringSvc,
		sessions:  sessionSvc,
		reaper:    r,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("storage.data_dir", s.config.Storage.DataDir),
		zap.String("storage.metadata_db", s.config.Storage.MetadataDB),
		zap.Int("executor.readonly_timeout_sec", s.config.Executor.ReadOnlyTimeoutSec),
		zap.Int("executor.lab_timeout_sec", s.config.Executor.LabTimeoutSec),
		zap.Int("cleanup.max_delete_retries", s.config.Cleanup.MaxDeleteRetries),
		zap.Int("cleanup.retry_delay_ms", s.config.Cleanup.RetryDelayMS),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("sqldojo", "A sandboxed SQL practice and lab engine")

	s.registerTools()

	return s, nil
}

// registerTools registers every tool the engine exposes
func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_sql",
		Description: "Execute one SQL statement against a database file under a bounded timeout",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"database_path": map[string]any{
					"type":        "string",
					"description": "Path to the database file",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "SQL statement to execute",
				},
				"mode": map[string]any{
					"type":        "string",
					"description": "Execution mode: readonly allows a single SELECT only, lab allows any statement",
					"enum":        []string{sandbox.ModeReadOnly, sandbox.ModeLab},
				},
			},
			Required: []string{"database_path", "query", "mode"},
		},
	}, s.handleExecuteSQL)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "build_reference",
		Description: "Build a reference database from schema and seed SQL, optionally fingerprinting a reference answer query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"key": map[string]any{
					"type":        "string",
					"description": "Stable key for the reference database (generated when omitted)",
				},
				"schema_sql": map[string]any{
					"type":        "string",
					"description": "CREATE TABLE statements",
				},
				"seed_sql": map[string]any{
					"type":        "string",
					"description": "INSERT statements (optional)",
				},
				"answer_query": map[string]any{
					"type":        "string",
					"description": "Reference SELECT whose result set is fingerprinted (optional, omit for labs)",
				},
			},
			Required: []string{"schema_sql"},
		},
	}, s.handleBuildReference)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "check_answer",
		Description: "Run a student's practice query read-only and grade it against the stored answer fingerprint",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"question_key": map[string]any{
					"type":        "string",
					"description": "Key of the practice question",
				},
				"student_id": map[string]any{
					"type":        "string",
					"description": "Submitting student",
				},
				"database_path": map[string]any{
					"type":        "string",
					"description": "Path to the question's reference database",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Student's SELECT statement",
				},
				"expected_fingerprint": map[string]any{
					"type":        "string",
					"description": "Stored fingerprint of the reference answer",
				},
			},
			Required: []string{"question_key", "student_id", "database_path", "query", "expected_fingerprint"},
		},
	}, s.handleCheckAnswer)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "start_lab_session",
		Description: "Start (or return the already-active) lab session for a student",
		InputSchema: labSessionSchema(),
	}, s.handleStartLabSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_lab_session",
		Description: "Replace a student's session database with a fresh copy of the lab reference",
		InputSchema: labSessionSchema(),
	}, s.handleResetLabSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "end_lab_session",
		Description: "Terminate a student's lab session and reclaim its database file",
		InputSchema: labSessionSchema(),
	}, s.handleEndLabSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_lab_sql",
		Description: "Execute one statement of any kind in a student's active lab session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"lab_key": map[string]any{
					"type":        "string",
					"description": "Key of the lab",
				},
				"student_id": map[string]any{
					"type":        "string",
					"description": "Owner of the session",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "SQL statement to execute",
				},
			},
			Required: []string{"lab_key", "student_id", "query"},
		},
	}, s.handleExecuteLabSQL)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "stop_lab",
		Description: "Terminate every active session of a lab",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"lab_key": map[string]any{
					"type":        "string",
					"description": "Key of the lab",
				},
			},
			Required: []string{"lab_key"},
		},
	}, s.handleStopLab)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "preview_schema",
		Description: "List the tables, columns and creation SQL of a database file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"database_path": map[string]any{
					"type":        "string",
					"description": "Path to the database file",
				},
			},
			Required: []string{"database_path"},
		},
	}, s.handlePreviewSchema)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "sweep_orphan_files",
		Description: "Delete session database files that no active session references",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleSweepOrphanFiles)
}

// labSessionSchema is the shared input schema of the per-session tools
func labSessionSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"lab_key": map[string]any{
				"type":        "string",
				"description": "Key of the lab",
			},
			"student_id": map[string]any{
				"type":        "string",
				"description": "Owner of the session",
			},
		},
		Required: []string{"lab_key", "student_id"},
	}
}

func (s *MCPServer) handleExecuteSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("database_path")
	if err != nil {
		return nil, fmt.Errorf("database_path parameter is required: %w", err)
	}
	query, err := request.RequireString("query")
	if err != nil {
		return nil, fmt.Errorf("query parameter is required: %w", err)
	}
	mode, err := request.RequireString("mode")
	if err != nil {
		return nil, fmt.Errorf("mode parameter is required: %w", err)
	}

	timeout := s.config.GetReadOnlyTimeout()
	if mode == sandbox.ModeLab {
		timeout = s.config.GetLabTimeout()
	}
	executor, err := sandbox.NewExecutor(s.logger, mode, timeout)
	if err != nil {
		return nil, err
	}

	s.logger.Info("executing sql statement",
		zap.String("mode", mode),
		zap.String("database_path", dbPath),
	)

	result := executor.Execute(ctx, dbPath, query)
	return jsonResult(result)
}

func (s *MCPServer) handleBuildReference(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaSQL, err := request.RequireString("schema_sql")
	if err != nil {
		return nil, fmt.Errorf("schema_sql parameter is required: %w", err)
	}
	key := request.GetString("key", "")
	if key == "" {
		key = authoring.NewQuestionKey()
	}
	seedSQL := request.GetString("seed_sql", "")
	answerQuery := request.GetString("answer_query", "")

	published, err := s.authoring.PublishReference(ctx, key, schemaSQL, seedSQL, answerQuery)
	if err != nil {
		s.logger.Error("reference build failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return errorResult(fmt.Sprintf("reference build failed: %v", err)), nil
	}

	return jsonResult(published)
}

func (s *MCPServer) handleCheckAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questionKey, err := request.RequireString("question_key")
	if err != nil {
		return nil, fmt.Errorf("question_key parameter is required: %w", err)
	}
	studentID, err := request.RequireString("student_id")
	if err != nil {
		return nil, fmt.Errorf("student_id parameter is required: %w", err)
	}
	dbPath, err := request.RequireString("database_path")
	if err != nil {
		return nil, fmt.Errorf("database_path parameter is required: %w", err)
	}
	query, err := request.RequireString("query")
	if err != nil {
		return nil, fmt.Errorf("query parameter is required: %w", err)
	}
	expected, err := request.RequireString("expected_fingerprint")
	if err != nil {
		return nil, fmt.Errorf("expected_fingerprint parameter is required: %w", err)
	}

	outcome, err := s.sessions.ExecutePractice(ctx, questionKey, studentID, dbPath, query, expected)
	if err != nil {
		return errorResult(fmt.Sprintf("practice execution failed: %v", err)), nil
	}
	return jsonResult(outcome)
}

func (s *MCPServer) handleStartLabSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labKey, studentID, err := labSessionParams(request)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Start(ctx, labKey, studentID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to start session: %v", err)), nil
	}
	return jsonResult(sess)
}

func (s *MCPServer) handleResetLabSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labKey, studentID, err := labSessionParams(request)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Reset(ctx, labKey, studentID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to reset session: %v", err)), nil
	}
	return jsonResult(sess)
}

func (s *MCPServer) handleEndLabSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labKey, studentID, err := labSessionParams(request)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.End(ctx, labKey, studentID); err != nil {
		return errorResult(fmt.Sprintf("failed to end session: %v", err)), nil
	}
	return jsonResult(map[string]any{"ended": true})
}

func (s *MCPServer) handleExecuteLabSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labKey, studentID, err := labSessionParams(request)
	if err != nil {
		return nil, err
	}
	query, err := request.RequireString("query")
	if err != nil {
		return nil, fmt.Errorf("query parameter is required: %w", err)
	}

	result, err := s.sessions.ExecuteLab(ctx, labKey, studentID, query)
	if err != nil {
		return errorResult(fmt.Sprintf("lab execution failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (s *MCPServer) handleStopLab(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labKey, err := request.RequireString("lab_key")
	if err != nil {
		return nil, fmt.Errorf("lab_key parameter is required: %w", err)
	}

	terminated, err := s.sessions.EndAllForLab(ctx, labKey)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to stop lab: %v", err)), nil
	}

	s.logger.Info("lab stopped",
		zap.String("lab_key", labKey),
		zap.Int("terminated", terminated),
	)
	return jsonResult(map[string]any{"terminated": terminated})
}

func (s *MCPServer) handlePreviewSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("database_path")
	if err != nil {
		return nil, fmt.Errorf("database_path parameter is required: %w", err)
	}

	tables, err := s.manager.IntrospectSchema(ctx, dbPath)
	if err != nil {
		return errorResult(fmt.Sprintf("schema preview failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"tables": tables})
}

func (s *MCPServer) handleSweepOrphanFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cleaned, err := s.reaper.SweepOrphanFiles(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("orphan sweep failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"cleaned": cleaned})
}

// labSessionParams extracts the shared (lab_key, student_id) parameters
func labSessionParams(request mcp.CallToolRequest) (string, string, error) {
	labKey, err := request.RequireString("lab_key")
	if err != nil {
		return "", "", fmt.Errorf("lab_key parameter is required: %w", err)
	}
	studentID, err := request.RequireString("student_id")
	if err != nil {
		return "", "", fmt.Errorf("student_id parameter is required: %w", err)
	}
	return labKey, studentID, nil
}

// jsonResult marshals a payload into a text content tool result
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

// errorResult builds an IsError tool result with a plain message
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: message,
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
