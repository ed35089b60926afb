package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = log.New(os.Stderr, "[sapbo-mcp] ", log.LstdFlags)

// ─── Configuration ───────────────────────────────────────────────────────────

// config holds the SAP BusinessObjects connection settings.
type config struct {
	baseURL  string
	username string
	password string
	authMode string
}

// configFromEnv builds the connection config from SAP_BO_* environment
// variables:
//
//	SAP_BO_REST_API_URL – base URL of the RESTful web service (required),
//	                      e.g. http://host:6405/biprws
//	SAP_BO_USERNAME     – logon user (required)
//	SAP_BO_PASSWORD     – logon password (required)
//	SAP_BO_AUTH         – authentication mode (optional, defaults to
//	                      secEnterprise; e.g. secLDAP, secWinAD)
func configFromEnv() (config, error) {
	cfg := config{
		baseURL:  strings.TrimRight(os.Getenv("SAP_BO_REST_API_URL"), "/"),
		username: os.Getenv("SAP_BO_USERNAME"),
		password: os.Getenv("SAP_BO_PASSWORD"),
		authMode: os.Getenv("SAP_BO_AUTH"),
	}

	var missing []string
	if cfg.baseURL == "" {
		missing = append(missing, "SAP_BO_REST_API_URL")
	}
	if cfg.username == "" {
		missing = append(missing, "SAP_BO_USERNAME")
	}
	if cfg.password == "" {
		missing = append(missing, "SAP_BO_PASSWORD")
	}
	if len(missing) > 0 {
		return config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if cfg.authMode == "" {
		cfg.authMode = "secEnterprise"
	}
	return cfg, nil
}

// ─── MCP result helpers ──────────────────────────────────────────────────────

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textResult(fmt.Sprintf("json marshal error: %v", err))
	}
	return textResult(string(b))
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// domainError renders a caught domain error the way the tool surface
// promises: plain "Error: <message>" text, not a protocol-level failure.
func domainError(err error) *mcp.CallToolResult {
	return textResult(fmt.Sprintf("Error: %v", err))
}

// ─── Tools ───────────────────────────────────────────────────────────────────

type toolServer struct {
	client *apiClient
	m      *metrics
}

func (s *toolServer) handleGetTables(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t0 := time.Now()
	tables := s.client.getTables(ctx)

	recs := make([]record, 0, len(tables))
	for _, t := range tables {
		recs = append(recs, newRecord([]string{"table_name", "id"}, []string{t.Name, t.ID}))
	}
	out, err := recordsToCSV(recs)
	s.m.record("get_tables", time.Since(t0), err != nil)
	if err != nil {
		return domainError(err), nil
	}
	return textResult(out), nil
}

func (s *toolServer) handleGetColumns(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Table string `json:"table"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.Table == "" {
		return errResult(fmt.Errorf("table is required")), nil
	}

	t0 := time.Now()
	cols, err := s.client.getColumns(ctx, args.Table)
	s.m.record("get_columns", time.Since(t0), err != nil)
	if err != nil {
		return domainError(err), nil
	}

	recs := make([]record, 0, len(cols))
	for _, c := range cols {
		recs = append(recs, newRecord(
			[]string{"column_name", "data_type", "description"},
			[]string{c.Name, c.DataType, c.Description}))
	}
	out, err := recordsToCSV(recs)
	if err != nil {
		return domainError(err), nil
	}
	return textResult(out), nil
}

func (s *toolServer) handleRunQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.SQL == "" {
		return errResult(fmt.Errorf("sql is required")), nil
	}

	t0 := time.Now()
	rows, err := s.client.runQuery(ctx, args.SQL)
	s.m.record("run_query", time.Since(t0), err != nil)
	if err != nil {
		return domainError(err), nil
	}

	out, err := recordsToCSV(rows)
	if err != nil {
		return domainError(err), nil
	}
	return textResult(out), nil
}

func (s *toolServer) handleSessionInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.client.sessionInfo()), nil
}

func (s *toolServer) handleMetricsGet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.m.snapshot()), nil
}

func newServer(client *apiClient, m *metrics) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sapbo-mcp-server",
		Version: "1.0.0",
	}, nil)
	ts := &toolServer{client: client, m: m}

	server.AddTool(&mcp.Tool{
		Name:        "get_tables",
		Description: "Retrieve a CSV list of objects, entities, collections, etc. (as tables) available in the data source. Use the get_columns tool to list available columns on a table.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}, ts.handleGetTables)

	server.AddTool(&mcp.Tool{
		Name:        "get_columns",
		Description: "Retrieve a CSV list of fields, dimensions, or measures (as columns) for an object, entity or collection (table). Use the get_tables tool to get a list of available tables.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"table":{"type":"string","description":"The name of the table to retrieve columns for."}},"required":["table"]}`),
	}, ts.handleGetColumns)

	server.AddTool(&mcp.Tool{
		Name:        "run_query",
		Description: "Execute a SQL SELECT statement and return the result as CSV. The format should be 'SELECT col1, col2 FROM [TableName]'.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"sql":{"type":"string","description":"The SELECT statement to execute."}},"required":["sql"]}`),
	}, ts.handleRunQuery)

	server.AddTool(&mcp.Tool{
		Name:        "bo_session_info",
		Description: "Get SAP BusinessObjects connection settings (base URL, user, auth mode) and whether a logon token is currently held.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}, ts.handleSessionInfo)

	server.AddTool(&mcp.Tool{
		Name:        "metrics_get",
		Description: "Return tool call statistics: total/success/failure counts, durations, and per-tool call counts.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}, ts.handleMetricsGet)

	return server
}

// ─── Main ────────────────────────────────────────────────────────────────────

func main() {
	cfg, err := configFromEnv()
	if err != nil {
		logger.Fatalf("SAP BO connection config error: %v", err)
	}

	client := newAPIClient(cfg)
	ctx := context.Background()

	logger.Printf("logging into SAP BO at %s (user=%s, auth=%s)", cfg.baseURL, cfg.username, cfg.authMode)
	if err := client.login(ctx); err != nil {
		logger.Fatalf("failed to log in: %v", err)
	}
	logger.Printf("logged in")

	server := newServer(client, newMetrics())

	logger.Printf("MCP server starting (stdio)")
	runErr := server.Run(ctx, &mcp.StdioTransport{})

	logger.Printf("shutting down")
	client.logout(ctx)
	if runErr != nil {
		logger.Fatalf("server error: %v", runErr)
	}
}
