package sfmcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers TestConnection, RunSQL, CortexSearch, and
// AgentRun as MCP tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, sfMcp *SnowflakeMcp) {
	// TestConnection tool
	testConnectionTool := mcp.NewTool("test_connection",
		mcp.WithDescription("Open a Snowflake session, apply the configured role/warehouse/database/schema, and run a health probe. Returns the session summary as JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(testConnectionTool, sfMcp.loggedToolHandler("test_connection", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := sfMcp.TestConnection(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal connection test result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// RunSQL tool
	runSQLTool := mcp.NewTool("run_sql",
		mcp.WithDescription("Execute a SQL statement against Snowflake. The statement is passed through verbatim; results are returned as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
	)

	mcpServer.AddTool(runSQLTool, sfMcp.loggedToolHandler("run_sql", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		output, err := sfMcp.RunSQL(ctx, RunSQLInput{SQL: sql})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// CortexSearch tool
	cortexSearchTool := mcp.NewTool("cortex_search",
		mcp.WithDescription("Query a Cortex Search service for relevant rows. Returns matching documents as JSON."),
		mcp.WithString("service_name",
			mcp.Required(),
			mcp.Description("The Cortex Search service name"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query text"),
		),
		mcp.WithString("database",
			mcp.Description("Database holding the service (defaults to the configured database)"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema holding the service (defaults to the configured schema)"),
		),
		mcp.WithString("columns",
			mcp.Description("Comma-separated list of columns to return"),
		),
		mcp.WithString("filter",
			mcp.Description("Filter as a JSON object, passed to the service verbatim"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (defaults to 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(cortexSearchTool, sfMcp.loggedToolHandler("cortex_search", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		service, err := req.RequireString("service_name")
		if err != nil {
			return mcp.NewToolResultError("service_name parameter is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		output, err := sfMcp.CortexSearch(ctx, SearchInput{
			Service:  service,
			Database: req.GetString("database", ""),
			Schema:   req.GetString("schema", ""),
			Query:    query,
			Columns:  splitColumns(req.GetString("columns", "")),
			Filter:   req.GetString("filter", ""),
			Limit:    req.GetInt("limit", 0),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal search result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// CortexAgent tool
	cortexAgentTool := mcp.NewTool("cortex_agent",
		mcp.WithDescription("Run a Cortex agent conversation. Provide either a prompt or a full messages array; returns the aggregated text and parsed events as JSON."),
		mcp.WithString("prompt",
			mcp.Description("Single user prompt (shorthand for a one-message conversation)"),
		),
		mcp.WithString("messages",
			mcp.Description("Full conversation as a JSON array of {role, content} messages"),
		),
		mcp.WithString("model",
			mcp.Description("Cortex model name (defaults to the configured model)"),
		),
	)

	mcpServer.AddTool(cortexAgentTool, sfMcp.loggedToolHandler("cortex_agent", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt := req.GetString("prompt", "")
		messagesJSON := req.GetString("messages", "")
		if prompt == "" && messagesJSON == "" {
			return mcp.NewToolResultError("prompt or messages parameter is required"), nil
		}

		var messages []AgentMessage
		if messagesJSON != "" {
			if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
				return mcp.NewToolResultError("invalid messages: must be a JSON array of {role, content} objects"), nil
			}
		} else {
			messages = []AgentMessage{{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: prompt}},
			}}
		}

		output, err := sfMcp.AgentRun(ctx, AgentRunInput{
			Model:    req.GetString("model", ""),
			Messages: messages,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal agent result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))
}

// splitColumns parses a comma-separated column list, dropping empty entries.
func splitColumns(columns string) []string {
	if columns == "" {
		return nil
	}
	var out []string
	for _, col := range strings.Split(columns, ",") {
		col = strings.TrimSpace(col)
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (s *SnowflakeMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		s.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
