// Package sfmcp provides controlled Snowflake access for AI agents through
// the Model Context Protocol (MCP).
//
// It exposes four tools — TestConnection, RunSQL, CortexSearch, and
// AgentRun — on top of a strict session lifecycle: resolve credentials from
// parameters or SNOWFLAKE_* environment variables, open a session, apply the
// configured role/warehouse/database/schema through ordered use statements,
// execute, and tear the session down on every exit path. Each operation gets
// its own session; nothing is pooled or shared between calls.
//
// Credentials support passwords and unencrypted PKCS#8 key pairs, with
// key-pair authentication taking precedence when both are configured. The
// Cortex tools talk to the Snowflake REST API using a programmatic access
// token from SNOWFLAKE_PAT, falling back to the password.
//
// # Library Usage
//
//	s, err := sfmcp.New(sfmcp.ConnectionParams{
//		Account:   "myorg-myaccount",
//		Username:  "agent",
//		Warehouse: "ANALYTICS_WH",
//	}, sfmcp.Config{
//		Query: sfmcp.QueryConfig{DefaultTimeoutSeconds: 120},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close(ctx)
//
//	// Use directly
//	result, err := s.RunSQL(ctx, sfmcp.RunSQLInput{SQL: "select current_version()"})
//
//	// Or register as MCP tools
//	sfmcp.RegisterMCPTools(mcpServer, s)
//
// # Hooks
//
// In server mode, before_query and after_query command hooks run as a
// middleware chain around statement execution. A before_query hook receives
// the SQL on stdin and may modify or reject it; an after_query hook receives
// the result JSON and may modify or reject it. Hooks are matched by regex
// pattern and their verdicts are JSON objects on stdout.
//
// Library callers who need programmatic interception should wrap RunSQL
// directly; there is no Go hook interface.
//
// For full documentation, configuration reference, and examples, see:
// https://github.com/veldrane/snowflake-mcp
package sfmcp
