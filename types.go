package sfmcp

// RunSQLInput is the input to RunSQL.
type RunSQLInput struct {
	SQL string `json:"sql"`
}

// QueryResult is the outcome of one executed statement. Field names follow
// the wire contract consumed by MCP clients.
type QueryResult struct {
	QueryID        string                   `json:"queryId"`
	SessionID      string                   `json:"sessionId,omitempty"`
	SQLText        string                   `json:"sqlText"`
	Rows           []map[string]interface{} `json:"rows"`
	RowCount       int                      `json:"rowCount"`
	DefaultContext *SessionState            `json:"defaultContext,omitempty"`
}

// SessionSummary reports the outcome of a connection test. Optional fields
// are omitted entirely when absent rather than serialized as null.
type SessionSummary struct {
	Status         string        `json:"status"`
	ConnectionID   string        `json:"connectionId"`
	SessionID      string        `json:"sessionId,omitempty"`
	HealthQueryID  string        `json:"healthQueryId,omitempty"`
	ServerDateTime string        `json:"serverDateTime"`
	DefaultContext *SessionState `json:"defaultContext,omitempty"`
	DebugLog       []string      `json:"debugLog,omitempty"`
}

// SessionState is the execution context applied to a session.
type SessionState struct {
	Role      string `json:"role,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
}

// SSEEvent is one parsed server-sent event block.
type SSEEvent struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data,omitempty"`
	Raw   string `json:"raw"`
}

// ContentBlock is one piece of agent message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AgentMessage is one conversation turn sent to the Cortex agent endpoint.
type AgentMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// AgentRunInput is the input to AgentRun.
type AgentRunInput struct {
	Model    string         `json:"model,omitempty"`
	Messages []AgentMessage `json:"messages"`
}

// AgentRunOutput is the aggregated result of one agent run.
type AgentRunOutput struct {
	Text     string     `json:"text"`               // concatenated response.text.delta fragments
	Events   []SSEEvent `json:"events"`             // every parsed event, in stream order
	Response string     `json:"response,omitempty"` // raw data of the final response event, when present
}

// SearchInput is the input to CortexSearch. Database and Schema default to
// the resolved connection parameters when empty. Filter, when set, must be a
// JSON object and is passed to the service verbatim.
type SearchInput struct {
	Service  string   `json:"service"`
	Database string   `json:"database,omitempty"`
	Schema   string   `json:"schema,omitempty"`
	Query    string   `json:"query"`
	Columns  []string `json:"columns,omitempty"`
	Filter   string   `json:"filter,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// SearchOutput is the result of one Cortex Search query.
type SearchOutput struct {
	Results   []map[string]interface{} `json:"results"`
	RequestID string                   `json:"requestId,omitempty"`
}
