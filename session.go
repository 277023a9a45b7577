package sfmcp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/veldrane/snowflake-mcp/internal/quote"
)

const (
	redactedMarker = "********"
	presenceMarker = "(provided)"
	unknownQueryID = "UNKNOWN"
)

// Session is one live Snowflake session. Implementations are not required to
// be safe for concurrent use; the helper never shares a session between
// operations.
type Session interface {
	// ID identifies the session handle. It doubles as the connectionId
	// reported to callers.
	ID() string
	// Execute runs one SQL statement to completion and returns its result.
	Execute(ctx context.Context, sqlText string) (*StatementResult, error)
	// Close releases the session. The helper calls Close exactly once.
	Close(ctx context.Context) error
}

// SessionStater is implemented by sessions that can report the execution
// context they were opened with.
type SessionStater interface {
	SessionState() SessionState
}

// Connector builds sessions from resolved connection parameters.
type Connector interface {
	Connect(ctx context.Context, cfg ResolvedConfig) (Session, error)
}

// StatementResult is the raw result of one executed statement.
type StatementResult struct {
	QueryID string
	Columns []string
	Rows    []map[string]interface{}
}

// debugLog buffers per-session debug entries for VERBOSE sessions and mirrors
// them to the instance logger. A nil *debugLog discards entries, so call
// sites never branch on the log level.
type debugLog struct {
	logger  zerolog.Logger
	entries []string
}

func (d *debugLog) addf(format string, args ...interface{}) {
	if d == nil {
		return
	}
	entry := fmt.Sprintf(format, args...)
	d.entries = append(d.entries, entry)
	d.logger.Debug().Msg(entry)
}

func (d *debugLog) snapshot() []string {
	if d == nil || len(d.entries) == 0 {
		return nil
	}
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}

// newDebugLog returns a session debug log, or nil unless the resolved log
// level is VERBOSE.
func (s *SnowflakeMcp) newDebugLog() *debugLog {
	if !s.config.Verbose() {
		return nil
	}
	return &debugLog{logger: s.logger}
}

// withSession opens a session, applies the execution context in order, runs
// fn, and closes the session exactly once on every return path. Close errors
// are logged as warnings and never override fn's outcome.
func (s *SnowflakeMcp) withSession(ctx context.Context, dbg *debugLog, fn func(Session) error) error {
	// Snapshot parameters before connecting so a failed connect still leaves
	// a usable trail. Secrets never reach the log.
	dbg.addf("connection parameters: account=%s username=%s password=%s private_key_path=%s role=%s warehouse=%s database=%s schema=%s",
		s.identity.Identifier,
		s.config.Username,
		redactSecret(s.config.Password),
		markPresence(s.config.PrivateKeyPath),
		s.config.Role,
		s.config.Warehouse,
		s.config.Database,
		s.config.Schema,
	)
	dbg.addf("connecting to %s", s.identity.URL)

	sess, err := s.connector.Connect(ctx, s.config)
	if err != nil {
		dbg.addf("connection failed: %v", err)
		return fmt.Errorf("failed to connect to Snowflake account %q: %w", s.identity.Identifier, err)
	}
	dbg.addf("connected, session handle %s", sess.ID())

	defer func() {
		// Teardown proceeds even when ctx is already cancelled.
		if closeErr := sess.Close(context.WithoutCancel(ctx)); closeErr != nil {
			s.logger.Warn().Err(closeErr).Str("connection_id", sess.ID()).Msg("failed to close session")
			dbg.addf("session close failed: %v", closeErr)
		} else {
			dbg.addf("session closed")
		}
	}()

	if err := s.applySessionContext(ctx, dbg, sess); err != nil {
		return err
	}

	return fn(sess)
}

// applySessionContext applies role, warehouse, database, and schema in that
// order, one use statement at a time, each awaited before the next. Empty
// values are skipped.
func (s *SnowflakeMcp) applySessionContext(ctx context.Context, dbg *debugLog, sess Session) error {
	steps := []struct {
		kind  string
		value string
	}{
		{"role", s.config.Role},
		{"warehouse", s.config.Warehouse},
		{"database", s.config.Database},
		{"schema", s.config.Schema},
	}
	for _, step := range steps {
		if step.value == "" {
			continue
		}
		stmt := fmt.Sprintf("use %s %s", step.kind, quote.Identifier(step.value))
		dbg.addf("applying session context: %s", stmt)
		if _, err := sess.Execute(ctx, stmt); err != nil {
			dbg.addf("failed to apply session %s: %v", step.kind, err)
			return fmt.Errorf("failed to apply session %s %q: %w", step.kind, step.value, err)
		}
	}
	return nil
}

// sessionStateOf returns the session's execution context when the handle
// exposes one, nil otherwise.
func sessionStateOf(sess Session) *SessionState {
	stater, ok := sess.(SessionStater)
	if !ok {
		return nil
	}
	state := stater.SessionState()
	if state == (SessionState{}) {
		return nil
	}
	return &state
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return redactedMarker
}

func markPresence(s string) string {
	if s == "" {
		return ""
	}
	return presenceMarker
}
