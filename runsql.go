package sfmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// RunSQL executes one SQL statement through the full pipeline: before-query
// hooks, timeout resolution, a fresh session with the configured execution
// context applied, result collection, after-query hooks, and sanitization.
// The statement itself is passed to Snowflake verbatim; nothing is parsed or
// rejected locally.
func (s *SnowflakeMcp) RunSQL(ctx context.Context, input RunSQLInput) (*QueryResult, error) {
	startTime := time.Now()
	sql := input.SQL

	// --- Pipeline tracking ---
	var beforeHooks, afterHooks []string
	timeoutRule := ""
	sanitized := false

	// 1. Run BeforeQuery hooks (middleware chain)
	if s.cmdHooks != nil {
		var err error
		sql, beforeHooks, err = s.cmdHooks.RunBeforeQuery(ctx, sql)
		if err != nil {
			return nil, s.opError(err)
		}
	}

	// 2. Determine timeout. Zero means the statement runs untimed; the rules
	// are matched against the potentially hook-modified statement.
	var timeout time.Duration
	timeout, timeoutRule = s.timeoutMgr.GetTimeoutWithPattern(sql)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 3. Open a session and execute
	dbg := s.newDebugLog()
	var result *QueryResult
	err := s.withSession(ctx, dbg, func(sess Session) error {
		res, execErr := sess.Execute(ctx, sql)
		if execErr != nil {
			return execErr
		}
		rows := res.Rows
		if rows == nil {
			rows = make([]map[string]interface{}, 0)
		}
		result = &QueryResult{
			QueryID:        orUnknown(res.QueryID),
			SessionID:      sess.ID(),
			SQLText:        sql,
			Rows:           rows,
			RowCount:       len(rows),
			DefaultContext: sessionStateOf(sess),
		}
		return nil
	})
	if err != nil {
		return nil, s.opError(err)
	}

	// 4. AfterQuery hooks — each receives the result JSON and may modify or
	// reject it
	finalResult := result
	if s.cmdHooks != nil && s.cmdHooks.HasAfterQueryHooks() {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return nil, s.opError(err)
		}

		modifiedJSON, executed, err := s.cmdHooks.RunAfterQuery(ctx, string(resultJSON))
		if err != nil {
			return nil, s.opError(err)
		}
		afterHooks = executed

		finalResult = &QueryResult{}
		dec := json.NewDecoder(strings.NewReader(modifiedJSON))
		dec.UseNumber()
		if err := dec.Decode(finalResult); err != nil {
			return nil, s.opError(err)
		}
		if finalResult.Rows == nil {
			finalResult.Rows = make([]map[string]interface{}, 0)
		}
	}

	// 5. Apply sanitization (per-field, recursive into VARIANT/ARRAY values).
	// Runs last so hook-modified rows are scrubbed too.
	sanitized = s.sanitizer.HasRules()
	finalResult.Rows = s.sanitizer.SanitizeRows(finalResult.Rows)

	// 6. Log successful execution with pipeline details
	logEvent := s.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Str("query_id", finalResult.QueryID).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(finalResult.Rows))
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if len(afterHooks) > 0 {
		logEvent = logEvent.Strs("after_hooks", afterHooks)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("statement executed")

	return finalResult, nil
}

// orUnknown substitutes the placeholder id when the session handle exposes
// no query id.
func orUnknown(queryID string) string {
	if queryID == "" {
		return unknownQueryID
	}
	return queryID
}

// opError logs a failed operation and appends matching error-prompt guidance
// to the message. The original error stays in the chain so callers can still
// unwrap driver errors.
func (s *SnowflakeMcp) opError(err error) error {
	errMsg := err.Error()
	prompt, patterns := s.errPrompts.Match(errMsg)

	logEvent := s.logger.Error().Err(err)
	if number, sqlState, ok := snowflakeErrorDetails(err); ok {
		logEvent = logEvent.Int("error_code", number).Str("sql_state", sqlState)
	}
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("operation error")

	if prompt != "" {
		return fmt.Errorf("%w\n\n%s", err, prompt)
	}
	return err
}

// truncateForLog truncates a string for log output to avoid oversized log
// entries, backing up to a rune boundary.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
