package sfmcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// healthProbeSQL verifies the session end to end and reads back the server
// clock and session id in one round trip.
const healthProbeSQL = "select current_timestamp() as CURRENT_TIME, current_session() as SESSION_ID"

// healthReport is the probe outcome. Always fully populated; probeHealth
// fills fallbacks for anything the probe could not read.
type healthReport struct {
	serverTime string
	sessionID  string
	queryID    string
}

// TestConnection opens a session, applies the configured execution context,
// and runs a health probe against it. A failed probe is downgraded to a
// warning: by that point the connection and the use statements have already
// succeeded, which is what the check exists to prove.
func (s *SnowflakeMcp) TestConnection(ctx context.Context) (*SessionSummary, error) {
	dbg := s.newDebugLog()

	var summary *SessionSummary
	err := s.withSession(ctx, dbg, func(sess Session) error {
		report := s.probeHealth(ctx, dbg, sess)
		summary = &SessionSummary{
			Status:         "connected",
			ConnectionID:   sess.ID(),
			SessionID:      report.sessionID,
			HealthQueryID:  report.queryID,
			ServerDateTime: report.serverTime,
			DefaultContext: sessionStateOf(sess),
		}
		return nil
	})
	if err != nil {
		return nil, s.opError(err)
	}

	// Snapshot after the session closed so teardown entries are included.
	summary.DebugLog = dbg.snapshot()

	s.logger.Info().
		Str("connection_id", summary.ConnectionID).
		Str("session_id", summary.SessionID).
		Str("server_time", summary.ServerDateTime).
		Msg("connection test succeeded")

	return summary, nil
}

// probeHealth runs the health statement and extracts the server clock, the
// Snowflake session id, and the probe's query id. It never fails the test:
// missing or unreadable values fall back to the local clock, the handle id,
// and "UNKNOWN".
func (s *SnowflakeMcp) probeHealth(ctx context.Context, dbg *debugLog, sess Session) healthReport {
	report := healthReport{
		serverTime: time.Now().Format(time.RFC3339),
		sessionID:  sess.ID(),
		queryID:    unknownQueryID,
	}

	dbg.addf("running health probe: %s", healthProbeSQL)
	res, err := sess.Execute(ctx, healthProbeSQL)
	if err != nil {
		s.logger.Warn().Err(err).Str("connection_id", sess.ID()).Msg("health probe failed")
		dbg.addf("health probe failed: %v", err)
		return report
	}

	if res.QueryID != "" {
		report.queryID = res.QueryID
	}
	if v, ok := pickColumn(res.Rows, "CURRENT_TIME"); ok {
		report.serverTime = v
	}
	if v, ok := pickColumn(res.Rows, "SESSION_ID"); ok {
		report.sessionID = v
	}
	dbg.addf("health probe ok: time=%s session=%s query=%s",
		report.serverTime, report.sessionID, report.queryID)
	return report
}

// pickColumn returns the first non-nil value under the given column name,
// tolerating a lower-case alias. Scalars are coerced to text with fmt.Sprint
// so numeric session ids come through unchanged.
func pickColumn(rows []map[string]interface{}, name string) (string, bool) {
	for _, row := range rows {
		for _, key := range []string{name, strings.ToLower(name)} {
			if v, ok := row[key]; ok && v != nil {
				return fmt.Sprint(v), true
			}
		}
	}
	return "", false
}
