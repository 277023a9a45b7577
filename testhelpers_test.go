package sfmcp_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	sfmcp "github.com/veldrane/snowflake-mcp"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// testParams returns fully populated connection parameters so resolution
// never falls through to the environment.
func testParams() sfmcp.ConnectionParams {
	return sfmcp.ConnectionParams{
		Account:   "myorg-myaccount",
		Username:  "tester",
		Password:  "secret",
		Role:      "ANALYST",
		Warehouse: "COMPUTE_WH",
		Database:  "ANALYTICS",
		Schema:    "PUBLIC",
		LogLevel:  "MINIMAL",
	}
}

func defaultConfig() sfmcp.Config {
	return sfmcp.Config{
		Query: sfmcp.QueryConfig{
			DefaultTimeoutSeconds: 30,
		},
		Cortex: sfmcp.CortexConfig{
			TimeoutSeconds: 30,
		},
	}
}

// fakeSession is a scripted Session. Execute records every statement it
// receives, including the use statements that apply the execution context.
type fakeSession struct {
	mu       sync.Mutex
	id       string
	state    sfmcp.SessionState
	reply    func(sqlText string) (*sfmcp.StatementResult, error)
	closeErr error
	executed []string
	closed   int
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Execute(ctx context.Context, sqlText string) (*sfmcp.StatementResult, error) {
	f.mu.Lock()
	f.executed = append(f.executed, sqlText)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(sqlText)
	}
	return &sfmcp.StatementResult{QueryID: "01b00000-0000-0000-0000-000000000000"}, nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeSession) SessionState() sfmcp.SessionState { return f.state }

func (f *fakeSession) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeConnector builds fakeSessions. With no overrides every Connect hands
// out a fresh session that answers each statement with an empty result.
type fakeConnector struct {
	mu     sync.Mutex
	err    error               // returned by Connect when set
	next   func() *fakeSession // session factory override
	opened []*fakeSession
}

func (f *fakeConnector) Connect(ctx context.Context, cfg sfmcp.ResolvedConfig) (sfmcp.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var sess *fakeSession
	if f.next != nil {
		sess = f.next()
	} else {
		sess = &fakeSession{}
	}
	if sess.id == "" {
		sess.id = fmt.Sprintf("conn-%d", len(f.opened)+1)
	}
	f.opened = append(f.opened, sess)
	return sess, nil
}

func (f *fakeConnector) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func (f *fakeConnector) sessions() []*fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeSession, len(f.opened))
	copy(out, f.opened)
	return out
}

func (f *fakeConnector) lastSession(t *testing.T) *fakeSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		t.Fatal("no session was opened")
	}
	return f.opened[len(f.opened)-1]
}

func newTestInstance(t *testing.T, conn *fakeConnector, config sfmcp.Config, opts ...sfmcp.Option) *sfmcp.SnowflakeMcp {
	t.Helper()
	return newTestInstanceWithParams(t, testParams(), conn, config, opts...)
}

func newTestInstanceWithParams(t *testing.T, params sfmcp.ConnectionParams, conn *fakeConnector, config sfmcp.Config, opts ...sfmcp.Option) *sfmcp.SnowflakeMcp {
	t.Helper()
	opts = append([]sfmcp.Option{sfmcp.WithConnector(conn)}, opts...)
	s, err := sfmcp.New(params, config, testLogger(), opts...)
	if err != nil {
		t.Fatalf("Failed to create SnowflakeMcp: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func hookScript(name string) string {
	return filepath.Join("testdata", "hooks", name)
}
