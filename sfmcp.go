package sfmcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/veldrane/snowflake-mcp/internal/account"
	"github.com/veldrane/snowflake-mcp/internal/errprompt"
	"github.com/veldrane/snowflake-mcp/internal/hooks"
	"github.com/veldrane/snowflake-mcp/internal/sanitize"
	"github.com/veldrane/snowflake-mcp/internal/timeout"
)

// SnowflakeMcp is the core engine behind the test_connection, run_sql,
// cortex_search, and cortex_agent tools. All exported methods are safe for
// concurrent use from multiple goroutines: every operation opens its own
// session and tears it down before returning, so no connection state is
// shared across calls.
type SnowflakeMcp struct {
	config     ResolvedConfig
	cortexCfg  CortexConfig
	identity   account.Identity
	connector  Connector
	httpClient *http.Client
	cortexBase string
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	cmdHooks   *hooks.Runner // command-based hooks (CLI mode)
	logger     zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	connector      Connector
	httpClient     *http.Client
	cortexEndpoint string
	serverHooks    *ServerHooksConfig
}

// WithConnector replaces the default gosnowflake-backed session provider.
func WithConnector(c Connector) Option {
	return func(o *options) {
		o.connector = c
	}
}

// WithHTTPClient replaces the HTTP client used for Cortex REST calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCortexEndpoint overrides the Cortex REST base URL, which defaults to
// https://{account host}. Intended for tests and emulators.
func WithCortexEndpoint(base string) Option {
	return func(o *options) {
		o.cortexEndpoint = base
	}
}

// WithServerHooks passes command-based hook configuration to SnowflakeMcp.
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// New creates a new SnowflakeMcp instance. Connection parameters fall back
// to SNOWFLAKE_* environment variables and are validated before anything
// else; no connection is opened until an operation runs.
// Panics on invalid config. Returns error only for runtime failures
// (credential resolution, account normalization).
func New(params ConnectionParams, config Config, logger zerolog.Logger, opts ...Option) (*SnowflakeMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if config.Query.DefaultTimeoutSeconds < 0 {
		panic("sfmcp: query.default_timeout_seconds must be >= 0")
	}
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("sfmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}
	if config.Cortex.TimeoutSeconds < 0 {
		panic("sfmcp: cortex.timeout_seconds must be >= 0")
	}

	hasCmdHooks := o.serverHooks != nil && (len(o.serverHooks.BeforeQuery) > 0 || len(o.serverHooks.AfterQuery) > 0)
	if hasCmdHooks && config.DefaultHookTimeoutSeconds <= 0 {
		panic("sfmcp: default_hook_timeout_seconds must be > 0 when hooks are configured")
	}

	// --- Resolve connection parameters (runtime input: errors, not panics) ---

	resolved, err := ResolveConfig(params)
	if err != nil {
		return nil, err
	}
	identity, err := account.Normalize(resolved.Account)
	if err != nil {
		return nil, err
	}

	// --- Initialize internal components ---

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid sanitization rules: %v", err))
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid error_prompts rules: %v", err))
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		panic(fmt.Sprintf("sfmcp: invalid timeout rules: %v", err))
	}

	// Initialize command hooks if configured
	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		hookEntries := func(entries []HookEntry) []hooks.HookEntry {
			result := make([]hooks.HookEntry, len(entries))
			for i, e := range entries {
				result[i] = hooks.HookEntry{
					Pattern: e.Pattern,
					Command: e.Command,
					Args:    e.Args,
					Timeout: time.Duration(e.TimeoutSeconds) * time.Second,
				}
			}
			return result
		}
		cmdHooks = hooks.NewRunner(hooks.Config{
			DefaultTimeout: time.Duration(config.DefaultHookTimeoutSeconds) * time.Second,
			BeforeQuery:    hookEntries(o.serverHooks.BeforeQuery),
			AfterQuery:     hookEntries(o.serverHooks.AfterQuery),
		}, logger)
	}

	connector := o.connector
	if connector == nil {
		connector = snowflakeConnector{}
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(config.Cortex.TimeoutSeconds) * time.Second}
	}
	cortexBase := o.cortexEndpoint
	if cortexBase == "" {
		cortexBase = "https://" + identity.URL
	}

	return &SnowflakeMcp{
		config:     resolved,
		cortexCfg:  config.Cortex,
		identity:   identity,
		connector:  connector,
		httpClient: httpClient,
		cortexBase: cortexBase,
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		cmdHooks:   cmdHooks,
		logger:     logger,
	}, nil
}

// Close releases pooled HTTP connections. Sessions are opened and torn down
// per operation, so there is no database state to release. Accepts context
// for API forward-compatibility, but does not currently use it.
func (s *SnowflakeMcp) Close(ctx context.Context) {
	s.httpClient.CloseIdleConnections()
}

// mapSanitizationRules converts sfmcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts sfmcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
