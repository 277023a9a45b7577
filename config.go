package sfmcp

import (
	"fmt"
	"os"
	"strings"
)

// LogLevel selects how much per-session detail the helper records.
type LogLevel string

const (
	// LogLevelMinimal logs lifecycle events only.
	LogLevelMinimal LogLevel = "MINIMAL"
	// LogLevelVerbose additionally collects a per-session debug log with a
	// redacted parameter snapshot and step-by-step connection details.
	LogLevelVerbose LogLevel = "VERBOSE"
)

// ConnectionParams holds raw Snowflake connection parameters as supplied by a
// caller or a config file. Empty fields fall back to SNOWFLAKE_* environment
// variables during resolution.
type ConnectionParams struct {
	Account        string `json:"account"`
	Username       string `json:"username"`
	Password       string `json:"-"` // never persisted: env var or prompt only
	PrivateKeyPath string `json:"private_key_path"`
	Role           string `json:"role"`
	Warehouse      string `json:"warehouse"`
	Database       string `json:"database"`
	Schema         string `json:"schema"`
	LogLevel       string `json:"log_level"` // MINIMAL or VERBOSE, case-insensitive
}

// ResolvedConfig is the validated, environment-merged form of ConnectionParams.
type ResolvedConfig struct {
	Account        string
	Username       string
	Password       string
	PrivateKeyPath string
	Role           string
	Warehouse      string
	Database       string
	Schema         string
	LogLevel       LogLevel
}

// Verbose returns true when the resolved log level is VERBOSE.
func (c ResolvedConfig) Verbose() bool {
	return c.LogLevel == LogLevelVerbose
}

// ResolveConfig merges params with SNOWFLAKE_* environment variables and
// validates the result. Explicit fields win over the environment. Validation
// stops at the first failure, in order: account, username, credentials
// (password or private key path), role. The log level normalizes
// case-insensitively to VERBOSE, with anything else treated as MINIMAL.
func ResolveConfig(params ConnectionParams) (ResolvedConfig, error) {
	resolved := ResolvedConfig{
		Account:        orEnv(params.Account, "SNOWFLAKE_ACCOUNT"),
		Username:       orEnv(params.Username, "SNOWFLAKE_USER"),
		Password:       orEnv(params.Password, "SNOWFLAKE_PASSWORD"),
		PrivateKeyPath: orEnv(params.PrivateKeyPath, "SNOWFLAKE_PRIVATE_KEY_PATH"),
		Role:           strings.TrimSpace(orEnv(params.Role, "SNOWFLAKE_ROLE")),
		Warehouse:      orEnv(params.Warehouse, "SNOWFLAKE_WAREHOUSE"),
		Database:       orEnv(params.Database, "SNOWFLAKE_DATABASE"),
		Schema:         orEnv(params.Schema, "SNOWFLAKE_SCHEMA"),
		LogLevel:       normalizeLogLevel(orEnv(params.LogLevel, "SNOWFLAKE_LOG_LEVEL")),
	}

	if resolved.Account == "" {
		return ResolvedConfig{}, fmt.Errorf("missing Snowflake account: set the account parameter or the SNOWFLAKE_ACCOUNT environment variable")
	}
	if resolved.Username == "" {
		return ResolvedConfig{}, fmt.Errorf("missing Snowflake username: set the username parameter or the SNOWFLAKE_USER environment variable")
	}
	if resolved.Password == "" && resolved.PrivateKeyPath == "" {
		return ResolvedConfig{}, fmt.Errorf("missing Snowflake credentials: set a password (SNOWFLAKE_PASSWORD) or a private key path (SNOWFLAKE_PRIVATE_KEY_PATH)")
	}
	if resolved.Role == "" {
		return ResolvedConfig{}, fmt.Errorf("missing Snowflake role: set the role parameter or the SNOWFLAKE_ROLE environment variable")
	}

	return resolved, nil
}

func orEnv(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}

func normalizeLogLevel(raw string) LogLevel {
	if strings.EqualFold(strings.TrimSpace(raw), string(LogLevelVerbose)) {
		return LogLevelVerbose
	}
	return LogLevelMinimal
}

// Config is the base configuration used by library mode via New().
type Config struct {
	Query                     QueryConfig        `json:"query"`
	Cortex                    CortexConfig       `json:"cortex"`
	ErrorPrompts              []ErrorPromptRule  `json:"error_prompts"`
	Sanitization              []SanitizationRule `json:"sanitization"`
	DefaultHookTimeoutSeconds int                `json:"default_hook_timeout_seconds"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection  ConnectionParams  `json:"connection"`
	Server      ServerSettings    `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// QueryConfig holds statement execution settings.
// A zero DefaultTimeoutSeconds leaves statements untimed. The helper never
// cancels an in-flight statement unless the operator configures a timeout.
type QueryConfig struct {
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// CortexConfig holds settings for the Cortex REST clients.
type CortexConfig struct {
	AgentModel     string `json:"agent_model"`     // default model for cortex_agent
	TimeoutSeconds int    `json:"timeout_seconds"` // HTTP client timeout, 0 uses the default
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerHooksConfig holds command-based hook configuration for CLI mode.
type ServerHooksConfig struct {
	BeforeQuery []HookEntry `json:"before_query"`
	AfterQuery  []HookEntry `json:"after_query"`
}

// HookEntry defines a single command-based hook.
type HookEntry struct {
	Pattern        string   `json:"pattern"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}
