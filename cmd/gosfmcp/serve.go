package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	sfmcp "github.com/veldrane/snowflake-mcp"
	"github.com/veldrane/snowflake-mcp/internal/meta"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serverConfig.Server.Port <= 0 {
		panic("gosfmcp: server.port must be > 0")
	}

	// 2. Resolve connection parameters. Secrets never live in the config
	// file, so prompt for a password when neither the environment nor a
	// private key path provides credentials.
	params := serverConfig.Connection
	if params.Username == "" && os.Getenv("SNOWFLAKE_USER") == "" {
		params.Username = promptInput("Username: ")
	}
	hasPassword := os.Getenv("SNOWFLAKE_PASSWORD") != ""
	hasKeyPath := params.PrivateKeyPath != "" || os.Getenv("SNOWFLAKE_PRIVATE_KEY_PATH") != ""
	if !hasPassword && !hasKeyPath {
		params.Password = promptPassword("Password: ")
	}

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create SnowflakeMcp instance
	var opts []sfmcp.Option
	if len(serverConfig.ServerHooks.BeforeQuery) > 0 || len(serverConfig.ServerHooks.AfterQuery) > 0 {
		opts = append(opts, sfmcp.WithServerHooks(serverConfig.ServerHooks))
	}
	sfMcp, err := sfmcp.New(params, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SnowflakeMcp: %w", err)
	}
	defer sfMcp.Close(ctx)

	// 5. Test Snowflake connectivity before accepting MCP traffic. The
	// summary itself is logged by TestConnection.
	logger.Info().Msg("testing Snowflake connection")
	if _, err := sfMcp.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Snowflake connection test failed")
		return fmt.Errorf("snowflake connection test failed: %w", err)
	}

	// 6. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		clientName := req.Params.ClientInfo.Name
		clientVersion := req.Params.ClientInfo.Version
		logger.Info().
			Str("client_name", clientName).
			Str("client_version", clientVersion).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gosfmcp", meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	sfmcp.RegisterMCPTools(mcpServer, sfMcp)

	// 7. Start HTTP server with optional health check
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health check endpoint (process liveness only, not Snowflake connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("gosfmcp: health_check_path must be set when health_check_enabled is true")
		}
		r.Get(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	r.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting gosfmcp server")
	return streamableServer.Start(addr)
}

func loadServerConfig() (*sfmcp.ServerConfig, error) {
	configPath := os.Getenv("GOSFMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".gosfmcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config sfmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func setupLogger(config sfmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
