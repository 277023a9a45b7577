package sfmcp

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/veldrane/snowflake-mcp/internal/account"
)

// clientApplication is reported to Snowflake as the connecting application.
const clientApplication = "gosfmcp"

// snowflakeConnector is the default Connector backed by the gosnowflake
// driver. Each Connect opens its own database/sql handle capped at one
// connection, so every statement of the returned Session runs on the same
// Snowflake session and use statements stick.
type snowflakeConnector struct{}

func (snowflakeConnector) Connect(ctx context.Context, cfg ResolvedConfig) (Session, error) {
	ident, err := account.Normalize(cfg.Account)
	if err != nil {
		return nil, err
	}

	sfCfg := &sf.Config{
		Account:     ident.Identifier,
		User:        cfg.Username,
		Application: clientApplication,
	}

	// Key-pair authentication wins when both credentials are configured.
	// Session context (role, warehouse, database, schema) is intentionally
	// not part of the driver config: it is applied through explicit use
	// statements after connecting, so context failures surface as their
	// own errors rather than as login failures.
	if cfg.PrivateKeyPath != "" {
		key, err := loadPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		sfCfg.Authenticator = sf.AuthTypeJwt
		sfCfg.PrivateKey = key
	} else {
		sfCfg.Password = cfg.Password
	}

	dsn, err := sf.DSN(sfCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Snowflake driver: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, err
	}

	return &snowflakeSession{
		id:   uuid.NewString(),
		db:   db,
		conn: conn,
		state: SessionState{
			Role:      cfg.Role,
			Warehouse: cfg.Warehouse,
			Database:  cfg.Database,
			Schema:    cfg.Schema,
		},
	}, nil
}

// snowflakeSession is one pinned connection to a live Snowflake session.
type snowflakeSession struct {
	id    string
	db    *sql.DB
	conn  *sql.Conn
	state SessionState
}

func (s *snowflakeSession) ID() string { return s.id }

func (s *snowflakeSession) SessionState() SessionState { return s.state }

// Execute runs a single statement and collects every row. It drops to the
// raw driver connection because database/sql does not expose the Snowflake
// query ID; gosnowflake does, through the SnowflakeRows interface.
func (s *snowflakeSession) Execute(ctx context.Context, sqlText string) (*StatementResult, error) {
	var result *StatementResult
	err := s.conn.Raw(func(driverConn any) error {
		queryer, ok := driverConn.(driver.QueryerContext)
		if !ok {
			return errors.New("snowflake driver connection does not implement QueryerContext")
		}
		rows, err := queryer.QueryContext(ctx, sqlText, nil)
		if err != nil {
			return err
		}
		defer rows.Close()

		res := &StatementResult{Columns: rows.Columns()}
		if sfRows, ok := rows.(sf.SnowflakeRows); ok {
			res.QueryID = sfRows.GetQueryID()
		}

		dest := make([]driver.Value, len(res.Columns))
		for {
			if err := rows.Next(dest); err != nil {
				if err == io.EOF {
					break
				}
				return err
			}
			row := make(map[string]interface{}, len(res.Columns))
			for i, col := range res.Columns {
				row[col] = convertValue(dest[i])
			}
			res.Rows = append(res.Rows, row)
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the pinned connection and the driver handle. It accepts a
// context for interface symmetry but does not currently use it, as
// database/sql close paths are not context-aware.
func (s *snowflakeSession) Close(_ context.Context) error {
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// convertValue maps driver values onto JSON-encodable Go values. Timestamps
// keep their offset, binary columns become base64 text.
func convertValue(v driver.Value) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return val
	}
}

// loadPrivateKey reads an unencrypted PKCS#8 RSA private key for key-pair
// authentication.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("private key file %s is not PEM encoded", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: expected an unencrypted PKCS#8 key, convert with: openssl pkcs8 -topk8 -nocrypt -in rsa_key.pem -out rsa_key.p8: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not an RSA key", path)
	}
	return key, nil
}

// snowflakeErrorDetails extracts the Snowflake error number and SQL state
// when err originated in the driver. Used for structured error logging;
// the error message itself already carries both.
func snowflakeErrorDetails(err error) (number int, sqlState string, ok bool) {
	var sfErr *sf.SnowflakeError
	if errors.As(err, &sfErr) {
		return sfErr.Number, sfErr.SQLState, true
	}
	return 0, "", false
}
