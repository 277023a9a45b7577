package sfmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/google/uuid"
)

// searchDefaultLimit caps result counts when the caller does not ask for one.
const searchDefaultLimit = 10

// cortexSearchRequest is the request body of the Cortex Search query endpoint.
type cortexSearchRequest struct {
	Query   string          `json:"query"`
	Columns []string        `json:"columns,omitempty"`
	Filter  json.RawMessage `json:"filter,omitempty"`
	Limit   int             `json:"limit"`
}

// cortexSearchResponse mirrors the service response body.
type cortexSearchResponse struct {
	Results   []map[string]interface{} `json:"results"`
	RequestID string                   `json:"request_id"`
}

// CortexSearch queries a Cortex Search service over the Snowflake REST API.
// Database and schema fall back to the resolved connection parameters; the
// filter, when present, is validated as a JSON object and forwarded verbatim.
func (s *SnowflakeMcp) CortexSearch(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	if input.Service == "" {
		return nil, s.opError(errors.New("missing search service: provide the Cortex Search service name"))
	}
	if input.Query == "" {
		return nil, s.opError(errors.New("missing search query: provide the text to search for"))
	}

	database := input.Database
	if database == "" {
		database = s.config.Database
	}
	if database == "" {
		return nil, s.opError(errors.New("missing database for Cortex Search: set the database parameter or the SNOWFLAKE_DATABASE environment variable"))
	}
	schema := input.Schema
	if schema == "" {
		schema = s.config.Schema
	}
	if schema == "" {
		return nil, s.opError(errors.New("missing schema for Cortex Search: set the schema parameter or the SNOWFLAKE_SCHEMA environment variable"))
	}

	var filter json.RawMessage
	if input.Filter != "" {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(input.Filter), &obj); err != nil {
			return nil, s.opError(fmt.Errorf("invalid filter %q: must be a JSON object: %w", input.Filter, err))
		}
		filter = json.RawMessage(input.Filter)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = searchDefaultLimit
	}

	body, err := json.Marshal(cortexSearchRequest{
		Query:   input.Query,
		Columns: input.Columns,
		Filter:  filter,
		Limit:   limit,
	})
	if err != nil {
		return nil, s.opError(err)
	}

	requestID := uuid.NewString()
	endpoint := fmt.Sprintf("%s/api/v2/databases/%s/schemas/%s/cortex-search-services/%s:query?requestId=%s",
		s.cortexBase,
		url.PathEscape(database),
		url.PathEscape(schema),
		url.PathEscape(input.Service),
		requestID,
	)

	req, err := s.newCortexRequest(ctx, endpoint, body)
	if err != nil {
		return nil, s.opError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, s.opError(fmt.Errorf("cortex search request failed: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, s.opError(fmt.Errorf("failed to read cortex search response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.opError(fmt.Errorf("cortex search failed: %s: %s", resp.Status, truncateForLog(string(payload), 200)))
	}

	var parsed cortexSearchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, s.opError(fmt.Errorf("failed to decode cortex search response: %w", err))
	}
	results := parsed.Results
	if results == nil {
		results = make([]map[string]interface{}, 0)
	}
	if parsed.RequestID == "" {
		parsed.RequestID = requestID
	}

	s.logger.Info().
		Str("service", input.Service).
		Str("database", database).
		Str("schema", schema).
		Int("result_count", len(results)).
		Str("request_id", parsed.RequestID).
		Msg("cortex search completed")

	return &SearchOutput{Results: results, RequestID: parsed.RequestID}, nil
}

// newCortexRequest builds an authenticated POST against a Snowflake REST
// endpoint. Callers set their own Accept header.
func (s *SnowflakeMcp) newCortexRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	token, err := s.restToken()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", "PROGRAMMATIC_ACCESS_TOKEN")
	return req, nil
}

// restToken resolves the bearer token for Snowflake REST endpoints: a
// programmatic access token from SNOWFLAKE_PAT, else the resolved password.
func (s *SnowflakeMcp) restToken() (string, error) {
	if pat := os.Getenv("SNOWFLAKE_PAT"); pat != "" {
		return pat, nil
	}
	if s.config.Password != "" {
		return s.config.Password, nil
	}
	return "", errors.New("cortex REST endpoints require a token: set SNOWFLAKE_PAT or configure a password")
}
