package sfmcp_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sfmcp "github.com/veldrane/snowflake-mcp"
)

// capturedRequest snapshots everything a Cortex REST test needs to assert
// after the call returns.
type capturedRequest struct {
	method    string
	path      string
	requestID string
	header    http.Header
	body      map[string]interface{}
}

// cortexTestServer starts an httptest server that captures the request and
// replies with the given status and body.
func cortexTestServer(t *testing.T, status int, responseBody string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.requestID = r.URL.Query().Get("requestId")
		captured.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &captured.body)
		}
		w.WriteHeader(status)
		io.WriteString(w, responseBody)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newCortexInstance(t *testing.T, srv *httptest.Server, params sfmcp.ConnectionParams) *sfmcp.SnowflakeMcp {
	t.Helper()
	return newTestInstanceWithParams(t, params, &fakeConnector{}, defaultConfig(),
		sfmcp.WithCortexEndpoint(srv.URL),
		sfmcp.WithHTTPClient(srv.Client()),
	)
}

func TestCortexSearch_Success(t *testing.T) {
	t.Setenv("SNOWFLAKE_PAT", "")
	srv, captured := cortexTestServer(t, http.StatusOK,
		`{"results":[{"TITLE":"Trail runner","PRICE":129}],"request_id":"req-123"}`)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service:  "product_search",
		Database: "SALES",
		Schema:   "CATALOG",
		Query:    "running shoes",
		Columns:  []string{"TITLE", "PRICE"},
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", captured.method)
	}
	wantPath := "/api/v2/databases/SALES/schemas/CATALOG/cortex-search-services/product_search:query"
	if captured.path != wantPath {
		t.Fatalf("expected path %q, got %q", wantPath, captured.path)
	}
	if captured.requestID == "" {
		t.Fatal("expected a requestId query parameter")
	}
	if got := captured.header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected JSON content type, got %q", got)
	}
	if got := captured.header.Get("Accept"); got != "application/json" {
		t.Fatalf("expected JSON accept header, got %q", got)
	}
	// No PAT configured, so the resolved password doubles as the token.
	if got := captured.header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("expected password bearer token, got %q", got)
	}
	if got := captured.header.Get("X-Snowflake-Authorization-Token-Type"); got != "PROGRAMMATIC_ACCESS_TOKEN" {
		t.Fatalf("expected PAT token type header, got %q", got)
	}

	if captured.body["query"] != "running shoes" {
		t.Fatalf("expected query in body, got %v", captured.body["query"])
	}
	if captured.body["limit"] != float64(5) {
		t.Fatalf("expected limit 5 in body, got %v", captured.body["limit"])
	}
	cols, _ := captured.body["columns"].([]interface{})
	if len(cols) != 2 || cols[0] != "TITLE" {
		t.Fatalf("expected columns in body, got %v", captured.body["columns"])
	}
	if _, present := captured.body["filter"]; present {
		t.Fatalf("expected no filter in body, got %v", captured.body["filter"])
	}

	if len(out.Results) != 1 || out.Results[0]["TITLE"] != "Trail runner" {
		t.Fatalf("expected one result, got %v", out.Results)
	}
	if out.RequestID != "req-123" {
		t.Fatalf("expected service-reported request id, got %q", out.RequestID)
	}
}

func TestCortexSearch_DefaultLimit(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, `{"results":[]}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "product_search",
		Query:   "shoes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.body["limit"] != float64(10) {
		t.Fatalf("expected default limit 10, got %v", captured.body["limit"])
	}
}

func TestCortexSearch_DatabaseSchemaFallback(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, `{"results":[]}`)
	s := newCortexInstance(t, srv, testParams())

	// testParams carries ANALYTICS / PUBLIC.
	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "product_search",
		Query:   "shoes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantPath := "/api/v2/databases/ANALYTICS/schemas/PUBLIC/cortex-search-services/product_search:query"
	if captured.path != wantPath {
		t.Fatalf("expected connection context fallback in path, got %q", captured.path)
	}
}

func TestCortexSearch_MissingService(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{Query: "shoes"})
	if err == nil {
		t.Fatal("expected error for missing service")
	}
	if !strings.Contains(err.Error(), "missing search service") {
		t.Fatalf("expected missing service error, got %q", err.Error())
	}
}

func TestCortexSearch_MissingQuery(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{Service: "svc"})
	if err == nil {
		t.Fatal("expected error for missing query")
	}
	if !strings.Contains(err.Error(), "missing search query") {
		t.Fatalf("expected missing query error, got %q", err.Error())
	}
}

func TestCortexSearch_MissingDatabase(t *testing.T) {
	clearSnowflakeEnv(t)
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	params := sfmcp.ConnectionParams{
		Account:  "myorg-myaccount",
		Username: "tester",
		Password: "secret",
		Role:     "ANALYST",
	}
	s := newCortexInstance(t, srv, params)

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err == nil {
		t.Fatal("expected error for missing database")
	}
	if !strings.Contains(err.Error(), "SNOWFLAKE_DATABASE") {
		t.Fatalf("expected error to name SNOWFLAKE_DATABASE, got %q", err.Error())
	}
}

func TestCortexSearch_MissingSchema(t *testing.T) {
	clearSnowflakeEnv(t)
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	params := sfmcp.ConnectionParams{
		Account:  "myorg-myaccount",
		Username: "tester",
		Password: "secret",
		Role:     "ANALYST",
		Database: "SALES",
	}
	s := newCortexInstance(t, srv, params)

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err == nil {
		t.Fatal("expected error for missing schema")
	}
	if !strings.Contains(err.Error(), "SNOWFLAKE_SCHEMA") {
		t.Fatalf("expected error to name SNOWFLAKE_SCHEMA, got %q", err.Error())
	}
}

func TestCortexSearch_InvalidFilter(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
		Filter:  `["not","an","object"]`,
	})
	if err == nil {
		t.Fatal("expected error for non-object filter")
	}
	if !strings.Contains(err.Error(), "must be a JSON object") {
		t.Fatalf("expected filter validation error, got %q", err.Error())
	}
}

func TestCortexSearch_FilterForwardedVerbatim(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, `{"results":[]}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
		Filter:  `{"@eq":{"REGION":"EMEA"}}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	filter, ok := captured.body["filter"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected filter object in body, got %v", captured.body["filter"])
	}
	eq, ok := filter["@eq"].(map[string]interface{})
	if !ok || eq["REGION"] != "EMEA" {
		t.Fatalf("expected filter forwarded verbatim, got %v", filter)
	}
}

func TestCortexSearch_NilResultsNormalized(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusOK, `{"request_id":"req-9"}`)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Results == nil {
		t.Fatal("expected empty results slice, got nil")
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected no results, got %v", out.Results)
	}
}

func TestCortexSearch_RequestIDFallback(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, `{"results":[]}`)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The service did not echo a request id, so the generated one is kept.
	if out.RequestID == "" {
		t.Fatal("expected a request id")
	}
	if out.RequestID != captured.requestID {
		t.Fatalf("expected generated request id %q, got %q", captured.requestID, out.RequestID)
	}
}

func TestCortexSearch_HTTPError(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusBadRequest, `{"message":"unknown search service"}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if !strings.Contains(err.Error(), "cortex search failed") {
		t.Fatalf("expected search failure error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status in error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "unknown search service") {
		t.Fatalf("expected response body excerpt in error, got %q", err.Error())
	}
}

func TestCortexSearch_PATPreferredOverPassword(t *testing.T) {
	t.Setenv("SNOWFLAKE_PAT", "pat-token-42")
	srv, captured := cortexTestServer(t, http.StatusOK, `{"results":[]}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := captured.header.Get("Authorization"); got != "Bearer pat-token-42" {
		t.Fatalf("expected PAT to win over password, got %q", got)
	}
}

func TestCortexSearch_NoTokenAvailable(t *testing.T) {
	clearSnowflakeEnv(t)
	t.Setenv("SNOWFLAKE_PAT", "")
	srv, _ := cortexTestServer(t, http.StatusOK, `{}`)
	params := sfmcp.ConnectionParams{
		Account:        "myorg-myaccount",
		Username:       "tester",
		PrivateKeyPath: "/keys/rsa_key.p8",
		Role:           "ANALYST",
		Database:       "SALES",
		Schema:         "PUBLIC",
	}
	s := newCortexInstance(t, srv, params)

	_, err := s.CortexSearch(context.Background(), sfmcp.SearchInput{
		Service: "svc",
		Query:   "shoes",
	})
	if err == nil {
		t.Fatal("expected error when no REST token is available")
	}
	if !strings.Contains(err.Error(), "cortex REST endpoints require a token") {
		t.Fatalf("expected token resolution error, got %q", err.Error())
	}
}
