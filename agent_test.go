package sfmcp_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	sfmcp "github.com/veldrane/snowflake-mcp"
)

const agentStreamBody = "event: response.text.delta\n" +
	"data: {\"text\":\"Hello\"}\n" +
	"\n" +
	"event: response.text.delta\n" +
	"data: {\"text\":\", world\"}\n" +
	"\n" +
	"event: response\n" +
	"data: {\"content\":[{\"type\":\"text\",\"text\":\"Hello, world\"}]}\n" +
	"\n"

func userMessage(text string) []sfmcp.AgentMessage {
	return []sfmcp.AgentMessage{
		{Role: "user", Content: []sfmcp.ContentBlock{{Type: "text", Text: text}}},
	}
}

func TestValidateAgentMessages_Empty(t *testing.T) {
	t.Parallel()
	_, err := sfmcp.ValidateAgentMessages(nil)
	if err == nil {
		t.Fatal("expected error for empty conversation")
	}
	if !strings.Contains(err.Error(), "at least one message") {
		t.Fatalf("expected at-least-one-message error, got %q", err.Error())
	}
}

func TestValidateAgentMessages_EmptyRole(t *testing.T) {
	t.Parallel()
	messages := []sfmcp.AgentMessage{
		{Role: "user", Content: []sfmcp.ContentBlock{{Type: "text", Text: "hi"}}},
		{Role: "   ", Content: []sfmcp.ContentBlock{{Type: "text", Text: "there"}}},
	}
	_, err := sfmcp.ValidateAgentMessages(messages)
	if err == nil {
		t.Fatal("expected error for blank role")
	}
	if !strings.Contains(err.Error(), "agent message 1 has an empty role") {
		t.Fatalf("expected indexed role error, got %q", err.Error())
	}
}

func TestValidateAgentMessages_TrimsWithoutMutating(t *testing.T) {
	t.Parallel()
	messages := []sfmcp.AgentMessage{
		{Role: "  user  ", Content: []sfmcp.ContentBlock{{Type: "text", Text: "hi"}}},
	}
	out, err := sfmcp.ValidateAgentMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Role != "user" {
		t.Fatalf("expected trimmed role, got %q", out[0].Role)
	}
	if messages[0].Role != "  user  " {
		t.Fatalf("input slice was mutated: %q", messages[0].Role)
	}
}

func TestParseSSEEvents(t *testing.T) {
	t.Parallel()
	events := sfmcp.ParseSSEEvents(agentStreamBody)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	if events[0].Event != "response.text.delta" {
		t.Fatalf("expected delta event name, got %q", events[0].Event)
	}
	if events[0].Data != `{"text":"Hello"}` {
		t.Fatalf("expected delta data, got %q", events[0].Data)
	}
	if events[2].Event != "response" {
		t.Fatalf("expected final response event, got %q", events[2].Event)
	}
	if !strings.Contains(events[2].Raw, "event: response") {
		t.Fatalf("expected raw block preserved, got %q", events[2].Raw)
	}
}

func TestParseSSEEvents_EmptyPayload(t *testing.T) {
	t.Parallel()
	events := sfmcp.ParseSSEEvents("")
	if events == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestAgentRun_AggregatesStream(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, agentStreamBody)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{
		Messages: userMessage("say hello"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.path != "/api/v2/cortex/agent:run" {
		t.Fatalf("expected agent run path, got %q", captured.path)
	}
	if got := captured.header.Get("Accept"); got != "text/event-stream" {
		t.Fatalf("expected event-stream accept header, got %q", got)
	}

	if out.Text != "Hello, world" {
		t.Fatalf("expected aggregated text 'Hello, world', got %q", out.Text)
	}
	if len(out.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(out.Events))
	}
	if !strings.Contains(out.Response, `"Hello, world"`) {
		t.Fatalf("expected raw final response kept, got %q", out.Response)
	}
}

func TestAgentRun_RequestBody(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, agentStreamBody)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{
		Model:    "claude-3-5-sonnet",
		Messages: userMessage("say hello"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.body["model"] != "claude-3-5-sonnet" {
		t.Fatalf("expected model in body, got %v", captured.body["model"])
	}
	messages, ok := captured.body["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one message in body, got %v", captured.body["messages"])
	}
	first := messages[0].(map[string]interface{})
	if first["role"] != "user" {
		t.Fatalf("expected user role, got %v", first["role"])
	}
}

func TestAgentRun_DefaultModel(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, agentStreamBody)
	s := newCortexInstance(t, srv, testParams())

	if _, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{Messages: userMessage("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.body["model"] != "llama3.3-70b" {
		t.Fatalf("expected library default model, got %v", captured.body["model"])
	}
}

func TestAgentRun_ConfiguredModel(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, agentStreamBody)
	config := defaultConfig()
	config.Cortex.AgentModel = "mistral-large2"
	s := newTestInstanceWithParams(t, testParams(), &fakeConnector{}, config,
		sfmcp.WithCortexEndpoint(srv.URL),
		sfmcp.WithHTTPClient(srv.Client()),
	)

	if _, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{Messages: userMessage("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.body["model"] != "mistral-large2" {
		t.Fatalf("expected configured model, got %v", captured.body["model"])
	}

	// An explicit model on the call still wins over configuration.
	if _, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{
		Model:    "llama3.1-8b",
		Messages: userMessage("hi"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.body["model"] != "llama3.1-8b" {
		t.Fatalf("expected call model to win, got %v", captured.body["model"])
	}
}

func TestAgentRun_ValidationBeforeRequest(t *testing.T) {
	t.Parallel()
	srv, captured := cortexTestServer(t, http.StatusOK, agentStreamBody)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "at least one message") {
		t.Fatalf("expected validation error, got %q", err.Error())
	}
	if captured.method != "" {
		t.Fatal("expected no HTTP request for invalid input")
	}
}

func TestAgentRun_HTTPError(t *testing.T) {
	t.Parallel()
	srv, _ := cortexTestServer(t, http.StatusInternalServerError, `{"message":"model unavailable"}`)
	s := newCortexInstance(t, srv, testParams())

	_, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{Messages: userMessage("hi")})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "cortex agent run failed") {
		t.Fatalf("expected agent failure error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response excerpt in error, got %q", err.Error())
	}
}

func TestAgentRun_MalformedDeltaIgnored(t *testing.T) {
	t.Parallel()
	body := "event: response.text.delta\n" +
		"data: not json\n" +
		"\n" +
		"event: response.text.delta\n" +
		"data: {\"text\":\"kept\"}\n" +
		"\n"
	srv, _ := cortexTestServer(t, http.StatusOK, body)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "kept" {
		t.Fatalf("expected malformed delta skipped, got %q", out.Text)
	}
	if len(out.Events) != 2 {
		t.Fatalf("expected both events kept in the event list, got %d", len(out.Events))
	}
}

func TestAgentRun_NoFinalResponse(t *testing.T) {
	t.Parallel()
	body := "event: response.text.delta\n" +
		"data: {\"text\":\"partial\"}\n" +
		"\n"
	srv, _ := cortexTestServer(t, http.StatusOK, body)
	s := newCortexInstance(t, srv, testParams())

	out, err := s.AgentRun(context.Background(), sfmcp.AgentRunInput{Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "partial" {
		t.Fatalf("expected delta text, got %q", out.Text)
	}
	if out.Response != "" {
		t.Fatalf("expected no final response, got %q", out.Response)
	}
}
