package sfmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/veldrane/snowflake-mcp/internal/sse"
)

// defaultAgentModel is used when neither the call nor the configuration
// names a model. Any model in the Cortex catalog of the target account works.
const defaultAgentModel = "llama3.3-70b"

// SSE event names emitted by the agent run endpoint that the aggregator
// cares about; every other event is kept but not interpreted.
const (
	eventTextDelta     = "response.text.delta"
	eventFinalResponse = "response"
)

// agentRunRequest is the request body of the agent run endpoint.
type agentRunRequest struct {
	Model    string         `json:"model"`
	Messages []AgentMessage `json:"messages"`
}

// ParseSSEEvents splits a raw server-sent-events payload into ordered
// events. Blocks carrying neither an event name nor data are dropped; Raw
// keeps the verbatim block for diagnostics.
func ParseSSEEvents(payload string) []SSEEvent {
	parsed := sse.Parse(payload)
	events := make([]SSEEvent, len(parsed))
	for i, ev := range parsed {
		events[i] = SSEEvent{Event: ev.Event, Data: ev.Data, Raw: ev.Raw}
	}
	return events
}

// ValidateAgentMessages normalizes a conversation for the agent run
// endpoint. Roles are trimmed and must be non-empty; the input slice is
// never mutated.
func ValidateAgentMessages(messages []AgentMessage) ([]AgentMessage, error) {
	if len(messages) == 0 {
		return nil, errors.New("agent run requires at least one message")
	}
	out := make([]AgentMessage, len(messages))
	for i, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			return nil, fmt.Errorf("agent message %d has an empty role: set role to user or assistant", i)
		}
		out[i] = AgentMessage{Role: role, Content: msg.Content}
	}
	return out, nil
}

// AgentRun sends a conversation to the Cortex agent run endpoint, reads the
// whole event stream, and aggregates it: text deltas are joined in order and
// the final response event is kept as raw JSON.
func (s *SnowflakeMcp) AgentRun(ctx context.Context, input AgentRunInput) (*AgentRunOutput, error) {
	messages, err := ValidateAgentMessages(input.Messages)
	if err != nil {
		return nil, s.opError(err)
	}

	model := input.Model
	if model == "" {
		model = s.cortexCfg.AgentModel
	}
	if model == "" {
		model = defaultAgentModel
	}

	body, err := json.Marshal(agentRunRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, s.opError(err)
	}

	req, err := s.newCortexRequest(ctx, s.cortexBase+"/api/v2/cortex/agent:run", body)
	if err != nil {
		return nil, s.opError(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, s.opError(fmt.Errorf("cortex agent request failed: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, s.opError(fmt.Errorf("failed to read cortex agent stream: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.opError(fmt.Errorf("cortex agent run failed: %s: %s", resp.Status, truncateForLog(string(payload), 200)))
	}

	events := ParseSSEEvents(string(payload))

	var text strings.Builder
	finalResponse := ""
	for _, ev := range events {
		switch ev.Event {
		case eventTextDelta:
			// Delta payloads carry the fragment under "text"; anything
			// else in the payload is ignored.
			var delta struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &delta); err == nil {
				text.WriteString(delta.Text)
			}
		case eventFinalResponse:
			finalResponse = ev.Data
		}
	}

	s.logger.Info().
		Str("model", model).
		Int("event_count", len(events)).
		Int("text_length", text.Len()).
		Msg("cortex agent run completed")

	return &AgentRunOutput{
		Text:     text.String(),
		Events:   events,
		Response: finalResponse,
	}, nil
}
