// Package sse parses server-sent event streams into discrete event blocks.
package sse

import "strings"

// Event is a single parsed SSE block.
type Event struct {
	Event string // value of the event: line, empty if absent
	Data  string // data: lines joined with newlines, in order
	Raw   string // the block as received (line endings normalized)
}

// Parse splits payload into blank-line separated blocks and extracts the
// event name and data from each. CRLF line endings are normalized to LF
// before splitting. A data: or event: prefix has at most its leading spaces
// trimmed; multiple data: lines are joined with a newline in arrival order.
// Blocks carrying neither an event: nor a data: line are dropped. Unknown
// field lines (id:, retry:, comments) are ignored but preserved in Raw.
func Parse(payload string) []Event {
	normalized := strings.ReplaceAll(payload, "\r\n", "\n")
	blocks := strings.Split(normalized, "\n\n")

	events := make([]Event, 0, len(blocks))
	for _, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var (
			name      string
			dataLines []string
			hasEvent  bool
			hasData   bool
		)
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimLeft(line[len("event:"):], " ")
				hasEvent = true
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimLeft(line[len("data:"):], " "))
				hasData = true
			}
		}
		if !hasEvent && !hasData {
			continue
		}
		events = append(events, Event{
			Event: name,
			Data:  strings.Join(dataLines, "\n"),
			Raw:   block,
		})
	}
	return events
}
