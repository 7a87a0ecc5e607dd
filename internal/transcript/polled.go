package transcript

import (
	"encoding/json"
	"fmt"
)

// PolledMessage is a message as returned by the handoff message endpoints.
type PolledMessage struct {
	ID              string          `json:"id,omitempty"`
	MongoID         string          `json:"_id,omitempty"`
	Sender          string          `json:"sender"`
	Content         json.RawMessage `json:"content"`
	Timestamp       Timestamp       `json:"timestamp"`
	IsSystemMessage bool            `json:"isSystemMessage,omitempty"`
	AgentEmail      string          `json:"agentEmail,omitempty"`
}

// ServerID returns the backend-assigned id, if any.
func (p PolledMessage) ServerID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.MongoID
}

// FromPolled maps a polled message list into display messages. The backend
// returns the whole list on every poll, so a message without a server id is
// keyed by sender, timestamp and position; two messages in the same
// millisecond still get distinct ids and repeated polls map to the same ids.
func FromPolled(raw []PolledMessage) []Message {
	out := make([]Message, 0, len(raw))
	for i, p := range raw {
		sender, system := ParseSender(p.Sender)
		id := p.ServerID()
		if id == "" {
			id = fmt.Sprintf("%s-%d-%d", sender, millis(p.Timestamp.Time), i)
		}
		content := ContentText(p.Content)
		if content == "" {
			content = placeholder("empty")
		}
		out = append(out, Message{
			ID:              id,
			Sender:          sender,
			Content:         content,
			Timestamp:       p.Timestamp.Time,
			IsSystemMessage: system || p.IsSystemMessage,
		})
	}
	return out
}
