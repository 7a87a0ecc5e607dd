package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// History log modes.
const (
	ModeFlow    = "flow"
	ModeQA      = "qa"
	ModeHandoff = "handoff"
)

// HistoryEntry is one record of the backend's conversation log. The shape
// varies per mode; unused fields are simply empty.
type HistoryEntry struct {
	Mode      string          `json:"mode"`
	Type      string          `json:"type,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`

	// qa
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	// flow
	NodeID        string          `json:"nodeId,omitempty"`
	FromUser      bool            `json:"fromUser,omitempty"`
	AwaitingInput json.RawMessage `json:"awaitingInput,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	AudioURL      string          `json:"audioUrl,omitempty"`

	// handoff
	HandoffSessionID string `json:"handoffSessionId,omitempty"`
	Sender           string `json:"sender,omitempty"`
	IsSystemMessage  bool   `json:"isSystemMessage,omitempty"`
	AgentEmail       string `json:"agentEmail,omitempty"`
}

// handoff lifecycle events that the backend may log twice: once raw and
// once as a system-message echo.
var handoffEventText = map[string]string{
	"request":   "Requested to talk to a human agent.",
	"requested": "Requested to talk to a human agent.",
	"accepted":  "An agent joined the conversation.",
	"assigned":  "An agent joined the conversation.",
	"resolved":  "The conversation was marked as resolved.",
	"reopened":  "The conversation was reopened.",
	"rated":     "The conversation was rated.",
}

// MapHistory projects a backend history log into display messages. Each
// entry yields zero, one or two messages. The function never fails:
// unexpected shapes degrade to placeholder text.
func MapHistory(entries []HistoryEntry) []Message {
	out := make([]Message, 0, len(entries))
	consumed := make(map[int]bool)

	for i, entry := range entries {
		if consumed[i] {
			continue
		}
		base := fmt.Sprintf("%s-%d-%d", modeOrUnknown(entry.Mode), millis(entry.Timestamp.Time), i)

		switch entry.Mode {
		case ModeQA:
			out = append(out, mapQA(entry, base)...)
		case ModeFlow:
			if msg, ok := mapFlow(entries, i, base, consumed); ok {
				out = append(out, msg)
			}
		case ModeHandoff:
			if msg, ok := mapHandoff(entries, i, base); ok {
				out = append(out, msg)
			}
		default:
			out = append(out, fallbackMessage(entry, base))
		}
	}
	return out
}

func mapQA(entry HistoryEntry, base string) []Message {
	ts := entry.Timestamp.Time
	return []Message{
		{ID: base + "-q", Sender: SenderUser, Content: entry.Question, Timestamp: ts},
		{ID: base + "-a", Sender: SenderBot, Content: entry.Answer, Timestamp: ts},
	}
}

func mapFlow(entries []HistoryEntry, i int, base string, consumed map[int]bool) (Message, bool) {
	entry := entries[i]
	msg := Message{
		ID:        base,
		Sender:    SenderBot,
		Content:   ContentText(entry.Content),
		Timestamp: entry.Timestamp.Time,
	}

	switch entry.Type {
	case "confirmation":
		msg.IsConfirmation = true
		if j, ok := nextSameNode(entries, i); ok && isUserInput(entries[j]) {
			msg.ConfirmationResponse = ContentText(entries[j].Content)
			consumed[j] = true
		} else if truthy(entry.AwaitingInput) {
			msg.ShowConfirmationButtons = true
		}
		return msg, true

	case "options", "branch", "choice":
		msg.BranchOptions = ParseOptions(entry.Options)
		if j, ok := nextSameNode(entries, i); ok && isUserInput(entries[j]) {
			msg.SelectedBranch = ContentText(entries[j].Content)
		} else {
			msg.ShowBranchOptions = len(msg.BranchOptions) > 0
		}
		return msg, true

	case "user_input":
		msg.Sender = SenderUser
		return msg, true

	case "audio":
		msg.AudioURL = entry.AudioURL
		if msg.Content == "" {
			msg.Content = "[audio]"
		}
		return msg, true

	case "message", "question", "text", "input", "":
		if entry.FromUser {
			msg.Sender = SenderUser
		}
		if msg.Content == "" {
			return Message{}, false
		}
		return msg, true
	}

	return fallbackMessage(entry, base), true
}

func mapHandoff(entries []HistoryEntry, i int, base string) (Message, bool) {
	entry := entries[i]
	msg := Message{
		ID:        base,
		Content:   ContentText(entry.Content),
		Timestamp: entry.Timestamp.Time,
	}

	if entry.IsSystemMessage || entry.Sender == "system" {
		msg.Sender = SenderBot
		msg.IsSystemMessage = true
		if msg.Content == "" {
			msg.Content = cannedHandoffText(entry)
		}
		return msg, true
	}

	if text, isEvent := handoffEventText[entry.Type]; isEvent {
		if hasSystemEcho(entries, i) {
			return Message{}, false
		}
		msg.Sender = SenderBot
		msg.IsSystemMessage = true
		if msg.Content == "" {
			msg.Content = text
			if entry.AgentEmail != "" && (entry.Type == "accepted" || entry.Type == "assigned") {
				msg.Content = fmt.Sprintf("%s joined the conversation.", entry.AgentEmail)
			}
		}
		return msg, true
	}

	switch entry.Type {
	case "message", "agent_message", "user_message", "":
		sender, system := ParseSender(entry.Sender)
		if entry.Type == "agent_message" {
			sender = SenderAgent
		} else if entry.Type == "user_message" {
			sender = SenderUser
		}
		msg.Sender = sender
		msg.IsSystemMessage = system
		return msg, true
	}

	return fallbackMessage(entry, base), true
}

// hasSystemEcho reports whether a later entry is the system-message version
// of the raw event at i.
func hasSystemEcho(entries []HistoryEntry, i int) bool {
	raw := entries[i]
	for j := i + 1; j < len(entries); j++ {
		e := entries[j]
		if e.Mode == ModeHandoff && e.IsSystemMessage &&
			e.Type == raw.Type && e.HandoffSessionID == raw.HandoffSessionID {
			return true
		}
	}
	return false
}

func cannedHandoffText(entry HistoryEntry) string {
	if text, ok := handoffEventText[entry.Type]; ok {
		return text
	}
	return placeholder(entry.Type)
}

func nextSameNode(entries []HistoryEntry, i int) (int, bool) {
	node := entries[i].NodeID
	if node == "" {
		return 0, false
	}
	for j := i + 1; j < len(entries); j++ {
		if entries[j].Mode == ModeFlow && entries[j].NodeID == node {
			return j, true
		}
	}
	return 0, false
}

func isUserInput(entry HistoryEntry) bool {
	return entry.Type == "user_input" || entry.FromUser
}

func fallbackMessage(entry HistoryEntry, base string) Message {
	sender := SenderBot
	if entry.FromUser {
		sender = SenderUser
	}
	content := ContentText(entry.Content)
	if content == "" {
		content = placeholder(entry.Type)
	}
	return Message{
		ID:        base,
		Sender:    sender,
		Content:   content,
		Timestamp: entry.Timestamp.Time,
	}
}

func placeholder(typ string) string {
	if typ == "" {
		typ = "unknown"
	}
	return "[" + typ + "]"
}

func modeOrUnknown(mode string) string {
	if mode == "" {
		return "unknown"
	}
	return mode
}

// ContentText renders an arbitrary JSON content value as display text:
// strings as-is, anything else as compact JSON.
func ContentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	return string(raw)
}

// ParseOptions reads branch options given either as strings or as objects
// carrying a label/text/value field.
func ParseOptions(raw json.RawMessage) []string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	options := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			options = append(options, s)
			continue
		}
		var obj struct {
			Label string `json:"label"`
			Text  string `json:"text"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			switch {
			case obj.Label != "":
				options = append(options, obj.Label)
			case obj.Text != "":
				options = append(options, obj.Text)
			case obj.Value != "":
				options = append(options, obj.Value)
			}
		}
	}
	return options
}

// ParseSender maps a backend sender string onto the closed sender set.
// "system" maps to a bot system notice.
func ParseSender(s string) (Sender, bool) {
	switch strings.ToLower(s) {
	case "agent", "human", "human_agent":
		return SenderAgent, false
	case "user", "client", "visitor":
		return SenderUser, false
	case "system":
		return SenderBot, true
	default:
		return SenderBot, false
	}
}

func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
