package transcript

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message. The set is closed.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderAgent:
		return true
	}
	return false
}

// Message is a single displayable entry of a conversation transcript.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	IsSystemMessage bool `json:"isSystemMessage,omitempty"`

	ShowConfirmationButtons bool   `json:"showConfirmationButtons,omitempty"`
	IsConfirmation          bool   `json:"isConfirmation,omitempty"`
	ConfirmationResponse    string `json:"confirmationResponse,omitempty"`

	ShowBranchOptions bool     `json:"showBranchOptions,omitempty"`
	BranchOptions     []string `json:"branchOptions,omitempty"`
	SelectedBranch    string   `json:"selectedBranch,omitempty"`

	AudioURL string `json:"audioUrl,omitempty"`
}

// Role returns the chat-completion style role for the sender: the bot is
// the "assistant", system notices are "system".
func (m Message) Role() string {
	if m.IsSystemMessage {
		return "system"
	}
	switch m.Sender {
	case SenderBot:
		return "assistant"
	case SenderAgent:
		return "agent"
	default:
		return "user"
	}
}

// NewLocalID synthesizes an id for a message created on this client.
func NewLocalID(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, at.UnixMilli(), uuid.NewString()[:8])
}

// NewMessage builds a locally created message stamped with now.
func NewMessage(sender Sender, content string) Message {
	now := time.Now()
	return Message{
		ID:        NewLocalID(string(sender), now),
		Sender:    sender,
		Content:   content,
		Timestamp: now,
	}
}

// NewSystemMessage builds a locally created system notice.
func NewSystemMessage(content string) Message {
	msg := NewMessage(SenderBot, content)
	msg.ID = NewLocalID("system", msg.Timestamp)
	msg.IsSystemMessage = true
	return msg
}
