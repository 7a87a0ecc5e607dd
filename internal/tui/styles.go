package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

type styles struct {
	user     lipgloss.Style
	bot      lipgloss.Style
	agent    lipgloss.Style
	system   lipgloss.Style
	label    lipgloss.Style
	option   lipgloss.Style
	selected lipgloss.Style
	status   lipgloss.Style
	jump     lipgloss.Style
}

func newStyles() styles {
	bubble := lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	muted := lipgloss.Color("#8a8f98")
	return styles{
		user:     bubble.BorderForeground(lipgloss.Color("#7c3aed")),
		bot:      bubble.BorderForeground(lipgloss.Color("#0ea5e9")),
		agent:    bubble.BorderForeground(lipgloss.Color("#16a34a")),
		system:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		label:    lipgloss.NewStyle().Foreground(muted).Bold(true),
		option:   lipgloss.NewStyle().Foreground(lipgloss.Color("#0ea5e9")),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a")).Bold(true),
		status:   lipgloss.NewStyle().Foreground(muted),
		jump:     lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#7c3aed")).Padding(0, 1),
	}
}

// renderMessage draws one entry. User bubbles sit on the right.
func (s styles) renderMessage(msg transcript.Message, width int) string {
	if width < 20 {
		width = 20
	}
	if msg.IsSystemMessage {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, s.system.Width(width*3/4).Align(lipgloss.Center).Render(msg.Content))
	}

	var body strings.Builder
	body.WriteString(msg.Content)
	if msg.AudioURL != "" {
		body.WriteString("\n♪ " + msg.AudioURL)
	}
	for i, opt := range msg.BranchOptions {
		line := "\n" + strconv.Itoa(i+1) + ". " + opt
		switch {
		case msg.SelectedBranch == opt:
			body.WriteString(s.selected.Render(line + " ✓"))
		case msg.ShowBranchOptions:
			body.WriteString(s.option.Render(line))
		}
	}
	if msg.ShowConfirmationButtons {
		body.WriteString(s.option.Render("\n[yes] [no]"))
	}
	if msg.ConfirmationResponse != "" {
		body.WriteString(s.selected.Render("\n→ " + msg.ConfirmationResponse))
	}

	bubbleWidth := width * 3 / 4
	style, label, align := s.bot, "Bot", lipgloss.Left
	switch msg.Sender {
	case transcript.SenderUser:
		style, label, align = s.user, "You", lipgloss.Right
	case transcript.SenderAgent:
		style, label = s.agent, "Agent"
	}

	inner := body.String()
	if lipgloss.Width(inner) > bubbleWidth-4 {
		inner = lipgloss.NewStyle().Width(bubbleWidth - 4).Render(inner)
	}
	rendered := lipgloss.JoinVertical(align,
		s.label.Render(label+" · "+msg.Timestamp.Format("15:04")),
		style.Render(inner),
	)
	return lipgloss.PlaceHorizontal(width, align, rendered)
}
