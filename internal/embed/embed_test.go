package embed

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	s, err := Generate(Options{BotID: "bot-1", BaseURL: "https://studio.example.com/", RelayURL: "wss://relay.example.com/ws"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		`src="https://studio.example.com/embed.js"`,
		`data-bot-id="bot-1"`,
		`data-relay="wss://relay.example.com/ws"`,
	} {
		if !strings.Contains(s.Script, want) {
			t.Errorf("script missing %s:\n%s", want, s.Script)
		}
	}
	if !strings.Contains(s.IFrame, `src="https://studio.example.com/chat/bot-1"`) || !strings.Contains(s.IFrame, `width="400"`) {
		t.Errorf("iframe = %s", s.IFrame)
	}
	if s.Link != "https://studio.example.com/chat/bot-1" {
		t.Errorf("link = %s", s.Link)
	}
}

func TestGenerateEscapesBotID(t *testing.T) {
	s, err := Generate(Options{BotID: `x"><script>`, BaseURL: "https://studio.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(s.Script, `"><script>`) {
		t.Fatalf("bot id not escaped: %s", s.Script)
	}
}

func TestGenerateValidates(t *testing.T) {
	tests := []Options{
		{BotID: "", BaseURL: "https://studio.example.com"},
		{BotID: "b", BaseURL: "ftp://studio.example.com"},
		{BotID: "b", BaseURL: "https://studio.example.com", RelayURL: "http://relay"},
	}
	for _, opts := range tests {
		if _, err := Generate(opts); err == nil {
			t.Errorf("Generate(%+v) should fail", opts)
		}
	}
}
