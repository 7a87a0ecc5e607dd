// Package embed generates the snippets site owners paste into their pages
// to show a bot's chat widget.
package embed

import (
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Options describe the widget to embed.
type Options struct {
	BotID string
	// BaseURL is the public URL of the studio frontend.
	BaseURL string
	// RelayURL is an optional websocket relay for live handoff updates.
	RelayURL string
	Width    string
	Height   string
	Theme    string
}

// Snippets holds the generated markup.
type Snippets struct {
	Script string
	IFrame string
	Link   string
}

const scriptTmpl = `<script src="{{.Base}}/embed.js" data-bot-id="{{.BotID}}"{{if .Relay}} data-relay="{{.Relay}}"{{end}}{{if .Theme}} data-theme="{{.Theme}}"{{end}} async></script>`

const iframeTmpl = `<iframe src="{{.Chat}}" width="{{.Width}}" height="{{.Height}}" style="border:none;border-radius:12px" allow="microphone; autoplay" title="Chat"></iframe>`

var (
	scriptTemplate = template.Must(template.New("script").Parse(scriptTmpl))
	iframeTemplate = template.Must(template.New("iframe").Parse(iframeTmpl))
)

// Generate renders the script and iframe snippets for opts.
func Generate(opts Options) (Snippets, error) {
	if strings.TrimSpace(opts.BotID) == "" {
		return Snippets{}, errors.New("bot id must not be empty")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return Snippets{}, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if opts.RelayURL != "" {
		relay, err := url.Parse(opts.RelayURL)
		if err != nil || (relay.Scheme != "ws" && relay.Scheme != "wss") {
			return Snippets{}, fmt.Errorf("invalid relay URL %q", opts.RelayURL)
		}
	}

	chat := base.JoinPath("chat", opts.BotID)
	if opts.Theme != "" {
		q := chat.Query()
		q.Set("theme", opts.Theme)
		chat.RawQuery = q.Encode()
	}

	data := struct {
		Base, BotID, Relay, Theme, Width, Height string
		Chat                                     string
	}{
		Base:   base.String(),
		BotID:  opts.BotID,
		Relay:  opts.RelayURL,
		Theme:  opts.Theme,
		Width:  orDefault(opts.Width, "400"),
		Height: orDefault(opts.Height, "600"),
		Chat:   chat.String(),
	}

	var script, iframe strings.Builder
	if err := scriptTemplate.Execute(&script, data); err != nil {
		return Snippets{}, fmt.Errorf("failed to render script snippet: %w", err)
	}
	if err := iframeTemplate.Execute(&iframe, data); err != nil {
		return Snippets{}, fmt.Errorf("failed to render iframe snippet: %w", err)
	}
	return Snippets{Script: script.String(), IFrame: iframe.String(), Link: chat.String()}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
