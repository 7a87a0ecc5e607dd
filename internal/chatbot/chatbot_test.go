package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/telemetry"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

func newTestBot(t *testing.T, mux *http.ServeMux) *ChatBot {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BackendURL = srv.URL
	cfg.BotID = "bot-1"
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollMaxInterval = 100 * time.Millisecond
	cfg.PollTimeout = time.Second

	logger := telemetry.Discard()
	cb := NewChatBot(cfg, Deps{
		Client: api.NewClient(srv.URL, api.WithLogger(logger)),
		Logger: logger,
	})
	t.Cleanup(cb.Close)
	return cb
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode body: %v", err)
	}
	return body
}

func hasMessage(cb *ChatBot, id string) bool {
	for _, m := range cb.Store().Messages() {
		if m.ID == id {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartShowsGreetingAndLocksInput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Hi"}],"awaitingInput":null,"finished":false}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	cb := newTestBot(t, mux)

	if err := cb.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msgs := cb.Store().Messages()
	if len(msgs) != 1 || msgs[0].Sender != transcript.SenderBot || msgs[0].Content != "Hi" {
		t.Fatalf("messages = %+v, want a single bot greeting", msgs)
	}
	if cb.CanSendText() {
		t.Fatal("text input must be disabled while the flow is not awaiting input")
	}
	if err := cb.SendText(context.Background(), "hello?"); !errors.Is(err, ErrInputLocked) {
		t.Fatalf("SendText error = %v, want ErrInputLocked", err)
	}
	if cb.Store().Len() != 1 {
		t.Fatal("a rejected message must not be appended")
	}
}

func TestFlowTextThenOptionThenFinish(t *testing.T) {
	var optionBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"question","content":"Your name?"}],"awaitingInput":"text","finished":false}`))
	})
	var calls atomic.Int32
	mux.HandleFunc("/api/flow/session/s1/respond", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		switch calls.Add(1) {
		case 1:
			if body["input"] != "Ana" {
				t.Errorf("first respond body = %v", body)
			}
			w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"options","content":"Pick one","options":["Pizza","Pasta"]}],"awaitingInput":{"type":"options","options":["Pizza","Pasta"]},"finished":false}`))
		default:
			optionBody = body
			w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Enjoy!"}],"awaitingInput":null,"finished":true}`))
		}
	})
	cb := newTestBot(t, mux)
	ctx := context.Background()

	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !cb.CanSendText() {
		t.Fatal("text reply should be allowed")
	}
	if err := cb.SendText(ctx, "Ana"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if cb.CanSendText() {
		t.Fatal("free text must be locked while options are pending")
	}

	if err := cb.ChooseOption(ctx, "2"); err != nil {
		t.Fatalf("ChooseOption: %v", err)
	}
	if got, ok := optionBody["optionIndexOrLabel"].(float64); !ok || got != 1 {
		t.Fatalf("option body = %v, want 0-based index 1", optionBody)
	}

	var prompt transcript.Message
	for _, m := range cb.Store().Messages() {
		if m.Content == "Pick one" {
			prompt = m
		}
	}
	if prompt.SelectedBranch != "Pasta" || prompt.ShowBranchOptions {
		t.Fatalf("prompt = %+v, want Pasta selected and options hidden", prompt)
	}
	if !cb.Finished() || !cb.CanSendText() {
		t.Fatal("finished flow should allow QA input")
	}
	if err := cb.ChooseOption(ctx, "1"); !errors.Is(err, ErrNoChoicePending) {
		t.Fatalf("second choice error = %v", err)
	}
}

func TestAskFallbackAndCache(t *testing.T) {
	var asks atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[],"awaitingInput":null,"finished":true}`))
	})
	mux.HandleFunc("/api/bots/ask", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		asks.Add(1)
		if body["question"] == "broken" {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"result":{"answer":"We open at 9."}}`))
	})
	cb := newTestBot(t, mux)
	ctx := context.Background()
	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := cb.SendText(ctx, "broken"); err == nil {
		t.Fatal("expected error from failing ask")
	}
	last, _ := cb.Store().Last()
	if last.Sender != transcript.SenderBot || last.Content != fallbackAnswer {
		t.Fatalf("last = %+v, want fallback answer", last)
	}

	for i := 0; i < 2; i++ {
		if err := cb.SendText(ctx, "When do you open?"); err != nil {
			t.Fatal(err)
		}
	}
	if asks.Load() != 2 {
		t.Fatalf("ask calls = %d, want 2 (second question cached)", asks.Load())
	}
	last, _ = cb.Store().Last()
	if last.Content != "We open at 9." {
		t.Fatalf("last = %+v", last)
	}
}

// fakeHandoff serves the end-user handoff endpoints.
type fakeHandoff struct {
	mu       sync.Mutex
	status   string
	messages []map[string]any
	sent     []string
}

func (f *fakeHandoff) register(t *testing.T, mux *http.ServeMux) {
	mux.HandleFunc("/api/handoff/request", func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r)
		w.Write([]byte(`{"handoffSessionId":"h1","status":"pending"}`))
	})
	mux.HandleFunc("/api/handoff/h1/client-messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"messages":           f.messages,
			"status":             f.status,
			"assignedAgentEmail": "ana@example.com",
		})
	})
	mux.HandleFunc("/api/handoff/h1/client-message", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		f.mu.Lock()
		defer f.mu.Unlock()
		content, _ := body["content"].(string)
		f.sent = append(f.sent, content)
		f.messages = append(f.messages, map[string]any{"_id": "u" + content, "sender": "user", "content": content, "timestamp": time.Now().UnixMilli()})
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/handoff/h1/client-resolve", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.status = "resolved"
		f.mu.Unlock()
		w.Write([]byte(`{"status":"resolved"}`))
	})
	mux.HandleFunc("/api/handoff/h1/client-reopen", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.status = "pending"
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/handoff/h1/rate", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["rating"] != float64(5) {
			t.Errorf("rate body = %v", body)
		}
		w.Write([]byte(`{}`))
	})
}

func (f *fakeHandoff) agentSays(id, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = "active"
	f.messages = append(f.messages, map[string]any{"_id": id, "sender": "agent", "content": content, "timestamp": time.Now().UnixMilli()})
}

func TestHandoffIntentPollsAgentMessages(t *testing.T) {
	backend := &fakeHandoff{status: "pending"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Hi"}],"awaitingInput":null,"finished":true}`))
	})
	mux.HandleFunc("/api/bots/ask", func(w http.ResponseWriter, r *http.Request) {
		t.Error("a handoff request must not reach QA")
	})
	backend.register(t, mux)

	cb := newTestBot(t, mux)
	ctx := context.Background()
	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := cb.SendText(ctx, "I want to talk to a human"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !cb.HandoffOpen() {
		t.Fatal("handoff should be open")
	}

	backend.agentSays("a1", "Hello, I'm Ana.")
	waitFor(t, func() bool { return hasMessage(cb, "a1") })

	session, _ := cb.Handoff()
	waitFor(t, func() bool {
		session, _ = cb.Handoff()
		return session.IsConnectedToAgent()
	})
	if session.AssignedAgentEmail != "ana@example.com" {
		t.Fatalf("session = %+v", session)
	}

	if err := cb.SendText(ctx, "My order is late"); err != nil {
		t.Fatalf("SendText during handoff: %v", err)
	}
	// Give the poller a few rounds to echo the user's own message back.
	time.Sleep(80 * time.Millisecond)
	count := 0
	for _, m := range cb.Store().Messages() {
		if m.Content == "My order is late" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("user message appears %d times, want 1", count)
	}

	if err := cb.Rate(ctx, 5, "great"); !errors.Is(err, ErrHandoffNotResolved) {
		t.Fatalf("rate before resolve error = %v", err)
	}
	if err := cb.ResolveHandoff(ctx); err != nil {
		t.Fatal(err)
	}
	if cb.HandoffOpen() {
		t.Fatal("handoff should be closed after resolve")
	}
	if err := cb.Rate(ctx, 5, "great"); err != nil {
		t.Fatalf("Rate: %v", err)
	}
}

func TestResolveThenReopen(t *testing.T) {
	backend := &fakeHandoff{status: "active"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[],"awaitingInput":null,"finished":true}`))
	})
	backend.register(t, mux)

	cb := newTestBot(t, mux)
	ctx := context.Background()
	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := cb.ReopenHandoff(ctx); !errors.Is(err, ErrNoHandoff) {
		t.Fatalf("reopen without handoff error = %v", err)
	}
	if err := cb.RequestHandoff(ctx, "help"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		session, _ := cb.Handoff()
		return session.IsConnectedToAgent()
	})

	if err := cb.ResolveHandoff(ctx); err != nil {
		t.Fatalf("ResolveHandoff: %v", err)
	}
	if session, _ := cb.Handoff(); session.Status != handoff.StatusResolved {
		t.Fatalf("session = %+v, want resolved", session)
	}

	if err := cb.ReopenHandoff(ctx); err != nil {
		t.Fatalf("ReopenHandoff: %v", err)
	}
	session, _ := cb.Handoff()
	if session.Status != handoff.StatusPending || !session.Reopened {
		t.Fatalf("session = %+v, want pending and reopened", session)
	}
	if !cb.HandoffOpen() {
		t.Fatal("reopened handoff should accept messages again")
	}

	notices := 0
	for _, m := range cb.Store().Messages() {
		if m.IsSystemMessage && strings.Contains(m.Content, "reopened") {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("reopen notices = %d, want 1", notices)
	}
}

func TestConfirmAnswersPendingConfirmation(t *testing.T) {
	var respondBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"confirmation","content":"Book a table?"}],"awaitingInput":{"type":"confirmation"},"finished":false}`))
	})
	mux.HandleFunc("/api/flow/session/s1/respond", func(w http.ResponseWriter, r *http.Request) {
		respondBody = decodeBody(t, r)
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Booked."}],"awaitingInput":null,"finished":true}`))
	})
	cb := newTestBot(t, mux)
	ctx := context.Background()
	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if cb.CanSendText() {
		t.Fatal("free text must be locked while a confirmation is pending")
	}
	if err := cb.ChooseOption(ctx, "1"); !errors.Is(err, ErrNoChoicePending) {
		t.Fatalf("ChooseOption during confirmation error = %v", err)
	}

	if err := cb.Confirm(ctx, true); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if respondBody["input"] != "yes" {
		t.Fatalf("respond body = %v, want input yes", respondBody)
	}

	var contents []string
	for _, m := range cb.Store().Messages() {
		contents = append(contents, m.Content)
	}
	if got := strings.Join(contents, "|"); got != "Book a table?|Yes|Booked." {
		t.Fatalf("transcript = %q", got)
	}
	if err := cb.Confirm(ctx, false); !errors.Is(err, ErrNoChoicePending) {
		t.Fatalf("second Confirm error = %v", err)
	}
}

func TestChoiceCanBeRetriedAfterFailedSend(t *testing.T) {
	var calls atomic.Int32
	var lastBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"options","content":"Pick one","options":["A","B"]}],"awaitingInput":{"type":"options","options":["A","B"]},"finished":false}`))
	})
	mux.HandleFunc("/api/flow/session/s1/respond", func(w http.ResponseWriter, r *http.Request) {
		lastBody = decodeBody(t, r)
		if calls.Add(1) == 1 {
			http.Error(w, `{"message":"bad gateway"}`, http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Got A."}],"awaitingInput":null,"finished":true}`))
	})
	cb := newTestBot(t, mux)
	ctx := context.Background()
	if err := cb.Start(ctx); err != nil {
		t.Fatal(err)
	}

	prompt := func() transcript.Message {
		for _, m := range cb.Store().Messages() {
			if m.Content == "Pick one" {
				return m
			}
		}
		t.Fatal("prompt missing")
		return transcript.Message{}
	}

	if err := cb.ChooseOption(ctx, "1"); err == nil {
		t.Fatal("expected the failed send to surface")
	}
	if got := prompt().SelectedBranch; got != "" {
		t.Fatalf("undelivered choice recorded as %q", got)
	}

	if err := cb.ChooseOption(ctx, "1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("respond calls = %d, want 2", calls.Load())
	}
	if got, ok := lastBody["optionIndexOrLabel"].(float64); !ok || got != 0 {
		t.Fatalf("retry body = %v, want index 0", lastBody)
	}
	if got := prompt().SelectedBranch; got != "A" {
		t.Fatalf("SelectedBranch = %q, want A", got)
	}
	if !cb.Finished() {
		t.Fatal("flow should be finished after the retry")
	}
}

func TestRunREPL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"confirmation","content":"Continue?"}],"awaitingInput":{"type":"confirmation"},"finished":false}`))
	})
	mux.HandleFunc("/api/flow/session/s1/respond", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["input"] != "yes" {
			t.Errorf("respond body = %v", body)
		}
		w.Write([]byte(`{"sessionId":"s1","messages":[{"type":"message","content":"Great, let's go."}],"awaitingInput":null,"finished":true}`))
	})
	cb := newTestBot(t, mux)

	in := strings.NewReader("y\n/status\n/bogus\n/quit\n")
	var out bytes.Buffer
	if err := cb.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Bot: Continue?", "[yes / no]", "Bot: Great, let's go.", "Mode: questions and answers", "unknown command", "Goodbye!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestResolveChoice(t *testing.T) {
	options := []string{"Pizza", "Pasta"}

	label, v, err := resolveChoice(options, "pasta")
	if err != nil || label != "Pasta" || v != "Pasta" {
		t.Fatalf("label choice = %q, %v, %v", label, v, err)
	}
	if _, _, err := resolveChoice(options, "3"); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("out of range error = %v", err)
	}
	if _, _, err := resolveChoice(options, "Soup"); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("unknown label error = %v", err)
	}
}
