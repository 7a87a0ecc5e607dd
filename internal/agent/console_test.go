package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/archive"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/telemetry"
)

// fakeBackend serves the agent endpoints for a single handoff "h1".
type fakeBackend struct {
	t *testing.T

	mu         sync.Mutex
	validToken string
	status     string
	messages   []map[string]any
}

func (f *fakeBackend) authorized(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+f.validToken {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/human-agent/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-1","agent":{"name":"Ana","email":"ana@example.com","status":"online"}}`))
	})
	mux.HandleFunc("/api/human-agent/profile", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"name":"Ana","email":"ana@example.com","status":"online"}`))
	})
	mux.HandleFunc("/api/human-agent/bots", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"bots":[
			{"_id":"b1","name":"Pizza bot","pendingHandoffs":[{"_id":"h2","status":"pending","createdAt":"2026-02-10T10:00:00Z"}]},
			{"_id":"b2","name":"Pasta bot","pendingHandoffs":[{"_id":"h1","status":"pending","createdAt":"2026-02-10T09:00:00Z"}]}
		]}`))
	})
	mux.HandleFunc("/api/handoff/h1/accept", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		f.status = "active"
		f.mu.Unlock()
		w.Write([]byte(`{"_id":"h1","status":"active"}`))
	})
	mux.HandleFunc("/api/handoff/h1", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"_id":           "h1",
			"botId":         "b2",
			"flowSessionId": "s1",
			"status":        f.status,
			"assignedAgent": map[string]string{"email": "ana@example.com"},
			"messages":      f.messages,
		})
	})
	mux.HandleFunc("/api/handoff/h1/message", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.messages = append(f.messages, map[string]any{
			"_id": "srv-" + body["content"], "sender": "agent", "content": body["content"], "timestamp": time.Now().UnixMilli(),
		})
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/handoff/h1/resolve", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		f.status = "resolved"
		f.mu.Unlock()
		w.Write([]byte(`{"status":"resolved"}`))
	})
	mux.HandleFunc("/api/bots/b2/history/s1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"history":[
			{"mode":"flow","type":"message","content":"Welcome!","timestamp":"2026-02-10T08:59:00Z"},
			{"mode":"qa","question":"Where is my order?","answer":"Let me check.","timestamp":"2026-02-10T08:59:30Z"},
			{"mode":"handoff","type":"message","sender":"user","content":"I need help","timestamp":"2026-02-10T09:00:00Z"}
		]}`))
	})
	return mux
}

func newTestConsole(t *testing.T, backend *fakeBackend, a *archive.Archive) *Console {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BackendURL = srv.URL
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollMaxInterval = 100 * time.Millisecond

	logger := telemetry.Discard()
	c := NewConsole(cfg, chatbot.Deps{
		Client:  api.NewClient(srv.URL, api.WithLogger(logger)),
		Archive: a,
		Logger:  logger,
	})
	t.Cleanup(c.Close)
	return c
}

func openArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLoginRemembersToken(t *testing.T) {
	backend := &fakeBackend{t: t, validToken: "tok-1"}
	a := openArchive(t)

	first := newTestConsole(t, backend, a)
	if _, err := first.Login(context.Background(), "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	second := newTestConsole(t, backend, a)
	profile, err := second.Resume(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if profile.Name != "Ana" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestResumeForgetsRejectedToken(t *testing.T) {
	backend := &fakeBackend{t: t, validToken: "tok-new"}
	a := openArchive(t)
	if err := a.SaveToken("ana@example.com", "tok-old"); err != nil {
		t.Fatal(err)
	}

	c := newTestConsole(t, backend, a)
	if _, err := c.Resume(context.Background(), "ana@example.com"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("Resume error = %v, want ErrNotSignedIn", err)
	}
	if _, err := a.LoadToken("ana@example.com"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatal("rejected token should be forgotten")
	}
}

func TestPendingOldestFirst(t *testing.T) {
	backend := &fakeBackend{t: t, validToken: "tok-1"}
	c := newTestConsole(t, backend, nil)
	if _, err := c.Login(context.Background(), "ana@example.com", "secret"); err != nil {
		t.Fatal(err)
	}

	pending, err := c.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "h1" || pending[1].ID != "h2" {
		t.Fatalf("pending = %+v, want h1 then h2", pending)
	}
	if pending[0].BotID != "b2" {
		t.Errorf("bot id not filled in: %+v", pending[0])
	}
}

func TestAcceptLoadsHistoryAndPolls(t *testing.T) {
	backend := &fakeBackend{
		t:          t,
		validToken: "tok-1",
		status:     "pending",
		messages: []map[string]any{
			{"_id": "m1", "sender": "user", "content": "I need help", "timestamp": "2026-02-10T09:00:00Z"},
		},
	}
	c := newTestConsole(t, backend, nil)
	ctx := context.Background()
	if _, err := c.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatal(err)
	}

	if err := c.Accept(ctx, "h1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	contents := func() []string {
		var out []string
		for _, m := range c.Store().Messages() {
			if !m.IsSystemMessage {
				out = append(out, m.Content)
			}
		}
		return out
	}
	got := strings.Join(contents(), "|")
	if got != "Welcome!|Where is my order?|Let me check.|I need help" {
		t.Fatalf("transcript = %q", got)
	}
	if session, _ := c.Session(); session.Status != handoff.StatusActive {
		t.Fatalf("session = %+v, want active", session)
	}
	var joined bool
	for _, m := range c.Store().Messages() {
		if !m.IsSystemMessage {
			continue
		}
		if strings.Contains(m.Content, "You are now connected") {
			t.Fatalf("agent transcript shows customer wording: %q", m.Content)
		}
		joined = joined || strings.Contains(m.Content, "You joined the conversation")
	}
	if !joined {
		t.Fatal("agent transcript should note that the agent joined")
	}

	if err := c.Send(ctx, "On it!"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	count := 0
	for _, s := range contents() {
		if s == "On it!" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("agent message appears %d times, want 1", count)
	}

	if err := c.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	if session, _ := c.Session(); session.Status != handoff.StatusResolved {
		t.Fatalf("session = %+v, want resolved", session)
	}
	if err := c.Send(ctx, "late"); err == nil {
		t.Fatal("sending into a resolved handoff should fail")
	}
}

func TestSendWithoutOpenChat(t *testing.T) {
	c := newTestConsole(t, &fakeBackend{t: t}, nil)
	if err := c.Send(context.Background(), "hello"); !errors.Is(err, ErrNoOpenChat) {
		t.Fatalf("error = %v, want ErrNoOpenChat", err)
	}
}

func TestRunConsole(t *testing.T) {
	backend := &fakeBackend{t: t, validToken: "tok-1"}
	c := newTestConsole(t, backend, nil)

	in := strings.NewReader("/login ana@example.com secret\n/pending\n/nope\n/quit\n")
	var out bytes.Buffer
	if err := c.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Signed in as Ana", "1. h1", "2. h2", "unknown command", "Goodbye!"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
