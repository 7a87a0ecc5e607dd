package cache

import (
	"testing"
	"time"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

func TestGetPut(t *testing.T) {
	c := New(0)
	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache hit")
	}
	c.Put("k", "v")
	if got, ok := c.Get("k"); !ok || got != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestKeysDistinguishBoundaries(t *testing.T) {
	if KeyOf("ab", "c") == KeyOf("a", "bc") {
		t.Fatal("part boundaries must affect the key")
	}

	a := []transcript.Message{{Sender: transcript.SenderUser, Content: "hi"}}
	b := []transcript.Message{{Sender: transcript.SenderBot, Content: "hi"}}
	if GenerateCacheKey(a) == GenerateCacheKey(b) {
		t.Fatal("sender must affect the key")
	}
	if GenerateCacheKey(a) != GenerateCacheKey([]transcript.Message{{Sender: transcript.SenderUser, Content: "hi", ID: "other"}}) {
		t.Fatal("ids must not affect the key")
	}
}
