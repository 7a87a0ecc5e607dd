package transcript

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func testMessages() []Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Message{
		{ID: "agent-1", Sender: SenderAgent, Content: "Hello, I'm here to help", Timestamp: base},
		{ID: "agent-2", Sender: SenderAgent, Content: "Could you share your order number?", Timestamp: base.Add(time.Second)},
	}
}

func TestMergePolledIsIdempotent(t *testing.T) {
	once := NewStore()
	once.Append(NewMessage(SenderUser, "I need a human"))
	twice := NewStore()
	twice.Append(once.Messages()...)

	batch := testMessages()
	once.MergePolled(batch)
	twice.MergePolled(batch)
	added := twice.MergePolled(batch)

	if len(added) != 0 {
		t.Fatalf("second merge added %d messages, want 0", len(added))
	}
	if !reflect.DeepEqual(once.Messages(), twice.Messages()) {
		t.Fatalf("merge twice = %+v, merge once = %+v", twice.Messages(), once.Messages())
	}
	if once.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", once.Len())
	}
}

func TestMergePolledKeepsReceivedOrder(t *testing.T) {
	store := NewStore()
	store.Append(testMessages()[0])

	batch := []Message{
		{ID: "agent-3", Sender: SenderAgent, Content: "third"},
		testMessages()[0],
		{ID: "agent-2", Sender: SenderAgent, Content: "second"},
		{ID: "agent-3", Sender: SenderAgent, Content: "dup in batch"},
	}
	added := store.MergePolled(batch)

	var ids []string
	for _, m := range added {
		ids = append(ids, m.ID)
	}
	if want := []string{"agent-3", "agent-2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("added ids = %v, want %v", ids, want)
	}

	msgs := store.Messages()
	if msgs[1].Content != "third" {
		t.Fatalf("duplicate id inside batch replaced the first occurrence: %+v", msgs[1])
	}
}

func TestSelectBranchIsOneTime(t *testing.T) {
	store := NewStore()
	msg := NewMessage(SenderBot, "Pick a topic")
	msg.ShowBranchOptions = true
	msg.BranchOptions = []string{"Billing", "Shipping"}
	store.Append(msg)

	if err := store.SelectBranch(msg.ID, "Billing"); err != nil {
		t.Fatalf("SelectBranch: %v", err)
	}
	err := store.SelectBranch(msg.ID, "Shipping")
	if !errors.Is(err, ErrBranchAlreadySelected) {
		t.Fatalf("second SelectBranch error = %v, want ErrBranchAlreadySelected", err)
	}

	got, _ := store.Last()
	if got.SelectedBranch != "Billing" || got.ShowBranchOptions {
		t.Fatalf("message after selection = %+v", got)
	}

	if err := store.SelectBranch("missing", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("SelectBranch on unknown id error = %v", err)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Append(NewMessage(SenderUser, "hi"))
	snapshot := store.Messages()
	snapshot[0].Content = "mutated"

	if got, _ := store.Last(); got.Content != "hi" {
		t.Fatalf("store mutated through snapshot: %q", got.Content)
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	store := NewStore()
	ch := store.Subscribe()

	store.Append(NewMessage(SenderUser, "one"))
	store.Append(NewMessage(SenderUser, "two"))

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce into one")
	default:
	}

	store.MergePolled(nil)
	select {
	case <-ch:
		t.Fatal("empty merge should not signal")
	default:
	}
}

func TestLocalIDsAreUnique(t *testing.T) {
	at := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewLocalID("user", at)
		if seen[id] {
			t.Fatalf("duplicate local id %q", id)
		}
		seen[id] = true
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{Sender: SenderUser}, "user"},
		{Message{Sender: SenderBot}, "assistant"},
		{Message{Sender: SenderAgent}, "agent"},
		{Message{Sender: SenderBot, IsSystemMessage: true}, "system"},
	}
	for _, tt := range tests {
		if got := tt.msg.Role(); got != tt.want {
			t.Errorf("Role(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
