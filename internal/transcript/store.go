package transcript

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMessageNotFound       = errors.New("message not found")
	ErrBranchAlreadySelected = errors.New("branch already selected")
)

// Store is the ordered, append-only message list for one conversation view.
// Entries are never mutated except for the one-time SelectBranch transition.
// Store is safe for concurrent use: the poller and user-triggered sends both
// write to it.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	index    map[string]int
	subs     []chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// Append adds msg at the end. No ordering check is made against existing
// timestamps; arrival order is display order.
func (s *Store) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	for _, msg := range msgs {
		s.appendLocked(msg)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) appendLocked(msg Message) {
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// MergePolled appends the messages of batch whose id is not yet present,
// in received order, and returns the ones that were added. Merging the same
// batch twice is a no-op the second time.
func (s *Store) MergePolled(batch []Message) []Message {
	s.mu.Lock()
	var added []Message
	for _, msg := range batch {
		if _, exists := s.index[msg.ID]; exists {
			continue
		}
		s.appendLocked(msg)
		added = append(added, msg)
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.notify()
	}
	return added
}

// SelectBranch records the branch the user picked on the message with id.
// The transition happens at most once per message.
func (s *Store) SelectBranch(id, branch string) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if s.messages[i].SelectedBranch != "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBranchAlreadySelected, id)
	}
	s.messages[i].SelectedBranch = branch
	s.messages[i].ShowBranchOptions = false
	s.mu.Unlock()

	s.notify()
	return nil
}

// Messages returns a snapshot copy of the transcript.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Last returns the most recent message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Subscribe returns a channel that receives a signal whenever the store
// changes. Signals coalesce: a slow reader sees one pending signal, never a
// backlog.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
