package session

import (
	"context"
	"errors"
	"sync"

	"github.com/Strum355/log"
)

// Slot names one of the ephemeral UI messages a session keeps alive.
type Slot int

const (
	SlotStatus Slot = iota
	SlotQueue
	SlotNowPlaying
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotStatus:
		return "status"
	case SlotQueue:
		return "queue"
	case SlotNowPlaying:
		return "now_playing"
	default:
		return "unknown"
	}
}

// MessageTracker holds at most one live message per slot.
type MessageTracker struct {
	mu    sync.Mutex
	slots [slotCount]Message
}

// Update stores msg in slot and deletes the message it replaces. A nil msg clears the slot.
func (t *MessageTracker) Update(ctx context.Context, slot Slot, msg Message) {
	t.mu.Lock()
	prev := t.slots[slot]
	t.slots[slot] = msg
	t.mu.Unlock()

	if prev == nil || (msg != nil && prev.ID() == msg.ID()) {
		return
	}
	deleteMessage(ctx, prev)
}

func (t *MessageTracker) Get(slot Slot) Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[slot]
}

// Forget clears every slot holding messageID. It reports whether one matched.
func (t *MessageTracker) Forget(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	matched := false
	for i, msg := range t.slots {
		if msg != nil && msg.ID() == messageID {
			t.slots[i] = nil
			matched = true
		}
	}
	return matched
}

// Clear empties all slots and deletes their messages.
func (t *MessageTracker) Clear(ctx context.Context) {
	t.mu.Lock()
	msgs := t.slots
	t.slots = [slotCount]Message{}
	t.mu.Unlock()

	for _, msg := range msgs {
		if msg != nil {
			deleteMessage(ctx, msg)
		}
	}
}

// deleteMessage deletes msg unless the platform says it is already gone.
func deleteMessage(ctx context.Context, msg Message) {
	exists, err := msg.Exists(ctx)
	if err != nil {
		log.WithError(err).Debug("Could not look up tracked message " + msg.ID())
	} else if !exists {
		return
	}
	if err := msg.Delete(ctx); err != nil && !errors.Is(err, ErrMessageGone) {
		log.WithError(err).Warn("Failed to delete tracked message " + msg.ID())
	}
}
