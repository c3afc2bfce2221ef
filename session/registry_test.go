package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, store *fakeStore) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deps := Deps{
		Voice:    &fakeVoice{player: &fakePlayer{}},
		Resolver: &fakeResolver{},
		Clock:    newFakeClock(),
	}
	if store != nil {
		deps.Store = store
	}
	return NewRegistry(ctx, DefaultConfig(), deps)
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r := newTestRegistry(t, nil)

	_, ok := r.Peek("guild-1")
	assert.False(t, ok)

	a := r.Get(context.Background(), "guild-1")
	b := r.Get(context.Background(), "guild-1")
	c := r.Get(context.Background(), "guild-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	peeked, ok := r.Peek("guild-1")
	assert.True(t, ok)
	assert.Same(t, a, peeked)
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r := newTestRegistry(t, newFakeStore())

	var wg sync.WaitGroup
	got := make([]*Session, 50)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get(context.Background(), "guild-1")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}

func TestRegistry_RestoresPersistedQueueOnce(t *testing.T) {
	store := newFakeStore()
	store.queues["guild-1"] = []storedItem{{"id-x", "x", "X"}, {"id-y", "y", "Y"}}
	r := newTestRegistry(t, store)

	s := r.Get(context.Background(), "guild-1")
	r.Get(context.Background(), "guild-1")

	items := s.QueueSnapshot().Items
	require.Len(t, items, 2)
	assert.Equal(t, "id-x", items[0].ID)
	assert.Equal(t, "Y", items[1].Title())
	assert.Equal(t, 1, store.loads)
}

func TestRegistry_MessageDeleted(t *testing.T) {
	r := newTestRegistry(t, nil)
	s1 := r.Get(context.Background(), "guild-1")
	s2 := r.Get(context.Background(), "guild-2")
	s1.UpdateMessage(context.Background(), SlotQueue, &fakeMessage{id: "m1"})
	s2.UpdateMessage(context.Background(), SlotQueue, &fakeMessage{id: "m2"})

	assert.False(t, r.MessageDeleted("guild-1", "m2"))
	assert.True(t, r.MessageDeleted("", "m2"))
	assert.Nil(t, s2.Message(SlotQueue))
	assert.True(t, r.MessageDeleted("guild-1", "m1"))
	assert.False(t, r.MessageDeleted("guild-3", "m1"))
}

func TestRegistry_ShutdownKeepsPersistedQueue(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(t, store)
	s := r.Get(context.Background(), "guild-1")
	require.NoError(t, s.Connect(context.Background(), "voice-1"))
	s.Enqueue(newItems("A", "B")...)

	r.Shutdown(context.Background())

	_, connected := s.Connected()
	assert.False(t, connected)
	assert.Equal(t, []string{"A", "B"}, store.Sources("guild-1"))
}
