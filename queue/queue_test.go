package queue

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItems(titles ...string) []*Item {
	items := make([]*Item, 0, len(titles))
	for _, title := range titles {
		items = append(items, NewItem("https://youtu.be/"+title, Metadata{Title: title, DurationMs: 1000}))
	}
	return items
}

func titles(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title())
	}
	return out
}

func TestEnqueue(t *testing.T) {
	q := New()

	q.Enqueue(newTestItems("A")...)
	q.Enqueue(newTestItems("B", "C")...)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"A", "B", "C"}, titles(q.Items()))
	assert.False(t, q.Looping())
}

func TestEnqueue_KeepsUnavailableItems(t *testing.T) {
	q := New()

	q.Enqueue(NewItem("https://youtu.be/gone", Metadata{}))

	require.Equal(t, 1, q.Len())
	current, ok := q.Current()
	require.True(t, ok)
	assert.False(t, current.Playable())
}

func TestDequeue(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B", "C", "D")...)

	removed := q.Dequeue(1)

	assert.Equal(t, []string{"A"}, titles(removed))
	assert.Equal(t, []string{"B", "C", "D"}, titles(q.Items()))

	removed = q.Dequeue(2)

	assert.Equal(t, []string{"B", "C"}, titles(removed))
	assert.Equal(t, []string{"D"}, titles(q.Items()))
}

func TestDequeue_ZeroIsNoop(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B")...)

	assert.Nil(t, q.Dequeue(0))
	assert.Equal(t, 2, q.Len())
}

func TestDequeue_MoreThanLength(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B")...)

	removed := q.Dequeue(5)

	assert.Len(t, removed, 2)
	assert.False(t, q.HasMedia())
}

func TestDequeue_LoopingAppendsToTail(t *testing.T) {
	q := New()
	items := newTestItems("A", "B", "C", "D")
	q.Enqueue(items...)
	stream := &fakeStream{}
	items[0].SetStream(stream)
	q.Loop()

	q.Dequeue(2)

	assert.Equal(t, []string{"C", "D", "A", "B"}, titles(q.Items()))
	assert.False(t, items[0].HasStream())
	assert.True(t, stream.closed)
}

func TestLoop_RotationRestoresOrder(t *testing.T) {
	q := New()
	items := newTestItems("A", "B", "C", "D", "E")
	q.Enqueue(items...)
	q.Loop()

	for range items {
		q.Dequeue(1)
	}

	assert.Equal(t, items, q.Items())
}

func TestEndLoop(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B")...)
	q.Loop()
	q.EndLoop()

	q.Dequeue(1)

	assert.Equal(t, []string{"B"}, titles(q.Items()))
}

func TestCurrent(t *testing.T) {
	q := New()

	_, ok := q.Current()
	assert.False(t, ok)

	q.Enqueue(newTestItems("A", "B")...)
	current, ok := q.Current()

	require.True(t, ok)
	assert.Equal(t, "A", current.Title())
	assert.Equal(t, 2, q.Len())
}

func TestRemoveAt(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B", "C")...)

	removed, err := q.RemoveAt(0)

	require.NoError(t, err)
	assert.Equal(t, "A", removed.Title())
	assert.Equal(t, []string{"B", "C"}, titles(q.Items()))

	removed, err = q.RemoveAt(1)

	require.NoError(t, err)
	assert.Equal(t, "C", removed.Title())
	assert.Equal(t, []string{"B"}, titles(q.Items()))
}

func TestRemoveAt_OutOfRange(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A")...)

	_, err := q.RemoveAt(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = q.RemoveAt(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, 1, q.Len())
}

func TestShuffle_KeepsCurrentAndMultiset(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		q := New()
		r := rand.New(rand.NewPCG(seed, seed))
		q.shuffle = r.Shuffle
		items := newTestItems("A", "B", "C", "D", "E", "F")
		q.Enqueue(items...)

		q.Shuffle()

		shuffled := q.Items()
		require.Len(t, shuffled, len(items))
		assert.Same(t, items[0], shuffled[0])
		assert.ElementsMatch(t, items[1:], shuffled[1:])
	}
}

func TestShuffle_ShortQueues(t *testing.T) {
	q := New()
	q.shuffle = func(n int, swap func(i, j int)) {
		t.Fatal("shuffle should not run for fewer than two movable items")
	}
	q.Shuffle()
	q.Enqueue(newTestItems("A", "B")...)
	q.Shuffle()

	assert.Equal(t, []string{"A", "B"}, titles(q.Items()))
}

func TestSetOrder(t *testing.T) {
	q := New()
	items := newTestItems("A", "B", "C")
	q.Enqueue(items...)

	q.SetOrder([]*Item{items[2], items[0], items[1]})

	assert.Equal(t, []string{"C", "A", "B"}, titles(q.Items()))
}

func TestClear(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B")...)
	q.Loop()

	removed := q.Clear()

	assert.Len(t, removed, 2)
	assert.False(t, q.HasMedia())
	assert.False(t, q.Looping())
}

func TestContains(t *testing.T) {
	q := New()
	items := newTestItems("A", "B")
	q.Enqueue(items...)

	assert.True(t, q.Contains(items[1]))

	q.Dequeue(1)

	assert.False(t, q.Contains(items[0]))
	assert.False(t, q.Contains(newTestItems("B")[0]))
}

func TestTotalLength(t *testing.T) {
	q := New()
	assert.Equal(t, int64(0), q.TotalLength())

	q.Enqueue(newTestItems("A", "B", "C")...)

	assert.Equal(t, int64(3000), q.TotalLength())
}

func TestItems_ReturnsCopy(t *testing.T) {
	q := New()
	q.Enqueue(newTestItems("A", "B")...)

	snapshot := q.Items()
	snapshot[0] = nil

	current, _ := q.Current()
	assert.NotNil(t, current)
}

func TestMixedOperations_PreserveIdentity(t *testing.T) {
	q := New()
	r := rand.New(rand.NewPCG(7, 11))
	seen := map[string]bool{}
	enqueued, removed := 0, 0

	for step := 0; step < 500; step++ {
		switch r.IntN(3) {
		case 0:
			item := NewItem(fmt.Sprintf("src-%d", step), Metadata{Title: fmt.Sprintf("t%d", step)})
			q.Enqueue(item)
			seen[item.ID] = true
			enqueued++
		case 1:
			removed += len(q.Dequeue(r.IntN(3)))
		case 2:
			if q.Len() > 0 {
				_, err := q.RemoveAt(r.IntN(q.Len()))
				require.NoError(t, err)
				removed++
			}
		}
		require.Equal(t, enqueued-removed, q.Len())
	}

	ids := map[string]bool{}
	for _, item := range q.Items() {
		assert.True(t, seen[item.ID])
		assert.False(t, ids[item.ID], "duplicate item %s", item.ID)
		ids[item.ID] = true
	}
}
