package queue

import (
	"fmt"
	"math/rand/v2"
)

// Queue is an ordered list of items. The item at position 0 is the current one.
// A Queue is not safe for concurrent use; its owning session serializes access.
type Queue struct {
	items   []*Item
	looping bool
	shuffle func(n int, swap func(i, j int))
}

func New() *Queue {
	return &Queue{shuffle: rand.Shuffle}
}

// Enqueue appends items in order. Unplayable items are kept so the session can report them.
func (q *Queue) Enqueue(items ...*Item) {
	for _, item := range items {
		if item != nil {
			q.items = append(q.items, item)
		}
	}
}

// Dequeue removes up to count items from the front and returns them. When
// looping, the removed items are appended to the tail with their streams
// invalidated instead of being discarded.
func (q *Queue) Dequeue(count int) []*Item {
	if count <= 0 || len(q.items) == 0 {
		return nil
	}
	if count > len(q.items) {
		count = len(q.items)
	}

	removed := make([]*Item, count)
	copy(removed, q.items[:count])
	rest := q.items[count:]

	items := make([]*Item, 0, len(q.items))
	items = append(items, rest...)
	if q.looping {
		for _, item := range removed {
			item.Invalidate()
		}
		items = append(items, removed...)
	}
	q.items = items
	return removed
}

// Current returns the item at position 0.
func (q *Queue) Current() (*Item, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

func (q *Queue) At(index int) (*Item, error) {
	if index < 0 || index >= len(q.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(q.items))
	}
	return q.items[index], nil
}

// RemoveAt deletes the item at index. Removing index 0 invalidates whatever is
// streaming; stopping playback is up to the caller.
func (q *Queue) RemoveAt(index int) (*Item, error) {
	item, err := q.At(index)
	if err != nil {
		return nil, err
	}
	items := make([]*Item, 0, len(q.items)-1)
	items = append(items, q.items[:index]...)
	items = append(items, q.items[index+1:]...)
	q.items = items
	return item, nil
}

// SetOrder replaces the queue contents with items.
func (q *Queue) SetOrder(items []*Item) {
	q.items = q.items[:0:0]
	q.Enqueue(items...)
}

// Shuffle permutes every position except 0, which may be playing.
func (q *Queue) Shuffle() {
	if len(q.items) < 3 {
		return
	}
	rest := q.items[1:]
	q.shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

// Clear empties the queue and turns looping off.
func (q *Queue) Clear() []*Item {
	removed := q.items
	q.items = nil
	q.looping = false
	return removed
}

func (q *Queue) Loop() {
	q.looping = true
}

func (q *Queue) EndLoop() {
	q.looping = false
}

func (q *Queue) Looping() bool {
	return q.looping
}

// Contains reports whether item is still queued.
func (q *Queue) Contains(item *Item) bool {
	for _, it := range q.items {
		if it == item {
			return true
		}
	}
	return false
}

// Items returns a copy of the queue order.
func (q *Queue) Items() []*Item {
	items := make([]*Item, len(q.items))
	copy(items, q.items)
	return items
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) HasMedia() bool {
	return len(q.items) > 0
}

// TotalLength is the summed duration of every queued item in milliseconds.
func (q *Queue) TotalLength() int64 {
	var total int64
	for _, item := range q.items {
		total += item.DurationMs()
	}
	return total
}
