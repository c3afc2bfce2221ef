package queue

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Stream is a resolved audio source ready to be handed to a voice player.
// Ended reports whether the stream has been read to completion or closed,
// after which it can no longer be played.
type Stream interface {
	io.ReadCloser
	Ended() bool
}

// Resolved is what a Resolver produces for a source reference.
type Resolved struct {
	Stream     Stream
	Title      string
	DurationMs int64
}

// Resolver turns a source reference (URL or video id) into a playable stream.
// Failures should be reported as *ResolveError so callers can tell an
// unavailable item from a transient failure.
type Resolver interface {
	Resolve(ctx context.Context, source string) (*Resolved, error)
}

// Playlist describes where a group of items came from. It does not own them.
type Playlist struct {
	ID     string
	Name   string
	Count  int
	Source string
}

type Metadata struct {
	Title       string // empty means unresolved or unavailable
	DurationMs  int64
	RequestedBy string
	Playlist    *Playlist
}

// Item is a single queued media reference.
type Item struct {
	ID     string
	Source string

	mu     sync.Mutex
	meta   Metadata
	stream Stream
}

// NewItem creates an item with a fresh id.
func NewItem(source string, meta Metadata) *Item {
	return &Item{
		ID:     uuid.NewString(),
		Source: source,
		meta:   meta,
	}
}

// RestoreItem rebuilds an item with a known id, e.g. when loading a persisted queue.
func RestoreItem(id, source string, meta Metadata) *Item {
	return &Item{ID: id, Source: source, meta: meta}
}

func (i *Item) Meta() Metadata {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.meta
}

func (i *Item) Title() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.meta.Title
}

func (i *Item) DurationMs() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.meta.DurationMs
}

// Playable reports whether the item has a title. Items without one are never played.
func (i *Item) Playable() bool {
	return i.Title() != ""
}

// HasStream reports whether a live stream is cached on the item.
func (i *Item) HasStream() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stream != nil && !i.stream.Ended()
}

// SetStream attaches an already open stream, used for out-of-queue clips.
func (i *Item) SetStream(s Stream) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stream = s
}

// Resolve returns the cached stream if it is still live, otherwise asks r for
// a fresh one and caches it. Metadata returned by the resolver fills in the
// item's title and duration. An unavailable item has its title cleared.
func (i *Item) Resolve(ctx context.Context, r Resolver) (Stream, error) {
	i.mu.Lock()
	if i.stream != nil && !i.stream.Ended() {
		s := i.stream
		i.mu.Unlock()
		return s, nil
	}
	i.stream = nil
	source := i.Source
	i.mu.Unlock()

	res, err := r.Resolve(ctx, source)
	if err != nil {
		if IsUnavailable(err) {
			i.mu.Lock()
			i.meta.Title = ""
			i.mu.Unlock()
		}
		return nil, err
	}
	if res == nil || res.Stream == nil {
		return nil, &ResolveError{Source: source, Kind: KindTransient, Err: errNoStream}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if res.Title != "" {
		i.meta.Title = res.Title
	}
	if res.DurationMs > 0 {
		i.meta.DurationMs = res.DurationMs
	}
	if i.meta.Title == "" {
		res.Stream.Close()
		return nil, &ResolveError{Source: source, Kind: KindUnavailable, Err: errNoTitle}
	}
	i.stream = res.Stream
	return res.Stream, nil
}

// Invalidate drops the cached stream so the next Resolve fetches a new one.
func (i *Item) Invalidate() {
	i.mu.Lock()
	s := i.stream
	i.stream = nil
	i.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
