package session

import (
	"context"
	"fmt"
	"sync"

	"Nightjar/queue"

	"github.com/Strum355/log"
)

type persistOp struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{}
}

// persister mirrors queue mutations into a Store in the order they happened.
// Methods never block, so they are safe to call with the session lock held.
// A nil persister drops everything.
type persister struct {
	guildID string
	store   Store

	mu      sync.Mutex
	pending []persistOp
	wake    chan struct{}
}

func newPersister(ctx context.Context, guildID string, store Store) *persister {
	if store == nil {
		return nil
	}
	p := &persister{
		guildID: guildID,
		store:   store,
		wake:    make(chan struct{}, 1),
	}
	go p.loop(ctx)
	return p
}

func (p *persister) push(op persistOp) {
	p.mu.Lock()
	p.pending = append(p.pending, op)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			if len(p.pending) == 0 {
				p.mu.Unlock()
				break
			}
			op := p.pending[0]
			p.pending = p.pending[1:]
			p.mu.Unlock()

			if op.run != nil {
				if err := op.run(ctx); err != nil {
					log.WithError(err).Error(fmt.Sprintf("Failed to persist %s for guild %s", op.name, p.guildID))
				}
			}
			if op.done != nil {
				close(op.done)
			}
		}
	}
}

func (p *persister) append(items []*queue.Item) {
	if p == nil || len(items) == 0 {
		return
	}
	items = append([]*queue.Item(nil), items...)
	p.push(persistOp{name: "append", run: func(ctx context.Context) error {
		return p.store.AppendItems(ctx, p.guildID, items)
	}})
}

// dequeue records items taken off the front. Looping queues move them to the tail.
func (p *persister) dequeue(removed []*queue.Item, looping bool) {
	if p == nil || len(removed) == 0 {
		return
	}
	p.deleteRange(0, len(removed))
	if looping {
		p.append(removed)
	}
}

func (p *persister) deleteRange(start, count int) {
	if p == nil || count <= 0 {
		return
	}
	p.push(persistOp{name: "delete", run: func(ctx context.Context) error {
		return p.store.DeleteRange(ctx, p.guildID, start, count)
	}})
}

func (p *persister) replace(items []*queue.Item) {
	if p == nil {
		return
	}
	items = append([]*queue.Item(nil), items...)
	p.push(persistOp{name: "replace", run: func(ctx context.Context) error {
		return p.store.ReplaceQueue(ctx, p.guildID, items)
	}})
}

func (p *persister) clear() {
	if p == nil {
		return
	}
	p.push(persistOp{name: "clear", run: func(ctx context.Context) error {
		return p.store.Clear(ctx, p.guildID)
	}})
}

// flush waits until everything pushed so far has been written.
func (p *persister) flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	done := make(chan struct{})
	p.push(persistOp{name: "flush", done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
