package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"Nightjar/queue"

	"github.com/bwmarrin/discordgo"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock runs timers only when advanced. Callbacks run without the clock
// lock held so they can arm new timers.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// Active counts timers that have neither fired nor been stopped.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type testStream struct {
	name   string
	mu     sync.Mutex
	closed bool
}

func (s *testStream) Read(p []byte) (int, error) {
	return 0, errors.New("test streams are not readable")
}

func (s *testStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *testStream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakePlayer records what it was asked to play. Events are only delivered
// when a test calls emit.
type fakePlayer struct {
	mu       sync.Mutex
	state    PlayerState
	listener StateListener
	played   []string
	elapsed  time.Duration
	playErr  error
	stops    int
}

func (p *fakePlayer) Play(stream queue.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, stream.(*testStream).name)
	p.state = PlayerBuffering
	return nil
}

func (p *fakePlayer) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlayerPlaying {
		return false
	}
	p.state = PlayerPaused
	return true
}

func (p *fakePlayer) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PlayerPaused {
		return false
	}
	p.state = PlayerPlaying
	return true
}

func (p *fakePlayer) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PlayerIdle {
		return false
	}
	p.state = PlayerIdle
	p.stops++
	return true
}

func (p *fakePlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) PlaybackDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

func (p *fakePlayer) OnStateChange(l StateListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *fakePlayer) emit(next PlayerState) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	l := p.listener
	p.mu.Unlock()
	l(prev, next)
}

// finish simulates the current stream ending on its own.
func (p *fakePlayer) finish() {
	p.emit(PlayerIdle)
}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type fakeConn struct {
	channelID   string
	mu          sync.Mutex
	disconnects int
}

func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) Subscribe(p AudioPlayer) {}

func (c *fakeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

type fakeVoice struct {
	player  *fakePlayer
	mu      sync.Mutex
	conns   []*fakeConn
	joinErr error
}

func (v *fakeVoice) Join(ctx context.Context, guildID, channelID string) (VoiceConnection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.joinErr != nil {
		return nil, v.joinErr
	}
	c := &fakeConn{channelID: channelID}
	v.conns = append(v.conns, c)
	return c, nil
}

func (v *fakeVoice) NewPlayer() AudioPlayer {
	return v.player
}

func (v *fakeVoice) lastConn() *fakeConn {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.conns) == 0 {
		return nil
	}
	return v.conns[len(v.conns)-1]
}

type fakeMessage struct {
	id      string
	channel string

	mu        sync.Mutex
	edits     []*discordgo.MessageEmbed
	deletes   int
	attempts  int
	lookups   int
	lookupErr error
	gone      bool

	// hold and held pause the next Edit until hold is closed.
	hold chan struct{}
	held chan struct{}
}

func (m *fakeMessage) ID() string        { return m.id }
func (m *fakeMessage) ChannelID() string { return m.channel }

func (m *fakeMessage) Edit(ctx context.Context, embed *discordgo.MessageEmbed) error {
	m.mu.Lock()
	hold, held := m.hold, m.held
	m.hold, m.held = nil, nil
	m.mu.Unlock()
	if hold != nil {
		close(held)
		<-hold
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gone {
		return ErrMessageGone
	}
	m.edits = append(m.edits, embed)
	return nil
}

func (m *fakeMessage) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.gone {
		return ErrMessageGone
	}
	m.deletes++
	m.gone = true
	return nil
}

func (m *fakeMessage) Exists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	return !m.gone, nil
}

// holdNextEdit blocks the next Edit until release is called. held is closed
// once that Edit has started.
func (m *fakeMessage) holdNextEdit() (held <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = make(chan struct{})
	m.held = make(chan struct{})
	hold := m.hold
	return m.held, func() { close(hold) }
}

func (m *fakeMessage) DeleteAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *fakeMessage) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func (m *fakeMessage) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

func (m *fakeMessage) Edits() []*discordgo.MessageEmbed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.MessageEmbed(nil), m.edits...)
}

func (m *fakeMessage) vanish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone = true
}

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	sent   []*fakeMessage
	embeds []*discordgo.MessageEmbed
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ctx context.Context, embed *discordgo.MessageEmbed) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := &fakeMessage{id: fmt.Sprintf("m%d", len(c.sent)+1), channel: c.id}
	c.sent = append(c.sent, m)
	c.embeds = append(c.embeds, embed)
	return m, nil
}

func (c *fakeChannel) Sent() []*fakeMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeMessage(nil), c.sent...)
}

func (c *fakeChannel) Embeds() []*discordgo.MessageEmbed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*discordgo.MessageEmbed(nil), c.embeds...)
}

// fakeResolver resolves every source to a stream named after it. Sources in
// errs fail with that error; sources in untitled resolve without a title.
// Sources with a gate block until it is released.
type fakeResolver struct {
	mu       sync.Mutex
	errs     map[string]error
	untitled map[string]bool
	gates    map[string]*resolveGate
	calls    []string
	streams  []*testStream
}

type resolveGate struct {
	entered chan struct{}
	release chan struct{}
}

// gate makes the next resolution of source wait. entered is closed once it
// is waiting; closing release lets it finish.
func (r *fakeResolver) gate(source string) *resolveGate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gates == nil {
		r.gates = map[string]*resolveGate{}
	}
	g := &resolveGate{entered: make(chan struct{}), release: make(chan struct{})}
	r.gates[source] = g
	return g
}

func (r *fakeResolver) Resolve(ctx context.Context, source string) (*queue.Resolved, error) {
	r.mu.Lock()
	r.calls = append(r.calls, source)
	g := r.gates[source]
	delete(r.gates, source)
	r.mu.Unlock()

	if g != nil {
		close(g.entered)
		<-g.release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.errs[source]; ok {
		return nil, err
	}
	title := "title " + source
	if r.untitled[source] {
		title = ""
	}
	stream := &testStream{name: source}
	r.streams = append(r.streams, stream)
	return &queue.Resolved{Stream: stream, Title: title, DurationMs: 90_000}, nil
}

// Streams returns every stream handed out, in order.
func (r *fakeResolver) Streams() []*testStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*testStream(nil), r.streams...)
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type reported struct {
	caller  string
	channel TextChannel
	err     error
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []reported
}

func (r *fakeReporter) Report(ctx context.Context, caller string, channel TextChannel, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reported{caller, channel, err})
}

func (r *fakeReporter) Reports() []reported {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reported(nil), r.reports...)
}

type storedItem struct {
	id     string
	source string
	title  string
}

type fakeStore struct {
	mu     sync.Mutex
	queues map[string][]storedItem
	loads  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{queues: map[string][]storedItem{}}
}

func (s *fakeStore) LoadQueue(ctx context.Context, guildID string) ([]*queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	var items []*queue.Item
	for _, it := range s.queues[guildID] {
		items = append(items, queue.RestoreItem(it.id, it.source, queue.Metadata{Title: it.title}))
	}
	return items, nil
}

func (s *fakeStore) AppendItems(ctx context.Context, guildID string, items []*queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.queues[guildID] = append(s.queues[guildID], storedItem{it.ID, it.Source, it.Title()})
	}
	return nil
}

func (s *fakeStore) DeleteRange(ctx context.Context, guildID string, start, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[guildID]
	if start >= len(q) {
		return nil
	}
	end := min(start+count, len(q))
	s.queues[guildID] = append(q[:start:start], q[end:]...)
	return nil
}

func (s *fakeStore) ReplaceQueue(ctx context.Context, guildID string, items []*queue.Item) error {
	s.mu.Lock()
	s.queues[guildID] = nil
	s.mu.Unlock()
	return s.AppendItems(ctx, guildID, items)
}

func (s *fakeStore) Clear(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, guildID)
	return nil
}

func (s *fakeStore) Sources(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.queues[guildID] {
		out = append(out, it.source)
	}
	return out
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	s        *Session
	clock    *fakeClock
	player   *fakePlayer
	voice    *fakeVoice
	channel  *fakeChannel
	resolver *fakeResolver
	reporter *fakeReporter
	store    *fakeStore
	sounds   []string
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := DefaultConfig()
	for _, f := range configure {
		f(&cfg)
	}

	h := &harness{
		t:        t,
		ctx:      ctx,
		clock:    newFakeClock(),
		player:   &fakePlayer{},
		channel:  &fakeChannel{id: "text-1"},
		resolver: &fakeResolver{errs: map[string]error{}, untitled: map[string]bool{}},
		reporter: &fakeReporter{},
		store:    newFakeStore(),
	}
	h.voice = &fakeVoice{player: h.player}
	h.s = New(ctx, "guild-1", cfg, Deps{
		Voice:    h.voice,
		Resolver: h.resolver,
		Store:    h.store,
		Reporter: h.reporter,
		Clock:    h.clock,
		OpenSound: func(path string) (queue.Stream, error) {
			h.sounds = append(h.sounds, path)
			return &testStream{name: path}, nil
		},
	})
	h.s.SetLastChannel(h.channel)
	return h
}

func (h *harness) connect() *fakeConn {
	h.t.Helper()
	if err := h.s.Connect(h.ctx, "voice-1"); err != nil {
		h.t.Fatalf("connect: %v", err)
	}
	return h.voice.lastConn()
}

func newItems(sources ...string) []*queue.Item {
	items := make([]*queue.Item, 0, len(sources))
	for _, src := range sources {
		items = append(items, queue.NewItem(src, queue.Metadata{Title: "title " + src, DurationMs: 90_000, RequestedBy: "user-1"}))
	}
	return items
}

func (h *harness) enqueue(sources ...string) []*queue.Item {
	items := newItems(sources...)
	h.s.Enqueue(items...)
	return items
}

// start plays the current item and lets the player report Playing.
func (h *harness) start() {
	h.t.Helper()
	if err := h.s.Play(h.ctx); err != nil {
		h.t.Fatalf("play: %v", err)
	}
	h.player.emit(PlayerPlaying)
}

func (h *harness) queueSources() []string {
	var out []string
	for _, item := range h.s.QueueSnapshot().Items {
		out = append(out, item.Source)
	}
	return out
}
