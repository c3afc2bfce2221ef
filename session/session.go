package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Nightjar/queue"

	"github.com/Strum355/log"
)

var (
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrEmptyQueue     = errors.New("queue is empty")
	ErrNotPlaying     = errors.New("nothing is playing")
	ErrNotPaused      = errors.New("playback is not paused")
	ErrAlreadyCurrent = errors.New("item is already the current one")
	ErrTooManySkips   = errors.New("too many unplayable items in a row")
)

// State is the session's playback state.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// idleAction is what the session does when the player next reports Idle.
type idleAction int

const (
	idleAdvance idleAction = iota // dequeue one item and play the next
	idleReplay                    // play the current item without dequeuing
	idleHalt                      // stay idle
	idleLeave                     // leave the voice channel
)

type Config struct {
	DisconnectAfter    time.Duration
	NowPlayingInterval time.Duration
	MaxSkips           int
	ConnectSound       string
	DisconnectSound    string
	Theme              int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		DisconnectAfter:    5 * time.Minute,
		NowPlayingInterval: 5 * time.Second,
		MaxSkips:           5,
	}
}

type Deps struct {
	Voice    VoiceTransport
	Resolver queue.Resolver
	Store    Store    // optional
	Reporter Reporter // optional
	Clock    Clock
	// OpenSound opens a chime file. Defaults to queue.OpenFile.
	OpenSound func(path string) (queue.Stream, error)
}

// Session is the playback state of one guild.
type Session struct {
	GuildID string

	cfg    Config
	deps   Deps
	ctx    context.Context
	logCtx context.Context

	mu              sync.Mutex
	queue           *queue.Queue
	state           State
	conn            VoiceConnection
	player          AudioPlayer
	lastChannel     TextChannel
	systemSound     bool
	idleAction      idleAction
	starting        bool
	skips           int
	disconnectTimer Timer
	disconnectGen   uint64
	nowPlaying      *NowPlayingDisplay

	// postMu orders now playing posts. Never taken while holding mu.
	postMu sync.Mutex

	messages    MessageTracker
	persist     *persister
	restoreOnce sync.Once
}

func New(ctx context.Context, guildID string, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.OpenSound == nil {
		deps.OpenSound = queue.OpenFile
	}
	if cfg.MaxSkips <= 0 {
		cfg.MaxSkips = DefaultConfig().MaxSkips
	}
	if cfg.NowPlayingInterval < time.Second {
		cfg.NowPlayingInterval = time.Second
	}

	s := &Session{
		GuildID: guildID,
		cfg:     cfg,
		deps:    deps,
		ctx:     ctx,
		logCtx:  context.WithValue(ctx, log.Key, log.Fields{"guild_id": guildID}),
		queue:   queue.New(),
		state:   Idle,
		persist: newPersister(ctx, guildID, deps.Store),
	}
	s.player = deps.Voice.NewPlayer()
	s.player.OnStateChange(s.HandleStateChange)
	return s
}

// restore loads the persisted queue once.
func (s *Session) restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		if s.deps.Store == nil {
			return
		}
		items, err := s.deps.Store.LoadQueue(ctx, s.GuildID)
		if err != nil {
			log.WithContext(s.logCtx).WithError(err).Error("Failed to load persisted queue")
			return
		}
		if len(items) == 0 {
			return
		}
		s.mu.Lock()
		restored := append(items, s.queue.Items()...)
		s.queue.SetOrder(restored)
		s.mu.Unlock()
		log.WithContext(s.logCtx).Info(fmt.Sprintf("Restored %d queued items", len(items)))
	})
}

func (s *Session) SetLastChannel(ch TextChannel) {
	if ch == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChannel = ch
}

func (s *Session) LastChannel() TextChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChannel
}

// Enqueue appends items and returns the new queue length.
func (s *Session) Enqueue(items ...*queue.Item) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Enqueue(items...)
	s.persist.append(items)
	return s.queue.Len()
}

// Play starts the current item when idle, or resumes when paused.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if !s.queue.HasMedia() {
		s.mu.Unlock()
		return ErrEmptyQueue
	}
	switch s.state {
	case Paused:
		s.mu.Unlock()
		return s.Resume(ctx)
	case Playing:
		s.mu.Unlock()
		return nil
	}
	if s.systemSound && s.idleAction != idleLeave {
		// the chime finishing starts the current item
		s.idleAction = idleReplay
		s.mu.Unlock()
		return nil
	}
	if s.starting {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.skips = 0
	s.mu.Unlock()

	return s.playCurrent(ctx)
}

func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing || !s.player.Pause() {
		return ErrNotPlaying
	}
	s.state = Paused
	s.stopNowPlayingLocked()
	return nil
}

func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Paused || !s.player.Unpause() {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.state = Playing
	np := s.startNowPlayingLocked()
	s.mu.Unlock()

	np.Start(s.ctx)
	return nil
}

// Stop clears the whole queue and halts playback.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(s.queue.Clear())
	s.persist.clear()
	s.state = Idle
	s.stopNowPlayingLocked()

	if s.player.State() != PlayerIdle {
		if s.idleAction != idleLeave {
			s.idleAction = idleHalt
		}
		s.player.Stop()
		return nil
	}
	s.armDisconnectLocked()
	return nil
}

// Skip jumps to the 1-based queue position to. Zero skips just the current item.
func (s *Session) Skip(ctx context.Context, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.HasMedia() {
		return ErrEmptyQueue
	}
	if to == 1 {
		return ErrAlreadyCurrent
	}
	if to < 0 || to > s.queue.Len() {
		return fmt.Errorf("%w: cannot skip to #%d of %d", queue.ErrIndexOutOfRange, to, s.queue.Len())
	}

	advance := 1
	if to > 1 {
		advance = to - 1
	}

	removed := s.queue.Dequeue(advance)
	s.persist.dequeue(removed, s.queue.Looping())

	// The queue already points at the target, so the player reporting Idle
	// starts it without advancing again. Repeated skips accumulate.
	if (s.state == Playing || s.state == Paused) && !s.systemSound {
		s.idleAction = idleReplay
		s.player.Stop()
	}
	s.dropLocked(removed)
	return nil
}

// dropLocked releases the streams of items that left the queue for good.
// Looping queues keep their items at the tail.
func (s *Session) dropLocked(removed []*queue.Item) {
	if s.queue.Looping() {
		return
	}
	for _, item := range removed {
		item.Invalidate()
	}
}

// RemoveAt deletes the item at the 0-based index. Removing the playing item
// stops it and starts the new current item.
func (s *Session) RemoveAt(ctx context.Context, index int) (*queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.queue.RemoveAt(index)
	if err != nil {
		return nil, err
	}
	s.persist.deleteRange(index, 1)

	if index == 0 && (s.state == Playing || s.state == Paused) && !s.systemSound {
		s.idleAction = idleReplay
		s.player.Stop()
	} else {
		item.Invalidate()
	}
	return item, nil
}

func (s *Session) Shuffle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.queue.HasMedia() {
		return ErrEmptyQueue
	}
	s.queue.Shuffle()
	s.persist.replace(s.queue.Items())
	return nil
}

func (s *Session) Loop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Loop()
}

func (s *Session) EndLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.EndLoop()
}

// CurrentItem returns the item at the head of the queue.
func (s *Session) CurrentItem() (*queue.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Current()
}

type QueueSnapshot struct {
	Items         []*queue.Item
	Looping       bool
	TotalLengthMs int64
}

func (s *Session) QueueSnapshot() QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueSnapshot{
		Items:         s.queue.Items(),
		Looping:       s.queue.Looping(),
		TotalLengthMs: s.queue.TotalLength(),
	}
}

// BotStatus summarises what the bot is doing in a guild.
type BotStatus int

const (
	StatusIdle BotStatus = iota
	StatusInVoice
	StatusPlayingMusic
)

type Status struct {
	Bot            BotStatus
	State          State
	VoiceChannelID string
	Current        *queue.Item
	QueueLength    int
	Looping        bool
	TotalLengthMs  int64
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Bot:           StatusIdle,
		State:         s.state,
		QueueLength:   s.queue.Len(),
		Looping:       s.queue.Looping(),
		TotalLengthMs: s.queue.TotalLength(),
	}
	if s.conn != nil {
		st.Bot = StatusInVoice
		st.VoiceChannelID = s.conn.ChannelID()
	}
	if s.state != Idle {
		st.Bot = StatusPlayingMusic
		st.Current, _ = s.queue.Current()
	}
	return st
}

// Connect joins channelID, moving from another channel if needed, and plays the connect chime.
func (s *Session) Connect(ctx context.Context, channelID string) error {
	s.mu.Lock()
	if s.conn != nil && s.conn.ChannelID() == channelID {
		s.mu.Unlock()
		return nil
	}
	old := s.conn
	s.conn = nil
	s.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(ctx); err != nil {
			log.WithContext(s.logCtx).WithError(err).Warn("Failed to leave previous voice channel")
		}
	}

	conn, err := s.deps.Voice.Join(ctx, s.GuildID, channelID)
	if err != nil {
		log.WithContext(s.logCtx).WithError(err).Error("Failed to join voice channel")
		s.report(ctx, "Connect", err)
		return err
	}

	s.mu.Lock()
	if s.conn != nil {
		// lost a race with another connect
		s.mu.Unlock()
		if err := conn.Disconnect(ctx); err != nil {
			log.WithContext(s.logCtx).WithError(err).Warn("Failed to drop duplicate voice connection")
		}
		return nil
	}
	s.conn = conn
	conn.Subscribe(s.player)
	if !s.playSystemSoundLocked(s.cfg.ConnectSound, idleReplay) && s.state == Idle {
		s.armDisconnectLocked()
	}
	s.mu.Unlock()

	log.WithContext(s.logCtx).Info("Joined voice channel " + channelID)
	return nil
}

// Disconnect clears the queue and leaves voice, after the disconnect chime if one is configured.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.beginDisconnectLocked()
	s.mu.Unlock()

	s.messages.Clear(ctx)
	return s.closeConn(ctx, conn)
}

// beginDisconnectLocked resets the session and returns the connection to close
// now, or nil when there is none or the chime will close it.
func (s *Session) beginDisconnectLocked() VoiceConnection {
	s.dropLocked(s.queue.Clear())
	s.persist.clear()
	s.cancelDisconnectLocked()
	s.stopNowPlayingLocked()
	s.state = Idle
	s.skips = 0

	if s.conn == nil {
		return nil
	}
	leaving := s.systemSound && s.idleAction == idleLeave
	if !leaving && s.playSystemSoundLocked(s.cfg.DisconnectSound, idleLeave) {
		// backstop in case the chime never reports Idle
		s.armDisconnectLocked()
		return nil
	}
	conn := s.conn
	s.conn = nil
	if s.player.State() != PlayerIdle {
		s.idleAction = idleHalt
		s.player.Stop()
	}
	return conn
}

func (s *Session) closeConn(ctx context.Context, conn VoiceConnection) error {
	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(ctx); err != nil {
		log.WithContext(s.logCtx).WithError(err).Error("Failed to disconnect from voice")
		return err
	}
	log.WithContext(s.logCtx).Info("Left voice channel")
	return nil
}

// shutdown leaves voice but keeps the persisted queue for the next start.
func (s *Session) shutdown(ctx context.Context) {
	s.mu.Lock()
	s.cancelDisconnectLocked()
	s.stopNowPlayingLocked()
	conn := s.conn
	s.conn = nil
	s.state = Idle
	s.systemSound = false
	if s.player.State() != PlayerIdle {
		s.idleAction = idleHalt
		s.player.Stop()
	}
	s.mu.Unlock()

	s.messages.Clear(ctx)
	s.closeConn(ctx, conn)
	if err := s.persist.flush(ctx); err != nil {
		log.WithContext(s.logCtx).WithError(err).Warn("Queue persistence did not finish")
	}
}

// VoiceLost is called when the bot was removed from voice by someone else.
func (s *Session) VoiceLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.dropLocked(s.queue.Clear())
	s.persist.clear()
	s.cancelDisconnectLocked()
	s.stopNowPlayingLocked()
	s.state = Idle
	s.systemSound = false
	s.idleAction = idleHalt
	s.player.Stop()
}

// Connected reports the voice channel the session is in.
func (s *Session) Connected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "", false
	}
	return s.conn.ChannelID(), true
}

// UpdateMessage replaces the message tracked in slot.
func (s *Session) UpdateMessage(ctx context.Context, slot Slot, msg Message) {
	s.messages.Update(ctx, slot, msg)
}

func (s *Session) Message(slot Slot) Message {
	return s.messages.Get(slot)
}

// MessageDeleted handles a platform deletion notice for messageID.
func (s *Session) MessageDeleted(messageID string) bool {
	return s.messages.Forget(messageID)
}

func (s *Session) report(ctx context.Context, caller string, err error) {
	if s.deps.Reporter == nil {
		log.WithContext(s.logCtx).WithError(err).Error(caller)
		return
	}
	if _, ok := ctx.Value(log.Key).(log.Fields); !ok {
		ctx = s.logCtx
	}
	s.deps.Reporter.Report(ctx, caller, s.LastChannel(), err)
}
