package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Nightjar/queue"
	"Nightjar/utils"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

// HandleStateChange feeds a player state change into the session.
func (s *Session) HandleStateChange(prev, next PlayerState) {
	log.WithContext(s.logCtx).Debug(fmt.Sprintf("Player state %s -> %s", prev, next))
	switch next {
	case PlayerIdle:
		s.onIdle()
	case PlayerPlaying:
		s.onPlaying()
	case PlayerPaused:
		s.mu.Lock()
		if s.state == Playing {
			s.state = Paused
			s.stopNowPlayingLocked()
		}
		s.mu.Unlock()
	}
}

func (s *Session) onPlaying() {
	s.mu.Lock()
	if s.systemSound || s.state == Idle {
		s.mu.Unlock()
		return
	}
	s.state = Playing
	s.cancelDisconnectLocked()
	if s.nowPlaying != nil {
		s.mu.Unlock()
		return
	}
	np := s.startNowPlayingLocked()
	s.mu.Unlock()

	np.Start(s.ctx)
}

func (s *Session) onIdle() {
	s.mu.Lock()
	if s.player.State() != PlayerIdle {
		// a newer stream already replaced the one that ended
		s.mu.Unlock()
		return
	}

	s.stopNowPlayingLocked()
	action := s.idleAction
	s.idleAction = idleAdvance
	wasSound := s.systemSound
	s.systemSound = false
	wasActive := s.state != Idle
	s.state = Idle

	if action == idleAdvance && wasSound {
		action = idleReplay
	}

	switch action {
	case idleLeave:
		conn := s.conn
		s.conn = nil
		s.cancelDisconnectLocked()
		s.mu.Unlock()
		s.closeConn(s.ctx, conn)
		return
	case idleHalt:
		s.armDisconnectLocked()
		s.mu.Unlock()
		return
	case idleAdvance:
		removed := s.queue.Dequeue(1)
		s.persist.dequeue(removed, s.queue.Looping())
		s.dropLocked(removed)
	}

	if s.queue.HasMedia() && s.conn != nil {
		if s.starting {
			s.mu.Unlock()
			return
		}
		s.starting = true
		s.mu.Unlock()
		s.playCurrent(s.ctx)
		return
	}

	s.armDisconnectLocked()
	s.mu.Unlock()

	if wasActive && !wasSound {
		s.postNowPlaying(s.ctx, &discordgo.MessageEmbed{
			Description: "Reached end of queue, stopped playing",
			Color:       s.cfg.Theme,
		})
	}
}

// playCurrent resolves and plays the head of the queue, skipping items that
// cannot be played. The caller must have set s.starting.
func (s *Session) playCurrent(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if s.conn == nil {
			s.state = Idle
			s.mu.Unlock()
			return ErrNotConnected
		}
		item, ok := s.queue.Current()
		if !ok {
			s.state = Idle
			s.armDisconnectLocked()
			s.mu.Unlock()
			return nil
		}
		if s.skips >= s.cfg.MaxSkips {
			s.skips = 0
			s.state = Idle
			s.armDisconnectLocked()
			s.mu.Unlock()
			err := fmt.Errorf("%w: gave up after %d items", ErrTooManySkips, s.cfg.MaxSkips)
			s.report(ctx, "playCurrent", err)
			return err
		}
		s.mu.Unlock()

		stream, err := item.Resolve(ctx, s.deps.Resolver)

		s.mu.Lock()
		if cur, ok := s.queue.Current(); !ok || cur != item || s.conn == nil {
			// the queue moved on while resolving
			if err == nil && !s.queue.Contains(item) {
				item.Invalidate()
			}
			s.mu.Unlock()
			continue
		}

		if err != nil {
			s.skips++
			if queue.IsUnavailable(err) {
				s.queue.RemoveAt(0)
				s.persist.deleteRange(0, 1)
			} else {
				s.persist.dequeue(s.queue.Dequeue(1), s.queue.Looping())
			}
			s.mu.Unlock()

			log.WithContext(s.logCtx).WithError(err).Warn("Skipping unplayable item " + item.Source)
			s.report(ctx, "playCurrent", fmt.Errorf("skipped %s: %w", item.Source, err))
			continue
		}

		if err := s.player.Play(stream); err != nil {
			s.state = Idle
			conn := s.conn
			s.conn = nil
			s.cancelDisconnectLocked()
			s.mu.Unlock()

			log.WithContext(s.logCtx).WithError(err).Error("Voice player rejected stream")
			s.report(ctx, "playCurrent", err)
			s.closeConn(ctx, conn)
			return err
		}

		s.skips = 0
		s.systemSound = false
		s.idleAction = idleAdvance
		s.state = Playing
		s.cancelDisconnectLocked()
		s.mu.Unlock()

		log.WithContext(s.logCtx).Info("Now playing " + item.Title())
		return nil
	}
}

// playSystemSoundLocked plays a chime outside the queue. action decides what
// happens once it finishes. It reports false if no chime was played.
func (s *Session) playSystemSoundLocked(path string, action idleAction) bool {
	if path == "" || s.conn == nil {
		return false
	}
	stream, err := s.deps.OpenSound(path)
	if err != nil {
		log.WithContext(s.logCtx).WithError(err).Debug("System sound unavailable")
		return false
	}
	s.systemSound = true
	s.idleAction = action
	if err := s.player.Play(stream); err != nil {
		stream.Close()
		s.systemSound = false
		s.idleAction = idleAdvance
		log.WithContext(s.logCtx).WithError(err).Warn("Failed to play system sound")
		return false
	}
	return true
}

// armDisconnectLocked replaces any pending auto-disconnect with a fresh one.
func (s *Session) armDisconnectLocked() {
	s.cancelDisconnectLocked()
	if s.conn == nil || s.cfg.DisconnectAfter <= 0 {
		return
	}
	gen := s.disconnectGen
	s.disconnectTimer = s.deps.Clock.AfterFunc(s.cfg.DisconnectAfter, func() {
		s.autoDisconnect(gen)
	})
}

func (s *Session) cancelDisconnectLocked() {
	s.disconnectGen++
	if s.disconnectTimer != nil {
		s.disconnectTimer.Stop()
		s.disconnectTimer = nil
	}
}

func (s *Session) autoDisconnect(gen uint64) {
	s.mu.Lock()
	if gen != s.disconnectGen || s.conn == nil || s.queue.HasMedia() || s.state != Idle {
		s.mu.Unlock()
		return
	}
	s.disconnectTimer = nil
	conn := s.beginDisconnectLocked()
	ch := s.lastChannel
	s.mu.Unlock()

	log.WithContext(s.logCtx).Info("Auto-disconnecting after inactivity")
	s.messages.Clear(s.ctx)
	s.closeConn(s.ctx, conn)

	if ch == nil {
		return
	}
	notice := &discordgo.MessageEmbed{
		Description: fmt.Sprintf("Automatically disconnected due to %s of inactivity", humanDuration(s.cfg.DisconnectAfter)),
		Color:       s.cfg.Theme,
	}
	if _, err := ch.Send(s.ctx, notice); err != nil {
		log.WithContext(s.logCtx).WithError(err).Warn("Failed to post auto-disconnect notice")
	}
}

// postNowPlaying edits the now-playing message in place, or sends a new one
// when there is none. A message deleted on the platform is forgotten.
func (s *Session) postNowPlaying(ctx context.Context, embed *discordgo.MessageEmbed) {
	s.postMu.Lock()
	defer s.postMu.Unlock()
	s.sendNowPlaying(ctx, embed)
}

// sendNowPlaying is postNowPlaying for callers already holding postMu.
func (s *Session) sendNowPlaying(ctx context.Context, embed *discordgo.MessageEmbed) {
	if msg := s.messages.Get(SlotNowPlaying); msg != nil {
		err := msg.Edit(ctx, embed)
		if err == nil {
			return
		}
		if errors.Is(err, ErrMessageGone) {
			s.messages.Forget(msg.ID())
			return
		}
		log.WithContext(s.logCtx).WithError(err).Warn("Failed to edit now playing message")
		return
	}

	ch := s.LastChannel()
	if ch == nil {
		return
	}
	msg, err := ch.Send(ctx, embed)
	if err != nil {
		log.WithContext(s.logCtx).WithError(err).Warn("Failed to send now playing message")
		return
	}
	s.messages.Update(ctx, SlotNowPlaying, msg)
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return utils.FormatDuration(d)
}
