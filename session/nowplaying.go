package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Nightjar/utils"

	"github.com/bwmarrin/discordgo"
)

// NowPlayingDisplay keeps the now playing message in step with playback.
// It is recreated every time playback (re)starts.
type NowPlayingDisplay struct {
	s        *Session
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// Start renders immediately and then refreshes every interval until stopped
// or until playback is no longer active.
func (np *NowPlayingDisplay) Start(ctx context.Context) {
	if np == nil {
		return
	}
	np.tick(ctx)
}

// Stop cancels the refresh. Calling it more than once is fine.
func (np *NowPlayingDisplay) Stop() {
	if np == nil {
		return
	}
	np.mu.Lock()
	defer np.mu.Unlock()
	np.stopped = true
	if np.timer != nil {
		np.timer.Stop()
		np.timer = nil
	}
}

func (np *NowPlayingDisplay) Stopped() bool {
	np.mu.Lock()
	defer np.mu.Unlock()
	return np.stopped
}

func (np *NowPlayingDisplay) tick(ctx context.Context) {
	if np.Stopped() {
		return
	}
	np.s.postMu.Lock()
	embed, active := np.s.nowPlayingEmbed(np)
	if active {
		np.s.sendNowPlaying(ctx, embed)
	}
	np.s.postMu.Unlock()

	if !active {
		np.s.mu.Lock()
		if np.s.nowPlaying == np {
			np.s.nowPlaying = nil
		}
		np.s.mu.Unlock()
		np.Stop()
		return
	}

	np.mu.Lock()
	defer np.mu.Unlock()
	if np.stopped {
		return
	}
	np.timer = np.clock.AfterFunc(np.interval, func() {
		np.tick(ctx)
	})
}

// ShowNowPlaying replaces the now playing message with a fresh one in the
// last used channel. It reports false when nothing is playing.
func (s *Session) ShowNowPlaying(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != Playing || s.systemSound {
		s.mu.Unlock()
		return false
	}
	np := s.startNowPlayingLocked()
	s.mu.Unlock()

	s.messages.Update(ctx, SlotNowPlaying, nil)
	np.Start(s.ctx)
	return true
}

func (s *Session) startNowPlayingLocked() *NowPlayingDisplay {
	s.stopNowPlayingLocked()
	s.nowPlaying = &NowPlayingDisplay{
		s:        s,
		clock:    s.deps.Clock,
		interval: s.cfg.NowPlayingInterval,
	}
	return s.nowPlaying
}

func (s *Session) stopNowPlayingLocked() {
	if s.nowPlaying == nil {
		return
	}
	s.nowPlaying.Stop()
	s.nowPlaying = nil
}

// nowPlayingEmbed renders the display for np. active is false once np no
// longer belongs to a playing session.
func (s *Session) nowPlayingEmbed(np *NowPlayingDisplay) (*discordgo.MessageEmbed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nowPlaying != np || s.state != Playing || s.conn == nil {
		return nil, false
	}
	item, ok := s.queue.Current()
	if !ok {
		return nil, false
	}

	meta := item.Meta()
	total := time.Duration(meta.DurationMs) * time.Millisecond
	elapsed := s.player.PlaybackDuration()
	if total > 0 && elapsed > total {
		elapsed = total
	}
	largest := utils.LargestUnit(total)

	track := fmt.Sprintf("[%s](%s)", meta.Title, item.Source)
	if meta.RequestedBy != "" {
		track += fmt.Sprintf(" [<@%s>]", meta.RequestedBy)
	}

	return &discordgo.MessageEmbed{
		Title: "Now Playing",
		Description: fmt.Sprintf("Playing in <#%s>\n\n%s\n\n%s [%s/%s]",
			s.conn.ChannelID(),
			track,
			ProgressBar(elapsed, total),
			utils.FormatTimestamp(elapsed, largest),
			utils.FormatTimestamp(total, largest),
		),
		Color: s.cfg.Theme,
	}, true
}
