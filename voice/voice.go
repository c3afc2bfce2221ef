package voice

import (
	"context"
	"fmt"
	"sync"

	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

// Transport joins voice channels through a discordgo session.
type Transport struct {
	s *discordgo.Session
}

func NewTransport(s *discordgo.Session) *Transport {
	return &Transport{s: s}
}

func (t *Transport) NewPlayer() session.AudioPlayer {
	return NewPlayer()
}

// Join connects to channelID. A half-joined connection is torn down before the error is returned.
func (t *Transport) Join(ctx context.Context, guildID, channelID string) (session.VoiceConnection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := t.s.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- result{vc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.vc != nil {
				if derr := r.vc.Disconnect(); derr != nil {
					log.WithError(derr).Warn("Failed to clean up half-joined voice connection")
				}
			}
			return nil, fmt.Errorf("joining voice channel %s: %w", channelID, r.err)
		}
		return &Connection{vc: r.vc}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.vc != nil {
				r.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// Connection is a joined voice channel.
type Connection struct {
	vc *discordgo.VoiceConnection

	mu     sync.Mutex
	player *Player
}

func (c *Connection) ChannelID() string {
	return c.vc.ChannelID
}

func (c *Connection) Subscribe(p session.AudioPlayer) {
	player, ok := p.(*Player)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil && c.player != player {
		c.player.unsubscribe(c.vc)
	}
	c.player = player
	player.subscribe(c.vc)
}

func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.player != nil {
		c.player.unsubscribe(c.vc)
		c.player = nil
	}
	c.mu.Unlock()

	c.vc.Speaking(false)

	done := make(chan error, 1)
	go func() { done <- c.vc.Disconnect() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
