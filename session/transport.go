package session

import (
	"context"
	"errors"
	"time"

	"Nightjar/queue"

	"github.com/bwmarrin/discordgo"
)

// PlayerState is the state reported by a voice player.
type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerBuffering
	PlayerPlaying
	PlayerPaused
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerBuffering:
		return "buffering"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateListener receives player state changes. Players must invoke listeners
// from their own goroutine, never synchronously from Play, Pause, Unpause or Stop.
type StateListener func(prev, next PlayerState)

// AudioPlayer plays one stream at a time into the connections subscribed to it.
type AudioPlayer interface {
	Play(stream queue.Stream) error
	Pause() bool
	Unpause() bool
	Stop() bool
	State() PlayerState
	// PlaybackDuration is how much of the current stream has been played.
	PlaybackDuration() time.Duration
	OnStateChange(l StateListener)
}

// VoiceConnection is a joined voice channel.
type VoiceConnection interface {
	ChannelID() string
	Subscribe(p AudioPlayer)
	Disconnect(ctx context.Context) error
}

// VoiceTransport joins voice channels and creates players.
type VoiceTransport interface {
	Join(ctx context.Context, guildID, channelID string) (VoiceConnection, error)
	NewPlayer() AudioPlayer
}

// ErrMessageGone is returned by Message operations when the message was
// deleted on the platform.
var ErrMessageGone = errors.New("message no longer exists")

// Message is a bot-authored message that can be edited or deleted later.
type Message interface {
	ID() string
	ChannelID() string
	Edit(ctx context.Context, embed *discordgo.MessageEmbed) error
	Delete(ctx context.Context) error
	// Exists asks the platform whether the message is still there.
	Exists(ctx context.Context) (bool, error)
}

// TextChannel is where a session posts its messages.
type TextChannel interface {
	ID() string
	Send(ctx context.Context, embed *discordgo.MessageEmbed) (Message, error)
}

// Store persists guild queues. All positions are 0-based.
type Store interface {
	LoadQueue(ctx context.Context, guildID string) ([]*queue.Item, error)
	AppendItems(ctx context.Context, guildID string, items []*queue.Item) error
	// DeleteRange removes count items starting at start and renumbers the rest.
	DeleteRange(ctx context.Context, guildID string, start, count int) error
	ReplaceQueue(ctx context.Context, guildID string, items []*queue.Item) error
	Clear(ctx context.Context, guildID string) error
}

// Reporter surfaces errors to users and operators.
type Reporter interface {
	Report(ctx context.Context, caller string, channel TextChannel, err error)
}
