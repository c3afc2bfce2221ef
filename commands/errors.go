package commands

import (
	"context"
	"errors"

	"Nightjar/queue"
	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

type interactionError struct {
	err     error
	message string
}

// Handle logs the error and whispers the message back to the invoking user.
// Deferred interactions get a followup instead of a response.
func (e *interactionError) Handle(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	log.WithContext(ctx).WithError(e.err).Error(e.message)
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: e.message,
		},
	})
	if err == nil {
		return
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Flags:   discordgo.MessageFlagsEphemeral,
		Content: e.message,
	}); err != nil {
		log.WithContext(ctx).WithError(err).Warn("Unable to reply with error")
	}
}

// sessionError turns a session error into something the user can act on.
func sessionError(err error) *interactionError {
	if err == nil {
		return nil
	}
	return &interactionError{err, userMessage(err)}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "I'm not in a voice channel, use /connect first"
	case errors.Is(err, session.ErrEmptyQueue):
		return "The queue is empty"
	case errors.Is(err, session.ErrNotPlaying):
		return "Nothing is playing right now"
	case errors.Is(err, session.ErrNotPaused):
		return "Playback isn't paused"
	case errors.Is(err, session.ErrAlreadyCurrent):
		return "That song is already playing"
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return "There is no song at that position"
	case errors.Is(err, session.ErrTooManySkips):
		return "Too many songs in a row couldn't be played, stopping"
	case queue.IsUnavailable(err):
		return "That video is unavailable"
	case queue.IsTransient(err):
		return "Couldn't reach YouTube, try again in a moment"
	default:
		return "Something went wrong"
	}
}
