package commands

import (
	"context"
	"errors"

	"Nightjar/handlers"
	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

var (
	errNoVoice      = errors.New("user not in a voice channel")
	errOtherChannel = errors.New("bot is in another voice channel")
	errNotSameVoice = errors.New("user not in the bot's voice channel")
)

// userVoiceChannel returns the voice channel the invoking user is in.
func userVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate) (string, *interactionError) {
	vs, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", &interactionError{errNoVoice, "Join a voice channel first 😉"}
	}
	return vs.ChannelID, nil
}

// checkUserVoiceChannel checks whether the user may control a session: they
// must be in a voice channel, and in the bot's one if the bot is connected.
func checkUserVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate, sess *session.Session) (string, *interactionError) {
	channelID, iErr := userVoiceChannel(s, i)
	if iErr != nil {
		return "", iErr
	}
	if current, ok := sess.Connected(); ok && current != channelID {
		return "", &interactionError{errOtherChannel, "I'm already in another voice channel 😅"}
	}
	return channelID, nil
}

// requireSameVoice is checkUserVoiceChannel for commands that need the bot connected.
func requireSameVoice(s *discordgo.Session, i *discordgo.InteractionCreate, sess *session.Session) *interactionError {
	current, ok := sess.Connected()
	if !ok {
		return sessionError(session.ErrNotConnected)
	}
	channelID, iErr := userVoiceChannel(s, i)
	if iErr != nil {
		return iErr
	}
	if channelID != current {
		return &interactionError{errNotSameVoice, "Join my voice channel first 😉"}
	}
	return nil
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followup(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
}

// trackResponse hands the interaction's response message to the session so
// that it replaces the previous message in slot.
func trackResponse(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, sess *session.Session, slot session.Slot) {
	m, err := s.InteractionResponse(i.Interaction, discordgo.WithContext(ctx))
	if err != nil {
		log.WithContext(ctx).WithError(err).Warn("Unable to fetch interaction response")
		return
	}
	sess.UpdateMessage(ctx, slot, handlers.WrapMessage(s, m))
}

func intOption(i *discordgo.InteractionCreate, name string) (int, bool) {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return int(opt.IntValue()), true
		}
	}
	return 0, false
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}
