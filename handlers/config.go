package handlers

import (
	"context"

	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

// HandlerConfig sets the gateway intents and routes message and voice events to the registry.
func HandlerConfig(s *discordgo.Session, registry *session.Registry) {
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	ev := &events{registry: registry}
	s.AddHandler(ev.messageDelete)
	s.AddHandler(ev.messageDeleteBulk)
	s.AddHandler(ev.voiceStateUpdate)
}

type events struct {
	registry *session.Registry
}

func (e *events) messageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if e.registry.MessageDeleted(m.GuildID, m.ID) {
		log.Debug("Tracked message " + m.ID + " was deleted")
	}
}

func (e *events) messageDeleteBulk(s *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	for _, id := range m.Messages {
		e.registry.MessageDeleted(m.GuildID, id)
	}
}

func (e *events) voiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	sess, ok := e.registry.Peek(v.GuildID)
	if !ok || s.State.User == nil {
		return
	}
	channelID, connected := sess.Connected()
	if !connected {
		return
	}
	ctx := context.WithValue(context.Background(), log.Key, log.Fields{
		"guild_id": v.GuildID,
		"user_id":  v.UserID,
		"event":    "voice_state_update",
	})

	botID := s.State.User.ID
	if v.UserID == botID {
		if removedFrom(v, channelID) {
			log.WithContext(ctx).Info("Removed from voice channel " + channelID)
			sess.VoiceLost()
		}
		return
	}

	if v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID != channelID || v.ChannelID == channelID {
		return
	}
	guild, err := s.State.Guild(v.GuildID)
	if err != nil {
		log.WithContext(ctx).WithError(err).Warn("Guild missing from state")
		return
	}
	if listeners(guild.VoiceStates, channelID, botID, isBot(s, v.GuildID)) > 0 {
		return
	}
	log.WithContext(ctx).Info("Voice channel " + channelID + " is empty, disconnecting")
	if err := sess.Disconnect(ctx); err != nil {
		log.WithContext(ctx).WithError(err).Error("Failed to leave empty voice channel")
	}
}

// removedFrom reports whether the bot's own voice update takes it out of
// channelID. Leaving an older channel while moving is not a removal.
func removedFrom(v *discordgo.VoiceStateUpdate, channelID string) bool {
	if v.ChannelID != "" || v.BeforeUpdate == nil {
		return false
	}
	return v.BeforeUpdate.ChannelID == channelID
}

// listeners counts the non-bot users in channelID.
func listeners(states []*discordgo.VoiceState, channelID, botID string, bot func(*discordgo.VoiceState) bool) int {
	n := 0
	for _, vs := range states {
		if vs.ChannelID != channelID || vs.UserID == botID || bot(vs) {
			continue
		}
		n++
	}
	return n
}

func isBot(s *discordgo.Session, guildID string) func(*discordgo.VoiceState) bool {
	return func(vs *discordgo.VoiceState) bool {
		if vs.Member != nil && vs.Member.User != nil {
			return vs.Member.User.Bot
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil {
			return false
		}
		return member.User.Bot
	}
}
