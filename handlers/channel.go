package handlers

import (
	"context"
	"errors"
	"net/http"

	"Nightjar/session"

	"github.com/bwmarrin/discordgo"
)

// TextChannel posts embeds to a Discord channel.
type TextChannel struct {
	s  *discordgo.Session
	id string
}

func NewTextChannel(s *discordgo.Session, channelID string) *TextChannel {
	return &TextChannel{s: s, id: channelID}
}

func (c *TextChannel) ID() string {
	return c.id
}

func (c *TextChannel) Send(ctx context.Context, embed *discordgo.MessageEmbed) (session.Message, error) {
	m, err := c.s.ChannelMessageSendEmbed(c.id, embed, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return WrapMessage(c.s, m), nil
}

// Message is a bot-authored Discord message.
type Message struct {
	s         *discordgo.Session
	id        string
	channelID string
}

func WrapMessage(s *discordgo.Session, m *discordgo.Message) *Message {
	return &Message{s: s, id: m.ID, channelID: m.ChannelID}
}

func (m *Message) ID() string {
	return m.id
}

func (m *Message) ChannelID() string {
	return m.channelID
}

func (m *Message) Edit(ctx context.Context, embed *discordgo.MessageEmbed) error {
	_, err := m.s.ChannelMessageEditEmbed(m.channelID, m.id, embed, discordgo.WithContext(ctx))
	return messageError(err)
}

func (m *Message) Delete(ctx context.Context) error {
	return messageError(m.s.ChannelMessageDelete(m.channelID, m.id, discordgo.WithContext(ctx)))
}

func (m *Message) Exists(ctx context.Context) (bool, error) {
	_, err := m.s.ChannelMessage(m.channelID, m.id, discordgo.WithContext(ctx))
	err = messageError(err)
	if errors.Is(err, session.ErrMessageGone) {
		return false, nil
	}
	return err == nil, err
}

// messageError maps Discord's unknown message response onto session.ErrMessageGone.
func messageError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return errors.Join(session.ErrMessageGone, err)
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return errors.Join(session.ErrMessageGone, err)
	}
	return err
}
