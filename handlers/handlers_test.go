package handlers

import (
	"errors"
	"net/http"
	"testing"

	"Nightjar/session"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestMessageError(t *testing.T) {
	unknown := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"},
	}
	forbidden := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess, Message: "Missing Access"},
	}

	assert.ErrorIs(t, messageError(unknown), session.ErrMessageGone)
	assert.NotErrorIs(t, messageError(forbidden), session.ErrMessageGone)
	assert.NoError(t, messageError(nil))

	plain := errors.New("timeout")
	assert.Same(t, plain, messageError(plain))
}

func TestListeners(t *testing.T) {
	bots := map[string]bool{"music-bot": true}
	bot := func(vs *discordgo.VoiceState) bool { return bots[vs.UserID] }
	states := []*discordgo.VoiceState{
		{UserID: "me", ChannelID: "vc"},
		{UserID: "music-bot", ChannelID: "vc"},
		{UserID: "alice", ChannelID: "other"},
	}

	assert.Zero(t, listeners(states, "vc", "me", bot))

	states = append(states, &discordgo.VoiceState{UserID: "bob", ChannelID: "vc"})
	assert.Equal(t, 1, listeners(states, "vc", "me", bot))
}

func TestRemovedFrom(t *testing.T) {
	update := func(before *discordgo.VoiceState, after string) *discordgo.VoiceStateUpdate {
		return &discordgo.VoiceStateUpdate{
			VoiceState:   &discordgo.VoiceState{UserID: "me", ChannelID: after},
			BeforeUpdate: before,
		}
	}

	tests := []struct {
		name     string
		update   *discordgo.VoiceStateUpdate
		expected bool
	}{
		{"kicked from current", update(&discordgo.VoiceState{ChannelID: "vc-new"}, ""), true},
		{"late leave of old channel", update(&discordgo.VoiceState{ChannelID: "vc-old"}, ""), false},
		{"still connected", update(&discordgo.VoiceState{ChannelID: "vc-old"}, "vc-new"), false},
		{"no previous state", update(nil, ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, removedFrom(tt.update, "vc-new"))
		})
	}
}
