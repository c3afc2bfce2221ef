package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Nightjar/session"
	"Nightjar/utils"

	"github.com/bwmarrin/discordgo"
)

const queuePageSize = 10

func (b *bot) showQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if err := respond(s, i, queueEmbed(sess.QueueSnapshot(), b.Theme)); err != nil {
		return &interactionError{err, "Couldn't show the queue"}
	}
	trackResponse(ctx, s, i, sess, session.SlotQueue)
	return nil
}

func (b *bot) removeSong(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	position, _ := intOption(i, "position")
	item, err := sess.RemoveAt(ctx, position-1)
	if err != nil {
		return sessionError(err)
	}
	respond(s, i, b.embed(fmt.Sprintf("Removed **%s** from the queue", item.Title())))
	return nil
}

func (b *bot) shuffleQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if err := sess.Shuffle(ctx); err != nil {
		return sessionError(err)
	}
	respond(s, i, b.embed("🔀 Shuffled the queue"))
	return nil
}

func (b *bot) loopQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	sess.Loop()
	respond(s, i, b.embed("🔁 Looping the queue"))
	return nil
}

func (b *bot) endLoop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	sess.EndLoop()
	respond(s, i, b.embed("Stopped looping the queue"))
	return nil
}

// nowPlaying moves the live now playing message to the invoking channel.
func (b *bot) nowPlaying(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if !sess.ShowNowPlaying(ctx) {
		return sessionError(session.ErrNotPlaying)
	}
	respond(s, i, b.embed("🎶 Now playing below"))
	return nil
}

func (b *bot) showStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if err := respond(s, i, statusEmbed(sess.Status(), b.Theme)); err != nil {
		return &interactionError{err, "Couldn't show the status"}
	}
	trackResponse(ctx, s, i, sess, session.SlotStatus)
	return nil
}

func queueEmbed(snap session.QueueSnapshot, theme int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Queue", Color: theme}
	if len(snap.Items) == 0 {
		embed.Description = "The queue is empty"
		return embed
	}

	var sb strings.Builder
	for idx, item := range snap.Items {
		if idx == queuePageSize {
			fmt.Fprintf(&sb, "…and %d more", len(snap.Items)-queuePageSize)
			break
		}
		title := item.Title()
		if title == "" {
			title = item.Source
		}
		d := time.Duration(item.DurationMs()) * time.Millisecond
		fmt.Fprintf(&sb, "%d. [%s](%s) [%s]", idx+1, title, item.Source, utils.FormatDuration(d))
		if idx == 0 {
			sb.WriteString(" ◀")
		}
		sb.WriteString("\n")
	}
	embed.Description = strings.TrimSuffix(sb.String(), "\n")

	footer := fmt.Sprintf("%d songs | %s total", len(snap.Items), utils.FormatDuration(time.Duration(snap.TotalLengthMs)*time.Millisecond))
	if snap.Looping {
		footer += " | looping"
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	return embed
}

func statusEmbed(st session.Status, theme int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Status", Color: theme}
	switch st.Bot {
	case session.StatusIdle:
		embed.Description = "Not in a voice channel"
	case session.StatusInVoice:
		embed.Description = fmt.Sprintf("In <#%s>, nothing playing", st.VoiceChannelID)
	case session.StatusPlayingMusic:
		verb := "Playing"
		if st.State == session.Paused {
			verb = "Paused"
		}
		title := ""
		if st.Current != nil {
			title = st.Current.Title()
		}
		embed.Description = fmt.Sprintf("%s **%s** in <#%s>", verb, title, st.VoiceChannelID)
	}

	loop := "off"
	if st.Looping {
		loop = "on"
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Queue", Value: fmt.Sprintf("%d songs", st.QueueLength), Inline: true},
		{Name: "Length", Value: utils.FormatDuration(time.Duration(st.TotalLengthMs) * time.Millisecond), Inline: true},
		{Name: "Loop", Value: loop, Inline: true},
	}
	return embed
}
