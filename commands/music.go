package commands

import (
	"context"
	"fmt"
	"time"

	"Nightjar/handlers"
	"Nightjar/playlist"
	"Nightjar/queue"
	"Nightjar/session"
	"Nightjar/utils"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
)

// guildSession returns the guild's session with the invoking channel as its last channel.
func (b *bot) guildSession(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *session.Session {
	sess := b.Registry.Get(ctx, i.GuildID)
	sess.SetLastChannel(handlers.NewTextChannel(s, i.ChannelID))
	return sess
}

func (b *bot) embed(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: description, Color: b.Theme}
}

// playMusic queues a song or playlist, joining the user's channel if needed.
func (b *bot) playMusic(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	channelID, iErr := checkUserVoiceChannel(s, i, sess)
	if iErr != nil {
		return iErr
	}
	if err := deferResponse(s, i); err != nil {
		return &interactionError{err, "Couldn't respond to command"}
	}

	url := stringOption(i, "url")
	items, summary, iErr := b.lookup(ctx, url, i.Member.User.ID)
	if iErr != nil {
		return iErr
	}

	if _, connected := sess.Connected(); !connected {
		if err := sess.Connect(ctx, channelID); err != nil {
			return &interactionError{err, "Couldn't join your voice channel"}
		}
	}

	length := sess.Enqueue(items...)
	if err := sess.Play(ctx); err != nil {
		return sessionError(err)
	}

	embed := b.embed(fmt.Sprintf("%s\nPosition in queue: %d", summary, length-len(items)+1))
	embed.Title = "Added to queue"
	if _, err := followup(s, i, embed); err != nil {
		log.WithContext(ctx).WithError(err).Warn("Unable to confirm queued song")
	}
	return nil
}

// lookup turns a link into queue items and a line describing them.
func (b *bot) lookup(ctx context.Context, url, requestedBy string) ([]*queue.Item, string, *interactionError) {
	if playlist.IsPlaylist(url) && b.Playlists != nil {
		pl, items, failed, err := b.Playlists.Expand(ctx, url, requestedBy)
		if err != nil {
			return nil, "", &interactionError{err, "❌ Couldn't load that playlist"}
		}
		summary := fmt.Sprintf("%d songs from **%s**", len(items), pl.Name)
		if failed > 0 {
			summary += fmt.Sprintf(" (%d unavailable)", failed)
		}
		return items, summary, nil
	}

	meta, err := b.Metadata.Metadata(ctx, url)
	if err != nil {
		if queue.IsUnavailable(err) {
			return nil, "", &interactionError{err, "❌ Invalid or unavailable YouTube link!"}
		}
		return nil, "", sessionError(err)
	}
	item := queue.NewItem(url, queue.Metadata{
		Title:       meta.Title,
		DurationMs:  meta.Duration.Milliseconds(),
		RequestedBy: requestedBy,
	})
	return []*queue.Item{item}, fmt.Sprintf("[%s](%s) [%s]", meta.Title, url, utils.FormatDuration(meta.Duration)), nil
}

func (b *bot) pauseMusic(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if iErr := requireSameVoice(s, i, sess); iErr != nil {
		return iErr
	}
	if err := sess.Pause(ctx); err != nil {
		return sessionError(err)
	}
	respond(s, i, b.embed("⏸️ Paused"))
	return nil
}

func (b *bot) resumeMusic(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if iErr := requireSameVoice(s, i, sess); iErr != nil {
		return iErr
	}
	if err := sess.Resume(ctx); err != nil {
		return sessionError(err)
	}
	respond(s, i, b.embed("▶️ Resumed"))
	return nil
}

func (b *bot) stopMusic(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if iErr := requireSameVoice(s, i, sess); iErr != nil {
		return iErr
	}
	if err := sess.Stop(ctx); err != nil {
		return sessionError(err)
	}
	respond(s, i, b.embed("⏹️ Stopped and cleared the queue"))
	return nil
}

func (b *bot) skipMusic(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if iErr := requireSameVoice(s, i, sess); iErr != nil {
		return iErr
	}
	to, _ := intOption(i, "to")
	if err := sess.Skip(ctx, to); err != nil {
		return sessionError(err)
	}
	msg := "⏭️ Skipped"
	if to > 1 {
		msg = fmt.Sprintf("⏭️ Skipped to song #%d", to)
	}
	respond(s, i, b.embed(msg))
	return nil
}

func (b *bot) connectVoice(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	channelID, iErr := userVoiceChannel(s, i)
	if iErr != nil {
		return iErr
	}
	if err := deferResponse(s, i); err != nil {
		return &interactionError{err, "Couldn't respond to command"}
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sess.Connect(connectCtx, channelID); err != nil {
		return &interactionError{err, "Couldn't join your voice channel"}
	}
	followup(s, i, b.embed(fmt.Sprintf("Joined <#%s>", channelID)))
	return nil
}

func (b *bot) disconnectVoice(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError {
	sess := b.guildSession(ctx, s, i)
	if iErr := requireSameVoice(s, i, sess); iErr != nil {
		return iErr
	}
	respond(s, i, b.embed("👋 Disconnected"))
	if err := sess.Disconnect(ctx); err != nil {
		log.WithContext(ctx).WithError(err).Error("Failed to disconnect")
	}
	return nil
}
