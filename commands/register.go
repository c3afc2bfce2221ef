package commands

import (
	"context"
	"errors"

	"Nightjar/playlist"
	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
)

// Deps are what the command handlers drive.
type Deps struct {
	Registry  *session.Registry
	Playlists *playlist.Expander
	Metadata  playlist.MetadataSource
	Theme     int
}

type bot struct {
	Deps
}

// RegisterSlashCommands adds all slash commands to the session.
func RegisterSlashCommands(s *discordgo.Session, deps Deps) {
	b := &bot{deps}
	position := func(name, description string, required bool) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        name,
				Description: description,
				Required:    required,
				MinValue:    &minPosition,
			},
		}
	}

	commands.Add(
		&discordgo.ApplicationCommand{
			Name:        "play",
			Description: "Play a song or playlist from a Youtube URL.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "Youtube link for the song or playlist",
					Required:    true,
				},
			},
		},
		b.playMusic,
	)
	commands.Add(&discordgo.ApplicationCommand{Name: "pause", Description: "Pause the current song."}, b.pauseMusic)
	commands.Add(&discordgo.ApplicationCommand{Name: "resume", Description: "Resume the paused song."}, b.resumeMusic)
	commands.Add(&discordgo.ApplicationCommand{Name: "stop", Description: "Stop playing and clear the queue."}, b.stopMusic)
	commands.Add(
		&discordgo.ApplicationCommand{
			Name:        "skip",
			Description: "Skip the current song, or skip to a song in the queue.",
			Options:     position("to", "Queue position to skip to", false),
		},
		b.skipMusic,
	)
	commands.Add(&discordgo.ApplicationCommand{Name: "connect", Description: "Join your voice channel."}, b.connectVoice)
	commands.Add(&discordgo.ApplicationCommand{Name: "disconnect", Description: "Disconnect the bot from voice chat."}, b.disconnectVoice)
	commands.Add(&discordgo.ApplicationCommand{Name: "leave", Description: "Disconnect the bot from voice chat."}, b.disconnectVoice)
	commands.Add(&discordgo.ApplicationCommand{Name: "queue", Description: "Show the current song queue."}, b.showQueue)
	commands.Add(
		&discordgo.ApplicationCommand{
			Name:        "remove",
			Description: "Remove a song from the queue.",
			Options:     position("position", "Queue position of the song", true),
		},
		b.removeSong,
	)
	commands.Add(&discordgo.ApplicationCommand{Name: "shuffle", Description: "Shuffle the queue, keeping the current song."}, b.shuffleQueue)
	commands.Add(&discordgo.ApplicationCommand{Name: "loop", Description: "Loop the queue."}, b.loopQueue)
	commands.Add(&discordgo.ApplicationCommand{Name: "endloop", Description: "Stop looping the queue."}, b.endLoop)
	commands.Add(&discordgo.ApplicationCommand{Name: "np", Description: "Show the song that’s now playing."}, b.nowPlaying)
	commands.Add(&discordgo.ApplicationCommand{Name: "status", Description: "Show what the bot is doing."}, b.showStatus)

	if err := commands.Register(s); err != nil {
		log.WithError(err).Error("Failed to register slash commands")
	}
}

var minPosition = 1.0

type CommandHandler func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *interactionError

type Commands struct {
	commands []*discordgo.ApplicationCommand
	handlers map[string]CommandHandler
}

var (
	commands = &Commands{}
)

// Adds command to the slash commands.
func (c *Commands) Add(com *discordgo.ApplicationCommand, handler CommandHandler) {
	c.commands = append(c.commands, com)
	if c.handlers == nil {
		c.handlers = map[string]CommandHandler{}
	}
	c.handlers[com.Name] = handler
}

// Register all slash commands
func (c *Commands) Register(s *discordgo.Session) error {
	// Routes application command interactions to their handler
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type == discordgo.InteractionApplicationCommand {
			callCommandHandler(s, i)
		}
	})

	if _, err := s.ApplicationCommandBulkOverwrite(viper.GetString("discord.app.id"), "", c.commands); err != nil {
		log.WithError(err).Error("Failed to create commands")
		return err
	}
	return nil
}

// Cannot be an interaction through DMs
func checkDirectMessage(i *discordgo.InteractionCreate) (*discordgo.User, *interactionError) {
	if i.GuildID == "" || i.Member == nil {
		return nil, &interactionError{
			errors.New("command invoked outside of valid guild"),
			"This command is only available in a valid server",
		}
	}
	return i.Member.User, nil
}

// Text or slash command interactions
func callCommandHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	commandAuthor, iError := checkDirectMessage(i)
	if iError != nil {
		iError.Handle(ctx, s, i)
		return
	}

	commandName := i.ApplicationCommandData().Name
	handler, ok := commands.handlers[commandName]
	if !ok {
		return
	}

	ctx = context.WithValue(ctx, log.Key, log.Fields{
		"author_id":        commandAuthor.ID,
		"channel_id":       i.ChannelID,
		"guild_id":         i.GuildID,
		"user":             commandAuthor.Username,
		"interaction_type": "application",
		"command":          commandName,
	})
	log.WithContext(ctx).Info("Invoking application command")
	if iError = handler(ctx, s, i); iError != nil {
		iError.Handle(ctx, s, i)
	}
}
