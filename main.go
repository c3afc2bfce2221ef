package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Nightjar/commands"
	"Nightjar/config"
	"Nightjar/db_client"
	"Nightjar/handlers"
	"Nightjar/playlist"
	"Nightjar/redis_client"
	"Nightjar/report"
	"Nightjar/session"
	"Nightjar/voice"
	"Nightjar/yt"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
)

var production *bool

func main() {
	// Sets Flag to Debug Mode
	production = flag.Bool("p", false, "enables production with json logging")
	flag.Parse()
	if *production {
		log.InitJSONLogger(&log.Config{Output: os.Stdout})
	} else {
		log.InitSimpleLogger(&log.Config{Output: os.Stdout})
	}

	// Sets up Configurations for Viper
	config.InitConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Creates Discord Bot Session
	s, err := discordgo.New("Bot " + viper.GetString("discord.token"))
	if err != nil {
		log.WithError(err).Error("Unable to create Discord session")
		return
	}

	rdb := redis_client.New(ctx, viper.GetString("redis.address"))
	defer rdb.Close()

	var (
		store    session.Store
		errStore report.ErrorRecorder
	)
	if db, err := db_client.Init(ctx, viper.GetString("postgres.dsn")); err != nil {
		log.WithError(err).Error("Database unavailable, queues will not persist")
	} else {
		store = db_client.NewQueueStore(db)
		errStore = db_client.NewErrorStore(db)
	}

	resolver := yt.NewResolver(nil, yt.NewRedisCache(rdb), config.Cache())

	var operator session.TextChannel
	if id := viper.GetString("operator.channel"); id != "" {
		operator = handlers.NewTextChannel(s, id)
	}
	reporter := report.New(config.Report(), errStore, operator)
	fatal := make(chan error, 1)
	reporter.OnExcessive = func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	registry := session.NewRegistry(ctx, config.Session(), session.Deps{
		Voice:    voice.NewTransport(s),
		Resolver: resolver,
		Store:    store,
		Reporter: reporter,
	})

	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info("Bot has registered handlers")
	})

	// Configuring Intents and Adding Handlers
	handlers.HandlerConfig(s, registry)

	// Register Slash Commands
	commands.RegisterSlashCommands(s, commands.Deps{
		Registry:  registry,
		Playlists: playlist.NewExpander(nil, resolver, viper.GetInt("playlist.max_concurrency")),
		Metadata:  resolver,
		Theme:     viper.GetInt("theme"),
	})

	// Connecting to Discord Server Gateway
	if err := s.Open(); err != nil {
		log.WithError(err).Error("Unable to connect to Discord")
		return
	}
	log.Info("Bot is initialising")

	resolver.StartCacheCleaning(ctx, viper.GetDuration("cache.clean_interval"))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	var exitErr error
	select {
	case <-sc:
	case exitErr = <-fatal:
		log.WithError(exitErr).Error("Too many errors, shutting down")
	}

	gracefulShutdown(s, registry, resolver, cancel)
	if exitErr != nil {
		os.Exit(1)
	}
}

// gracefulShutdown leaves every voice channel, saves queues and clears the audio cache.
func gracefulShutdown(s *discordgo.Session, registry *session.Registry, resolver *yt.Resolver, cancel context.CancelFunc) {
	log.Info("Starting graceful shutdown...")

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	registry.Shutdown(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("Sessions did not shut down in time")
	}
	cancel()

	if err := s.Close(); err != nil {
		log.WithError(err).Warn("Error closing Discord session")
	}

	resolver.PurgeCache()

	log.Info("Cleanly exiting")
}
