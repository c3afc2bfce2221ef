package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Nightjar/session"

	"github.com/Strum355/log"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// ErrorRecorder persists reported errors.
type ErrorRecorder interface {
	RecordError(ctx context.Context, guildID, caller, message string) error
}

type Config struct {
	Theme int
	// Cooldown is the minimum spacing between error embeds.
	Cooldown time.Duration
	// MaxErrors reports within Window count as an excessive error rate.
	MaxErrors int
	Window    time.Duration
}

// Reporter logs errors, records them and posts them to the guild's channel
// and the operator channel.
type Reporter struct {
	cfg      Config
	store    ErrorRecorder
	operator session.TextChannel
	limiter  *rate.Limiter
	now      func() time.Time

	// OnExcessive is called once when errors arrive faster than the configured rate.
	OnExcessive func(err error)

	mu        sync.Mutex
	lastSent  time.Time
	excessive sync.Once
}

// New creates a Reporter. store and operator may be nil.
func New(cfg Config, store ErrorRecorder, operator session.TextChannel) *Reporter {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Reporter{
		cfg:      cfg,
		store:    store,
		operator: operator,
		limiter:  rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.MaxErrors)), cfg.MaxErrors),
		now:      time.Now,
	}
}

func (r *Reporter) Report(ctx context.Context, caller string, channel session.TextChannel, err error) {
	if err == nil {
		return
	}
	log.WithContext(ctx).WithError(err).Error("Error in " + caller)

	if r.store != nil {
		if rerr := r.store.RecordError(ctx, guildID(ctx), caller, err.Error()); rerr != nil {
			log.WithContext(ctx).WithError(rerr).Warn("Unable to record error")
		}
	}

	if r.allowSend() {
		embed := r.embed(caller, err)
		if channel != nil {
			if _, serr := channel.Send(ctx, embed); serr != nil {
				log.WithContext(ctx).WithError(serr).Warn("Unable to send error to guild channel")
			}
		}
		if r.operator != nil && (channel == nil || channel.ID() != r.operator.ID()) {
			if _, serr := r.operator.Send(ctx, embed); serr != nil {
				log.WithContext(ctx).WithError(serr).Warn("Unable to send error to operator channel")
			}
		}
	}

	if !r.limiter.Allow() {
		r.excessive.Do(func() {
			log.WithContext(ctx).WithError(err).Error(fmt.Sprintf("More than %d errors within %s, giving up", r.cfg.MaxErrors, r.cfg.Window))
			if r.OnExcessive != nil {
				r.OnExcessive(err)
			}
		})
	}
}

func (r *Reporter) allowSend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !r.lastSent.IsZero() && now.Sub(r.lastSent) < r.cfg.Cooldown {
		return false
	}
	r.lastSent = now
	return true
}

func (r *Reporter) embed(caller string, err error) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error!",
		Description: err.Error(),
		Color:       r.cfg.Theme,
		Footer:      &discordgo.MessageEmbedFooter{Text: caller},
		Timestamp:   r.now().UTC().Format(time.RFC3339),
	}
}

func guildID(ctx context.Context) string {
	fields, ok := ctx.Value(log.Key).(log.Fields)
	if !ok {
		return ""
	}
	id, _ := fields["guild_id"].(string)
	return id
}
