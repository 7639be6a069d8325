// Package bot wires the Discord session to the movie review logic: command
// dispatch in the permitted channel, the star-rating widget inside review
// threads, channel hygiene, and summary-message recalculation.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cineclub/pelibot/config"
	"github.com/cineclub/pelibot/omdb"
	"github.com/cineclub/pelibot/store"
	"github.com/cineclub/pelibot/telemetry"
)

// Bot holds the session and the injected collaborators.
type Bot struct {
	cfg     *config.Config
	store   *store.Store
	movies  *omdb.Client
	session *discordgo.Session

	mu      sync.Mutex
	waiters map[string]*replyWaiter
}

// New builds the session and registers all event handlers. The gateway is not
// opened until Run.
func New(cfg *config.Config, st *store.Store, movies *omdb.Client) (*Bot, error) {
	telemetry.Init()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:     cfg,
		store:   st,
		movies:  movies,
		session: session,
		waiters: make(map[string]*replyWaiter),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)
	session.AddHandler(b.onReactionAdd)
	return b, nil
}

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		slog.Error("gateway close error", slog.Any("err", err))
	}
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("bot ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
	telemetry.SetRatedMovies(b.store.MovieCount())
}

// channel resolves a channel, preferring gateway state over a REST call.
func (b *Bot) channel(id string) (*discordgo.Channel, error) {
	if ch, err := b.session.State.Channel(id); err == nil {
		return ch, nil
	}
	return b.session.Channel(id)
}

// isThread reports whether the channel id refers to a thread.
func (b *Bot) isThread(channelID string) bool {
	ch, err := b.channel(channelID)
	if err != nil {
		return false
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

// deleteMessage removes a message, ignoring already-gone / permission errors.
func (b *Bot) deleteMessage(channelID, messageID string) {
	if err := b.session.ChannelMessageDelete(channelID, messageID); err != nil {
		slog.Debug("message delete failed", slog.String("channel", channelID), slog.Any("err", err))
	}
}

// sendTemporary posts a notice and removes it again after ttl.
func (b *Bot) sendTemporary(channelID, content string, ttl time.Duration) {
	msg, err := b.session.ChannelMessageSend(channelID, content)
	if err != nil {
		slog.Warn("failed to send notice", slog.String("channel", channelID), slog.Any("err", err))
		return
	}
	time.AfterFunc(ttl, func() {
		b.deleteMessage(channelID, msg.ID)
	})
}

// threadJumpURL builds the permanent link to a thread.
func threadJumpURL(guildID string, threadID int64) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%d", guildID, threadID)
}

func parseSnowflake(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// displayName picks the server nickname when set, else the account name.
func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user != nil {
		if user.GlobalName != "" {
			return user.GlobalName
		}
		return user.Username
	}
	return "?"
}

func memberHasRole(member *discordgo.Member, roleID string) bool {
	if member == nil {
		return false
	}
	for _, r := range member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// isForbidden reports whether a REST error is a permission rejection.
func isForbidden(err error) bool {
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil {
		return restErr.Response.StatusCode == 403
	}
	return false
}
