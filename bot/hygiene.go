package bot

import (
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cineclub/pelibot/telemetry"
)

var commandPrefixes = []string{"!rate", "!buscar", "!lista"}

// onMessageCreate keeps the permitted channel and review threads on-protocol:
// user messages inside threads are always deleted, non-command messages in the
// permitted channel are deleted and answered with a transient hint, and command
// messages are dispatched.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	// A reply claimed by a pending !rate selection bypasses hygiene; the rate
	// flow deletes it itself.
	if b.deliverReply(m) {
		return
	}

	// Threads are read-only for users; reviews arrive through the widget.
	if b.isThread(m.ChannelID) {
		b.deleteMessage(m.ChannelID, m.ID)
		if telemetry.MessagesDeleted != nil {
			telemetry.MessagesDeleted.Inc()
		}
		return
	}

	content := strings.TrimSpace(m.Content)
	looksLikeCommand := false
	for _, p := range commandPrefixes {
		if strings.HasPrefix(content, p) {
			looksLikeCommand = true
			break
		}
	}

	if m.ChannelID == b.cfg.PermittedChannelID && !looksLikeCommand {
		b.deleteMessage(m.ChannelID, m.ID)
		if telemetry.MessagesDeleted != nil {
			telemetry.MessagesDeleted.Inc()
		}
		if strings.HasPrefix(content, "!") {
			b.sendTemporary(m.ChannelID, "❌ Ese comando no existe. Revisa la lista de comandos disponibles.", 10*time.Second)
		} else {
			b.sendTemporary(m.ChannelID, "❌ Para interactuar en este canal, por favor usa los comandos permitidos (`!rate`, `!buscar`, `!lista`).", 10*time.Second)
		}
		return
	}

	if looksLikeCommand {
		go b.dispatchCommand(m)
	}
}

// onReactionAdd strips any non-bot reaction in the permitted channel or in any
// thread, keeping summaries and reviews free of ad-hoc voting.
func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}
	if r.ChannelID != b.cfg.PermittedChannelID && !b.isThread(r.ChannelID) {
		return
	}
	if err := s.MessageReactionRemove(r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID); err != nil {
		if isForbidden(err) {
			slog.Warn("missing permission to remove reactions", slog.String("channel", r.ChannelID))
		} else {
			slog.Warn("failed to remove reaction", slog.String("channel", r.ChannelID), slog.Any("err", err))
		}
		return
	}
	if telemetry.ReactionsRemoved != nil {
		telemetry.ReactionsRemoved.Inc()
	}
}
