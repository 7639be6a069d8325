package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cineclub/pelibot/omdb"
	"github.com/cineclub/pelibot/telemetry"
)

const (
	embedColorGold = 0xF1C40F

	summaryFieldName  = "Calificación"
	summaryUnrated    = "Sin calificar aún"
	descUnrated       = "¡Sé el primero en calificar esta película! Haz clic en los botones de abajo para votar y dejar tu reseña."
	threadNamePrefix  = "Reseñas para "
	buttonsPromptText = "Por favor, usa los botones para calificar esta película:"
)

// ratingPattern extracts the numeric rating from a rendered review message.
// The digit before "/5" is the sole capture.
var ratingPattern = regexp.MustCompile(`\*\*Calificación:\*\* ⭐+\s\((\d)/5\)`)

// renderReview produces the fixed three-line review template that
// updateAverageRating later parses back.
func renderReview(name, body string, rating int) string {
	stars := strings.Repeat("⭐", rating)
	return fmt.Sprintf("**Reseña de %s:**\n%s\n**Calificación:** %s (%d/5)", name, body, stars, rating)
}

// ratingFromMessage parses a review message; ok is false for non-review
// content or out-of-range ratings.
func ratingFromMessage(content string) (int, bool) {
	m := ratingPattern.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	rating, err := strconv.Atoi(m[1])
	if err != nil || rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}

// summaryForRatings renders the summary embed's rating field and description.
func summaryForRatings(ratings []int) (value, description string) {
	if len(ratings) == 0 {
		return summaryUnrated, descUnrated
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	stars := strings.Repeat("⭐", int(math.Round(mean)))
	value = fmt.Sprintf("%s (%.2f/5)", stars, mean)
	description = fmt.Sprintf("Hasta ahora el rating de esta película es: %.2f/5\n¡Vota y deja tu reseña haciendo clic en los botones de abajo!", mean)
	return value, description
}

// threadNameFor caps long titles the way the summary embed expects.
func threadNameFor(title string) string {
	runes := []rune(title)
	if len(runes) > 20 {
		return threadNamePrefix + string(runes[:20]) + "..."
	}
	return threadNamePrefix + title
}

// ratingButtons is the five-star widget posted into each review thread.
func ratingButtons() []discordgo.MessageComponent {
	styles := []discordgo.ButtonStyle{
		discordgo.DangerButton,
		discordgo.DangerButton,
		discordgo.SecondaryButton,
		discordgo.SuccessButton,
		discordgo.SuccessButton,
	}
	buttons := make([]discordgo.MessageComponent, 0, 5)
	for i := 1; i <= 5; i++ {
		buttons = append(buttons, discordgo.Button{
			Label:    fmt.Sprintf("%d ⭐", i),
			Style:    styles[i-1],
			CustomID: fmt.Sprintf("review_%d", i),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

// createMovieReviewThread posts the summary embed, opens the review thread with
// the rating widget, records the movie, and DMs the role holders.
func (b *Bot) createMovieReviewThread(ctx context.Context, channelID, guildID string, movie *omdb.Movie) {
	log := telemetry.LoggerWithCorr(ctx)

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎬 Reseña para '%s'", movie.Title),
		Description: "¡Haz clic en el hilo de abajo para calificar y dejar tu reseña!",
		Color:       embedColorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: summaryFieldName, Value: summaryUnrated, Inline: false},
		},
	}
	if movie.Poster != "" && movie.Poster != "N/A" {
		embed.Image = &discordgo.MessageEmbedImage{URL: movie.Poster}
	}

	msg, err := b.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		log.Error("failed to post summary message", slog.Any("err", err))
		return
	}

	thread, err := b.session.MessageThreadStartComplex(channelID, msg.ID, &discordgo.ThreadStart{
		Name:                threadNameFor(movie.Title),
		AutoArchiveDuration: 60,
	})
	if err != nil {
		if isForbidden(err) {
			b.sendTemporary(channelID, "Error de permisos: No puedo crear hilos o configurarlos.", 30*time.Second)
		} else {
			b.sendTemporary(channelID, fmt.Sprintf("Ocurrió un error inesperado al configurar el hilo: %v.", err), 30*time.Second)
		}
		return
	}

	if _, err := b.session.ChannelMessageSendComplex(thread.ID, &discordgo.MessageSend{
		Content:    buttonsPromptText,
		Components: ratingButtons(),
	}); err != nil {
		log.Warn("failed to post rating buttons", slog.String("thread", thread.ID), slog.Any("err", err))
	}

	if movie.ImdbID != "" {
		key := strings.ToLower(strings.TrimSpace(movie.ImdbID))
		threadID := parseSnowflake(thread.ID)
		b.store.PutMovie(key, threadID)
		telemetry.SetRatedMovies(b.store.MovieCount())
		if telemetry.ThreadsCreated != nil {
			telemetry.ThreadsCreated.Inc()
		}
		log.Info("review thread created", slog.String("imdb_id", key), slog.String("thread", thread.ID))
		go b.sendMoviePromotion(guildID, threadJumpURL(guildID, threadID), movie.Title)
	}
}

// sendMoviePromotion DMs every holder of the movie role a prompt with the
// thread link. DM failures (closed DMs, bots) are skipped silently; a short
// pause between sends keeps the bot under the platform's rate limits.
func (b *Bot) sendMoviePromotion(guildID, threadURL, movieName string) {
	roleName := ""
	roles, err := b.session.GuildRoles(guildID)
	if err == nil {
		for _, role := range roles {
			if role.ID == b.cfg.MovieRoleID {
				roleName = role.Name
				break
			}
		}
	}
	if roleName == "" {
		slog.Error("movie role not found, skipping promotion", slog.String("role_id", b.cfg.MovieRoleID))
		return
	}

	text := fmt.Sprintf("Hola, hemos visto que tienes el rol de **%s**.\n\n"+
		"¿Ya viste y calificaste **'%s'**?\n\n"+
		"¡Es tu momento de dejar tu reseña! Puedes hacerlo directamente aquí: %s",
		roleName, movieName, threadURL)

	after := ""
	for {
		members, err := b.session.GuildMembers(guildID, after, 1000)
		if err != nil {
			slog.Warn("failed to page guild members", slog.Any("err", err))
			return
		}
		for _, member := range members {
			if member.User == nil || member.User.Bot || !memberHasRole(member, b.cfg.MovieRoleID) {
				continue
			}
			dm, err := b.session.UserChannelCreate(member.User.ID)
			if err != nil {
				continue
			}
			if _, err := b.session.ChannelMessageSend(dm.ID, text); err != nil {
				continue
			}
			time.Sleep(time.Second)
		}
		if len(members) < 1000 {
			return
		}
		after = members[len(members)-1].User.ID
	}
}

// onInteractionCreate routes rating button presses and review form submissions.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in interaction handler", slog.Any("panic", r))
		}
	}()

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		if rating, ok := parseCustomID(customID, "review_"); ok {
			b.handleReviewButton(i, rating)
		}
	case discordgo.InteractionModalSubmit:
		customID := i.ModalSubmitData().CustomID
		if rating, ok := parseCustomID(customID, "review_modal_"); ok {
			b.handleReviewSubmit(i, rating)
		}
	}
}

func parseCustomID(customID, prefix string) (int, bool) {
	if !strings.HasPrefix(customID, prefix) {
		return 0, false
	}
	rating, err := strconv.Atoi(strings.TrimPrefix(customID, prefix))
	if err != nil || rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}

// handleReviewButton guards against duplicate reviews and opens the text form
// pre-bound to the chosen star count.
func (b *Bot) handleReviewButton(i *discordgo.InteractionCreate, rating int) {
	threadID := parseSnowflake(i.ChannelID)
	userID := parseSnowflake(interactionUserID(i))

	if b.store.HasRated(threadID, userID) {
		if telemetry.DuplicatesRejected != nil {
			telemetry.DuplicatesRejected.Inc()
		}
		b.respondEphemeral(i, "❌ Ya has dejado una reseña en este hilo. Solo se permite una por usuario.")
		return
	}

	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: fmt.Sprintf("review_modal_%d", rating),
			Title:    fmt.Sprintf("Tu Reseña (%d⭐)", rating),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "review_text",
						Label:       "Escribe tu reseña",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "¡Qué gran película!",
						Required:    true,
						MaxLength:   500,
					},
				}},
			},
		},
	})
	if err != nil {
		slog.Warn("failed to open review form", slog.Any("err", err))
	}
}

// handleReviewSubmit records the reviewer (persisting before the review becomes
// visible), posts the templated review message, and refreshes the summary.
func (b *Bot) handleReviewSubmit(i *discordgo.InteractionCreate, rating int) {
	threadID := parseSnowflake(i.ChannelID)
	userID := parseSnowflake(interactionUserID(i))

	// AddRater is check-and-set: a second form submission racing past the
	// button guard is rejected here.
	if !b.store.AddRater(threadID, userID) {
		if telemetry.DuplicatesRejected != nil {
			telemetry.DuplicatesRejected.Inc()
		}
		b.respondEphemeral(i, "❌ Ya has dejado una reseña en este hilo. Solo se permite una por usuario.")
		return
	}

	if err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		slog.Warn("failed to ack review submission", slog.Any("err", err))
	}

	body := modalTextValue(i, "review_text")
	content := renderReview(displayName(i.Member, interactionUser(i)), body, rating)
	if _, err := b.session.ChannelMessageSend(i.ChannelID, content); err != nil {
		slog.Warn("failed to post review message", slog.String("thread", i.ChannelID), slog.Any("err", err))
	}
	if telemetry.ReviewsSubmitted != nil {
		telemetry.ReviewsSubmitted.Inc()
	}

	b.updateAverageRating(i.ChannelID)

	// Clear the deferred "thinking" state.
	if err := b.session.InteractionResponseDelete(i.Interaction); err != nil {
		slog.Debug("failed to delete interaction response", slog.Any("err", err))
	}
}

// updateAverageRating rescans the thread, recomputes the mean rating, and
// rewrites the summary message. The summary is found by scanning the parent
// channel's recent history; if it has scrolled out of the lookback window the
// update is skipped silently.
func (b *Bot) updateAverageRating(threadChannelID string) {
	ch, err := b.channel(threadChannelID)
	if err != nil || !b.isThread(threadChannelID) {
		return
	}

	parentMsgs, err := b.session.ChannelMessages(ch.ParentID, 50, "", "", "")
	if err != nil {
		slog.Warn("failed to scan parent channel", slog.String("channel", ch.ParentID), slog.Any("err", err))
		return
	}
	var origin *discordgo.Message
	for _, msg := range parentMsgs {
		if msg.Thread != nil && msg.Thread.ID == threadChannelID {
			origin = msg
			break
		}
	}
	if origin == nil || len(origin.Embeds) == 0 {
		return
	}

	threadMsgs, err := b.session.ChannelMessages(threadChannelID, 100, "", "", "")
	if err != nil {
		slog.Warn("failed to scan thread history", slog.String("thread", threadChannelID), slog.Any("err", err))
		return
	}
	botID := b.session.State.User.ID
	var ratings []int
	for _, msg := range threadMsgs {
		if msg.Author == nil || msg.Author.ID != botID {
			continue
		}
		if rating, ok := ratingFromMessage(msg.Content); ok {
			ratings = append(ratings, rating)
		}
	}

	value, description := summaryForRatings(ratings)
	embed := origin.Embeds[0]
	if len(embed.Fields) == 0 {
		embed.Fields = []*discordgo.MessageEmbedField{{Name: summaryFieldName, Inline: false}}
	}
	embed.Fields[0].Name = summaryFieldName
	embed.Fields[0].Value = value
	embed.Description = description

	if _, err := b.session.ChannelMessageEditEmbed(ch.ParentID, origin.ID, embed); err != nil {
		slog.Warn("failed to edit summary message", slog.String("message", origin.ID), slog.Any("err", err))
	}
}

// respondEphemeral sends a transient private notice for an interaction and
// clears it shortly after.
func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Debug("interaction already responded", slog.Any("err", err))
		return
	}
	interaction := i.Interaction
	time.AfterFunc(5*time.Second, func() {
		if err := b.session.InteractionResponseDelete(interaction); err != nil {
			slog.Debug("failed to delete ephemeral notice", slog.Any("err", err))
		}
	})
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if u := interactionUser(i); u != nil {
		return u.ID
	}
	return ""
}

// modalTextValue pulls a text input's value out of a modal submission.
func modalTextValue(i *discordgo.InteractionCreate, customID string) string {
	for _, row := range i.ModalSubmitData().Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
