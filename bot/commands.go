package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cineclub/pelibot/omdb"
	"github.com/cineclub/pelibot/telemetry"
)

var (
	imdbIDPattern = regexp.MustCompile(`^tt\d{7,8}$`)
	yearPattern   = regexp.MustCompile(`\d{4}`)
)

// isIMDbID reports whether the input is a direct imdb id (case-insensitive).
func isIMDbID(s string) bool {
	return imdbIDPattern.MatchString(strings.ToLower(s))
}

// maxRatableShown caps the numbered selection list.
const maxRatableShown = 20

// discordMessageLimit is the platform's message length limit.
const discordMessageLimit = 2000

// errTimeout marks a reply wait that expired.
var errTimeout = errors.New("reply wait timed out")

// replyWaiter is a pending wait for one user's follow-up message in a channel.
type replyWaiter struct {
	match func(content string) bool
	ch    chan *discordgo.Message
}

// awaitReply blocks until userID posts a matching message in channelID, the
// timeout elapses, or ctx is cancelled. Only one waiter per channel+user.
func (b *Bot) awaitReply(ctx context.Context, channelID, userID string, timeout time.Duration, match func(content string) bool) (*discordgo.Message, error) {
	key := channelID + ":" + userID
	w := &replyWaiter{match: match, ch: make(chan *discordgo.Message, 1)}

	b.mu.Lock()
	b.waiters[key] = w
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, key)
		b.mu.Unlock()
	}()

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-time.After(timeout):
		return nil, errTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliverReply hands a message to a pending waiter. Returns true when consumed.
func (b *Bot) deliverReply(m *discordgo.MessageCreate) bool {
	key := m.ChannelID + ":" + m.Author.ID
	b.mu.Lock()
	w, ok := b.waiters[key]
	if ok && w.match(m.Content) {
		delete(b.waiters, key)
	} else {
		ok = false
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	w.ch <- m.Message
	return true
}

// dispatchCommand parses and runs one command invocation. It never lets a
// single bad event crash the process.
func (b *Bot) dispatchCommand(m *discordgo.MessageCreate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in command handler", slog.Any("panic", r), slog.String("content", m.Content))
		}
	}()

	parts := strings.SplitN(strings.TrimSpace(m.Content), " ", 2)
	name := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	corr := uuid.New().String()
	ctx := telemetry.WithCorrelation(context.Background(), corr)
	log := telemetry.LoggerWithCorr(ctx)

	ctx, span := telemetry.StartSpan(ctx, "bot", "command "+name,
		attribute.String("command", name),
		attribute.String("channel_id", m.ChannelID),
	)
	defer span.End()

	// The invoking message is removed in every outcome.
	b.deleteMessage(m.ChannelID, m.ID)

	if name != "!rate" && name != "!buscar" && name != "!lista" {
		b.sendTemporary(m.ChannelID, "❌ Ese comando no existe. Revisa la lista de comandos disponibles.", 10*time.Second)
		return
	}

	if m.ChannelID != b.cfg.PermittedChannelID {
		notice := "❌ Lo siento, este comando solo se puede usar en un canal designado."
		if ch, err := b.channel(b.cfg.PermittedChannelID); err == nil {
			notice = fmt.Sprintf("❌ Lo siento, este comando solo se puede usar en el canal **#%s**.", ch.Name)
		}
		b.sendTemporary(m.ChannelID, notice, 10*time.Second)
		return
	}

	if name == "!rate" && !memberHasRole(m.Member, b.cfg.MovieRoleID) {
		b.sendTemporary(m.ChannelID, "❌ Lo siento, no tienes el rol necesario para usar este comando.", 10*time.Second)
		return
	}

	if (name == "!rate" || name == "!buscar") && arg == "" {
		b.sendTemporary(m.ChannelID, fmt.Sprintf("❌ Faltan argumentos. Uso: `%s \"<título de la película>\"`", name), 10*time.Second)
		return
	}

	telemetry.IncCommand(strings.TrimPrefix(name, "!"))
	log.Info("command", slog.String("name", name), slog.String("user", m.Author.ID))

	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		switch name {
		case "!rate":
			b.handleRate(ctx, m, arg)
		case "!buscar":
			b.handleBuscar(ctx, m, arg)
		case "!lista":
			b.handleLista(ctx, m)
		}
	})
	telemetry.SetSpanSuccess(span)
}

// handleRate creates a review thread for a direct imdb id, or runs the
// search-then-pick flow for a free-text title.
func (b *Bot) handleRate(ctx context.Context, m *discordgo.MessageCreate, arg string) {
	if isIMDbID(arg) {
		b.rateByID(ctx, m.ChannelID, m.GuildID, strings.ToLower(arg))
		return
	}

	results, err := b.movies.SearchAll(ctx, arg)
	if err != nil {
		if errors.Is(err, omdb.ErrNotFound) {
			b.sendTemporary(m.ChannelID, fmt.Sprintf("❌ Lo siento, no pude encontrar ninguna película con el título **'%s'**.", arg), 10*time.Second)
		} else {
			telemetry.LoggerWithCorr(ctx).Warn("movie search failed", slog.Any("err", err))
			b.sendTemporary(m.ChannelID, "❌ Ocurrió un error con la API de películas.", 10*time.Second)
		}
		return
	}

	sortByYearDesc(results)
	ratable, rated := b.partitionResults(m.GuildID, results)
	if len(ratable) == 0 && len(rated) == 0 {
		b.sendTemporary(m.ChannelID, fmt.Sprintf("❌ No se encontraron resultados válidos (con IMDb ID) para **'%s'**.", arg), 10*time.Second)
		return
	}

	prompt, err := b.session.ChannelMessageSend(m.ChannelID, buildSearchPrompt(arg, ratable, rated))
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to post selection prompt", slog.Any("err", err))
		return
	}

	reply, err := b.awaitReply(ctx, m.ChannelID, m.Author.ID, b.cfg.ReplyTimeout, func(content string) bool {
		content = strings.TrimSpace(content)
		return isDigits(content) || isIMDbID(content)
	})

	// Prompt and reply are removed regardless of outcome.
	defer func() {
		b.deleteMessage(m.ChannelID, prompt.ID)
		if reply != nil {
			b.deleteMessage(m.ChannelID, reply.ID)
		}
	}()

	if err != nil {
		b.sendTemporary(m.ChannelID, "⌛ Tiempo agotado o respuesta inválida. Usa `!rate` de nuevo.", 10*time.Second)
		return
	}

	input := strings.ToLower(strings.TrimSpace(reply.Content))
	if isIMDbID(input) {
		b.rateByID(ctx, m.ChannelID, m.GuildID, input)
		return
	}
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 1 || idx > len(ratable) {
		b.sendTemporary(m.ChannelID, "❌ Selección inválida. Ingresa un número de la lista o un ID de IMDb.", 10*time.Second)
		return
	}
	movie, err := b.movies.ByID(ctx, ratable[idx-1].ImdbID)
	if err != nil {
		if errors.Is(err, omdb.ErrNotFound) {
			b.sendTemporary(m.ChannelID, fmt.Sprintf("❌ No se encontró una película con el ID de IMDb **'%s'**.", ratable[idx-1].ImdbID), 10*time.Second)
		} else {
			b.sendTemporary(m.ChannelID, "❌ Ocurrió un error al buscar la película por ID.", 10*time.Second)
		}
		return
	}
	b.createMovieReviewThread(ctx, m.ChannelID, m.GuildID, movie)
}

// rateByID handles !rate with a direct imdb id, including the duplicate guard.
func (b *Bot) rateByID(ctx context.Context, channelID, guildID, imdbID string) {
	imdbID = strings.ToLower(strings.TrimSpace(imdbID))
	if threadID, ok := b.store.Thread(imdbID); ok {
		if telemetry.DuplicatesRejected != nil {
			telemetry.DuplicatesRejected.Inc()
		}
		b.sendTemporary(channelID, fmt.Sprintf("❌ La película **'%s'** ya ha sido calificada. Ver reseñas aquí: %s", imdbID, threadJumpURL(guildID, threadID)), 10*time.Second)
		return
	}
	movie, err := b.movies.ByID(ctx, imdbID)
	if err != nil {
		if errors.Is(err, omdb.ErrNotFound) {
			b.sendTemporary(channelID, fmt.Sprintf("❌ No se encontró una película con el ID de IMDb **'%s'**.", imdbID), 10*time.Second)
		} else {
			telemetry.LoggerWithCorr(ctx).Warn("movie lookup failed", slog.String("imdb_id", imdbID), slog.Any("err", err))
			b.sendTemporary(channelID, "❌ Ocurrió un error al buscar la película por ID.", 10*time.Second)
		}
		return
	}
	b.createMovieReviewThread(ctx, channelID, guildID, movie)
}

// handleBuscar is the read-only search: per result, report the existing thread
// or that the movie is still unrated.
func (b *Bot) handleBuscar(ctx context.Context, m *discordgo.MessageCreate, title string) {
	page, err := b.movies.Search(ctx, title, 1)
	if err != nil {
		if errors.Is(err, omdb.ErrNotFound) {
			b.sendTemporary(m.ChannelID, fmt.Sprintf("La película **'%s'** no ha sido calificada o no se encontró.", title), 10*time.Second)
		} else {
			telemetry.LoggerWithCorr(ctx).Warn("movie search failed", slog.Any("err", err))
			b.sendTemporary(m.ChannelID, "Error al conectar con la API de películas.", 10*time.Second)
		}
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Resultados para **'%s'**:\n", title)
	for _, movie := range page.Results {
		key := strings.ToLower(strings.TrimSpace(movie.ImdbID))
		if threadID, ok := b.store.Thread(key); ok {
			fmt.Fprintf(&sb, " **'%s (%s)'** ya ha sido calificada. Ver reseñas: %s\n", movie.Title, movie.Year, threadJumpURL(m.GuildID, threadID))
		} else {
			fmt.Fprintf(&sb, " **'%s (%s)'** aún no tiene reseñas. Usa `!rate` para calificarla.\n", movie.Title, movie.Year)
		}
	}
	b.sendTemporary(m.ChannelID, sb.String(), 30*time.Second)
}

// handleLista reloads the rated-movies file and lists every movie newest-first,
// re-fetching titles from OMDb for display.
func (b *Bot) handleLista(ctx context.Context, m *discordgo.MessageCreate) {
	b.store.ReloadMovies()
	telemetry.SetRatedMovies(b.store.MovieCount())

	rated := b.store.MoviesNewestFirst()
	if len(rated) == 0 {
		b.sendTemporary(m.ChannelID, "No hay películas calificadas.", 10*time.Second)
		return
	}

	lines := make([]string, 0, len(rated))
	for _, rm := range rated {
		link := threadJumpURL(m.GuildID, rm.ThreadID)
		movie, err := b.movies.ByID(ctx, rm.ImdbID)
		if err != nil {
			lines = append(lines, fmt.Sprintf("- Película (ID: %s) ([Ver reseñas](%s))\n", rm.ImdbID, link))
			continue
		}
		lines = append(lines, fmt.Sprintf("**-** %s (%s) - ([Ver reseñas](%s))\n", movie.Title, movie.Year, link))
	}

	chunks := buildListChunks("**🎥 Películas calificadas:**\n\n", lines, discordMessageLimit)
	for i, chunk := range chunks {
		if i == len(chunks)-1 {
			b.sendTemporary(m.ChannelID, chunk, 30*time.Second)
			continue
		}
		if _, err := b.session.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("failed to send list chunk", slog.Any("err", err))
		}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// yearForSort extracts a 4-digit year from OMDb's Year field ("1999",
// "2001–2003", "N/A"); unknown years sort as 0, i.e. last.
func yearForSort(year string) int {
	m := yearPattern.FindString(year)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

// sortByYearDesc orders search results newest release first (stable, so OMDb's
// relevance order breaks ties).
func sortByYearDesc(movies []omdb.Movie) {
	sort.SliceStable(movies, func(i, j int) bool {
		return yearForSort(movies[i].Year) > yearForSort(movies[j].Year)
	})
}

// ratedEntry is an already-rated search result with its thread link.
type ratedEntry struct {
	Movie omdb.Movie
	Link  string
}

// partitionResults splits search results into ratable candidates (capped at 20)
// and movies that already have a review thread.
func (b *Bot) partitionResults(guildID string, results []omdb.Movie) ([]omdb.Movie, []ratedEntry) {
	var ratable []omdb.Movie
	var rated []ratedEntry
	for _, movie := range results {
		key := strings.ToLower(strings.TrimSpace(movie.ImdbID))
		if key == "" {
			continue
		}
		if threadID, ok := b.store.Thread(key); ok {
			rated = append(rated, ratedEntry{Movie: movie, Link: threadJumpURL(guildID, threadID)})
		} else if len(ratable) < maxRatableShown {
			ratable = append(ratable, movie)
		}
	}
	return ratable, rated
}

// buildSearchPrompt renders the combined numbered selection list.
func buildSearchPrompt(title string, ratable []omdb.Movie, rated []ratedEntry) string {
	lines := []string{fmt.Sprintf("Resultados para **'%s'**. Responde con el número para calificar:", title)}

	if len(ratable) > 0 {
		entries := make([]string, 0, len(ratable))
		for i, m := range ratable {
			entries = append(entries, fmt.Sprintf("**%d.** %s (%s)", i+1, m.Title, m.Year))
		}
		lines = append(lines, strings.Join(entries, "\n"))
	} else {
		lines = append(lines, "❌ No se encontraron películas sin calificar.")
	}

	lines = append(lines, "\n---")

	if len(rated) > 0 {
		lines = append(lines, "\n**Películas ya calificadas:**")
		entries := make([]string, 0, len(rated))
		for _, e := range rated {
			entries = append(entries, fmt.Sprintf("**'%s (%s)'** ([Ver reseñas](%s))", e.Movie.Title, e.Movie.Year, e.Link))
		}
		lines = append(lines, strings.Join(entries, "\n"))
	}

	lines = append(lines, "\nSi tu película no está aquí, busca con un título más específico o introduce el ID de IMDb directamente.")
	return strings.Join(lines, "\n")
}

// buildListChunks packs lines into messages that stay under the length limit.
// The header leads the first chunk only.
func buildListChunks(header string, lines []string, limit int) []string {
	var chunks []string
	current := header
	for _, line := range lines {
		if len(current)+len(line) > limit {
			chunks = append(chunks, current)
			current = line
			continue
		}
		current += line
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
