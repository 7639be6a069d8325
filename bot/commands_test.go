package bot

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cineclub/pelibot/config"
	"github.com/cineclub/pelibot/omdb"
	"github.com/cineclub/pelibot/store"
)

func TestIsIMDbID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"tt0111161", true},
		{"TT0111161", true}, // case-insensitive
		{"tt01111617", true},
		{"tt011116178", false}, // 9 digits
		{"tt012345", false},    // 6 digits
		{"0111161", false},
		{"tt0111161 extra", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isIMDbID(tt.in); got != tt.want {
			t.Errorf("isIMDbID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsDigits(t *testing.T) {
	for in, want := range map[string]bool{"3": true, "12": true, "": false, "1a": false, "-1": false} {
		if got := isDigits(in); got != want {
			t.Errorf("isDigits(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestYearForSort(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1994", 1994},
		{"2001–2003", 2001},
		{"N/A", 0},
		{"", 0},
		{"199", 0},
	}
	for _, tt := range tests {
		if got := yearForSort(tt.in); got != tt.want {
			t.Errorf("yearForSort(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSortByYearDescUnknownLast(t *testing.T) {
	movies := []omdb.Movie{
		{Title: "Old", Year: "1971", ImdbID: "tt0000001"},
		{Title: "Unknown", Year: "N/A", ImdbID: "tt0000002"},
		{Title: "New", Year: "2020", ImdbID: "tt0000003"},
		{Title: "Mid", Year: "1999", ImdbID: "tt0000004"},
	}
	sortByYearDesc(movies)
	gotOrder := []string{movies[0].Title, movies[1].Title, movies[2].Title, movies[3].Title}
	wantOrder := []string{"New", "Mid", "Old", "Unknown"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "movies.json"), filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	return &Bot{
		cfg:     &config.Config{MovieRoleID: "role", PermittedChannelID: "chan"},
		store:   st,
		waiters: make(map[string]*replyWaiter),
	}
}

func TestPartitionResults(t *testing.T) {
	b := newTestBot(t)
	b.store.PutMovie("tt0000002", 55)

	results := []omdb.Movie{
		{Title: "A", Year: "2001", ImdbID: "tt0000001"},
		{Title: "B", Year: "2002", ImdbID: "tt0000002"}, // already rated
		{Title: "C", Year: "2003", ImdbID: ""},          // dropped: no id
		{Title: "D", Year: "2004", ImdbID: "tt0000004"},
	}
	ratable, rated := b.partitionResults("guild", results)
	if len(ratable) != 2 {
		t.Fatalf("ratable = %d entries, want 2", len(ratable))
	}
	if ratable[0].Title != "A" || ratable[1].Title != "D" {
		t.Errorf("ratable = %v", ratable)
	}
	if len(rated) != 1 || rated[0].Movie.Title != "B" {
		t.Fatalf("rated = %v, want only B", rated)
	}
	if !strings.Contains(rated[0].Link, "/55") {
		t.Errorf("rated link = %q, want thread id 55", rated[0].Link)
	}
}

func TestPartitionResultsCapsRatableAtTwenty(t *testing.T) {
	b := newTestBot(t)
	var results []omdb.Movie
	for i := 0; i < 30; i++ {
		results = append(results, omdb.Movie{Title: "M", Year: "2000", ImdbID: fmt.Sprintf("tt%07d", i)})
	}
	ratable, _ := b.partitionResults("guild", results)
	if len(ratable) != maxRatableShown {
		t.Errorf("ratable = %d entries, want %d", len(ratable), maxRatableShown)
	}
}

func TestBuildSearchPrompt(t *testing.T) {
	ratable := []omdb.Movie{
		{Title: "Heat", Year: "1995", ImdbID: "tt0113277"},
		{Title: "Ronin", Year: "1998", ImdbID: "tt0122690"},
	}
	rated := []ratedEntry{
		{Movie: omdb.Movie{Title: "Casino", Year: "1995"}, Link: "https://discord.com/channels/g/1"},
	}
	prompt := buildSearchPrompt("heat", ratable, rated)

	for _, want := range []string{
		"Resultados para **'heat'**",
		"**1.** Heat (1995)",
		"**2.** Ronin (1998)",
		"**Películas ya calificadas:**",
		"**'Casino (1995)'** ([Ver reseñas](https://discord.com/channels/g/1))",
		"introduce el ID de IMDb directamente",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSearchPromptNoRatable(t *testing.T) {
	prompt := buildSearchPrompt("x", nil, []ratedEntry{{Movie: omdb.Movie{Title: "T", Year: "2000"}, Link: "l"}})
	if !strings.Contains(prompt, "No se encontraron películas sin calificar") {
		t.Errorf("prompt missing empty-ratable notice:\n%s", prompt)
	}
}

func TestBuildListChunksStaysUnderLimit(t *testing.T) {
	header := "**🎥 Películas calificadas:**\n\n"
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", 90)+"\n")
	}
	chunks := buildListChunks(header, lines, 2000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 2000 {
			t.Errorf("chunk %d has %d bytes, want <= 2000", i, len(c))
		}
	}
	if !strings.HasPrefix(chunks[0], header) {
		t.Error("first chunk missing header")
	}
	joined := strings.Join(chunks, "")
	for _, line := range lines {
		if !strings.Contains(joined, line) {
			t.Fatal("a line was lost during chunking")
			break
		}
	}
}

func TestBuildListChunksSingleChunk(t *testing.T) {
	chunks := buildListChunks("header\n", []string{"a\n", "b\n"}, 2000)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "header\na\nb\n" {
		t.Errorf("chunk = %q", chunks[0])
	}
}
