package bot

import (
	"strings"
	"testing"
)

func TestRenderReviewRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		rating int
	}{
		{"Ana", "¡Qué gran película!", 5},
		{"bob", "meh", 1},
		{"Carlos", "líneas\nmúltiples\nde reseña", 3},
	}
	for _, tt := range tests {
		content := renderReview(tt.name, tt.body, tt.rating)
		got, ok := ratingFromMessage(content)
		if !ok {
			t.Errorf("ratingFromMessage(%q) not matched", content)
			continue
		}
		if got != tt.rating {
			t.Errorf("ratingFromMessage() = %d, want %d", got, tt.rating)
		}
		if !strings.HasPrefix(content, "**Reseña de "+tt.name+":**\n") {
			t.Errorf("review header malformed: %q", content)
		}
	}
}

func TestRatingFromMessageRejectsNonReviews(t *testing.T) {
	tests := []string{
		"",
		"hola",
		"**Calificación:** (3/5)",          // no stars
		"**Calificación:** ⭐⭐⭐ (3/10)",     // wrong scale
		"Calificación: ⭐⭐⭐ (3/5)",          // not bold
		"**Calificación:** ⭐ (0/5)",        // below range
		renderReview("x", "y", 3) + "trim", // unanchored regex still matches
	}
	for i, content := range tests {
		_, ok := ratingFromMessage(content)
		// The last case intentionally matches.
		wantOK := i == len(tests)-1
		if ok != wantOK {
			t.Errorf("ratingFromMessage(%q) ok = %v, want %v", content, ok, wantOK)
		}
	}
}

func TestSummaryForRatings(t *testing.T) {
	value, desc := summaryForRatings([]int{3, 4, 5})
	if !strings.Contains(value, "(4.00/5)") {
		t.Errorf("value = %q, want mean 4.00", value)
	}
	if strings.Count(value, "⭐") != 4 {
		t.Errorf("value = %q, want 4 star glyphs", value)
	}
	if !strings.Contains(desc, "4.00/5") {
		t.Errorf("description = %q, want mean 4.00", desc)
	}

	value, desc = summaryForRatings(nil)
	if value != "Sin calificar aún" {
		t.Errorf("empty value = %q, want %q", value, "Sin calificar aún")
	}
	if !strings.Contains(desc, "Sé el primero") {
		t.Errorf("empty description = %q", desc)
	}
}

func TestSummaryForRatingsRounding(t *testing.T) {
	tests := []struct {
		ratings   []int
		wantStars int
		wantMean  string
	}{
		{[]int{5}, 5, "5.00"},
		{[]int{1, 2}, 2, "1.50"}, // 1.5 rounds up
		{[]int{1, 1, 2}, 1, "1.33"},
		{[]int{4, 5}, 5, "4.50"},
	}
	for _, tt := range tests {
		value, _ := summaryForRatings(tt.ratings)
		if strings.Count(value, "⭐") != tt.wantStars {
			t.Errorf("summaryForRatings(%v) = %q, want %d stars", tt.ratings, value, tt.wantStars)
		}
		if !strings.Contains(value, "("+tt.wantMean+"/5)") {
			t.Errorf("summaryForRatings(%v) = %q, want mean %s", tt.ratings, value, tt.wantMean)
		}
	}
}

func TestThreadNameFor(t *testing.T) {
	if got := threadNameFor("Heat"); got != "Reseñas para Heat" {
		t.Errorf("threadNameFor(Heat) = %q", got)
	}
	got := threadNameFor("The Shawshank Redemption")
	if got != "Reseñas para The Shawshank Redemp..." {
		t.Errorf("threadNameFor(long) = %q", got)
	}
}

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		customID string
		prefix   string
		want     int
		wantOK   bool
	}{
		{"review_3", "review_", 3, true},
		{"review_5", "review_", 5, true},
		{"review_0", "review_", 0, false},
		{"review_6", "review_", 0, false},
		{"review_x", "review_", 0, false},
		{"review_modal_2", "review_modal_", 2, true},
		{"other_3", "review_", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCustomID(tt.customID, tt.prefix)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseCustomID(%q, %q) = %d,%v, want %d,%v", tt.customID, tt.prefix, got, ok, tt.want, tt.wantOK)
		}
	}
}
