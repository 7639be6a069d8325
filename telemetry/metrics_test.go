package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if CommandsHandled == nil {
		t.Error("CommandsHandled not initialized")
	}
	if ReviewsSubmitted == nil {
		t.Error("ReviewsSubmitted not initialized")
	}
	if CommandDuration == nil {
		t.Error("CommandDuration histogram not initialized")
	}
	if MetadataLookupDuration == nil {
		t.Error("MetadataLookupDuration histogram not initialized")
	}
	if RatedMoviesGauge == nil {
		t.Error("RatedMoviesGauge not initialized")
	}
}

func TestHelpersSafeBeforeAndAfterInit(t *testing.T) {
	// Helpers must not panic whether or not Init has run.
	IncCommand("rate")
	IncMetadataLookup()
	IncMetadataError()
	ObserveMetadataDuration(time.Second)
	SetRatedMovies(3)

	Init()
	IncCommand("rate")
	IncMetadataLookup()
	SetRatedMovies(3)
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(CommandDuration, func() { time.Sleep(5 * time.Millisecond) })
	if d < 5*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 5ms", d)
	}
	// nil observer must still time the function
	d = TimeFunc(nil, func() {})
	if d < 0 {
		t.Errorf("TimeFunc duration = %v", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
	if logger := LoggerWithCorr(ctx); logger == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
