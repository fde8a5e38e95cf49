package models

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateSeriesIfAbsent(t *testing.T) {
	db := newTestDatabase(t)

	series := &Series{Slug: "my-show", Title: "My Show", Type: TypeSeries}
	created, err := db.CreateSeriesIfAbsent(series)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if !created {
		t.Error("expected first insert to create a row")
	}

	// Second insert with the same slug must be a no-op, not an update
	dup := &Series{Slug: "my-show", Title: "My Show (renamed)", Type: TypeSeries}
	created, err = db.CreateSeriesIfAbsent(dup)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if created {
		t.Error("expected second insert to be skipped")
	}

	stored, err := db.GetSeriesBySlug("my-show")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Title != "My Show" {
		t.Errorf("series row was mutated: title = %q", stored.Title)
	}
}

func TestUpsertEpisodeNoDuplicates(t *testing.T) {
	db := newTestDatabase(t)

	opt := 1
	url := "https://player.example/v/abc"
	first := &Episode{
		SeriesSlug:   "my-show",
		Season:       2,
		Episode:      5,
		EpisodeTitle: "Old Title",
		Servers:      ServerList{{Option: &opt, RealVideo: &url}},
	}
	if err := db.UpsertEpisode(first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := &Episode{
		SeriesSlug:   "my-show",
		Season:       2,
		Episode:      5,
		EpisodeTitle: "New Title",
	}
	if err := db.UpsertEpisode(second); err != nil {
		t.Fatalf("conflicting upsert surfaced an error: %v", err)
	}

	numbers, err := db.SeasonEpisodeNumbers("my-show", 2)
	if err != nil {
		t.Fatalf("season lookup failed: %v", err)
	}
	if len(numbers) != 1 {
		t.Fatalf("expected exactly one row for the triple, got %d", len(numbers))
	}

	// Last write wins
	exists, err := db.EpisodeExists("my-show", 2, 5)
	if err != nil || !exists {
		t.Fatalf("expected episode to exist, exists=%v err=%v", exists, err)
	}
}

func TestSeasonEpisodeNumbersOrdered(t *testing.T) {
	db := newTestDatabase(t)

	for _, n := range []int{4, 1, 6, 2} {
		ep := &Episode{SeriesSlug: "my-show", Season: 1, Episode: n}
		if err := db.UpsertEpisode(ep); err != nil {
			t.Fatalf("upsert episode %d failed: %v", n, err)
		}
	}

	numbers, err := db.SeasonEpisodeNumbers("my-show", 1)
	if err != nil {
		t.Fatalf("season lookup failed: %v", err)
	}
	want := []int{1, 2, 4, 6}
	if len(numbers) != len(want) {
		t.Fatalf("expected %d numbers, got %d", len(want), len(numbers))
	}
	for i, n := range want {
		if numbers[i] != n {
			t.Errorf("numbers[%d] = %d, want %d", i, numbers[i], n)
		}
	}
}

func TestAppendLatestEpisodeTrimsToNine(t *testing.T) {
	db := newTestDatabase(t)

	for i := 1; i <= 11; i++ {
		latest := &LatestEpisode{
			SeriesSlug:   fmt.Sprintf("show-%d", i),
			SeriesTitle:  fmt.Sprintf("Show %d", i),
			Season:       1,
			Episode:      i,
			EpisodeTitle: fmt.Sprintf("Episode %d", i),
		}
		if err := db.AppendLatestEpisode(latest); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		// Keep added_at strictly ordered
		time.Sleep(2 * time.Millisecond)
	}

	latest, err := db.LatestEpisodes()
	if err != nil {
		t.Fatalf("latest lookup failed: %v", err)
	}
	if len(latest) != 9 {
		t.Fatalf("expected 9 retained rows, got %d", len(latest))
	}
	// Newest first; the two oldest inserts (1 and 2) must be gone
	if latest[0].SeriesSlug != "show-11" {
		t.Errorf("expected newest row first, got %s", latest[0].SeriesSlug)
	}
	for _, row := range latest {
		if row.SeriesSlug == "show-1" || row.SeriesSlug == "show-2" {
			t.Errorf("expected oldest rows evicted, found %s", row.SeriesSlug)
		}
	}
}

func TestAppendLatestEpisodeSkipsDuplicateTriple(t *testing.T) {
	db := newTestDatabase(t)

	first := &LatestEpisode{SeriesSlug: "my-show", Season: 1, Episode: 1, EpisodeTitle: "one"}
	if err := db.AppendLatestEpisode(first); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	dup := &LatestEpisode{SeriesSlug: "my-show", Season: 1, Episode: 1, EpisodeTitle: "two"}
	if err := db.AppendLatestEpisode(dup); err != nil {
		t.Fatalf("duplicate append errored: %v", err)
	}

	latest, err := db.LatestEpisodes()
	if err != nil {
		t.Fatalf("latest lookup failed: %v", err)
	}
	if len(latest) != 1 {
		t.Errorf("expected 1 row after duplicate append, got %d", len(latest))
	}
}
