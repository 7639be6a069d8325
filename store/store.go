// Package store is the on-disk repository for the bot's two persisted maps:
// rated movies (imdb id -> review thread id) and thread raters (thread id -> user ids).
// Both live in small JSON files. Loads are tolerant: a missing or corrupt file yields an
// empty map so the bot keeps running; the next successful save recreates a valid file.
// Saves are best-effort: write failures are logged and the in-memory state remains
// authoritative for the session.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// RatedMovie is one entry of the rated-movies map, in file (insertion) order.
type RatedMovie struct {
	ImdbID   string
	ThreadID int64
}

// Store owns both maps behind a mutex. discordgo delivers events on separate
// goroutines, so unlike the original single-threaded bot the maps must be locked.
type Store struct {
	mu sync.RWMutex

	moviesPath string
	usersPath  string

	movies map[string]int64
	// order holds movie keys oldest-first, matching the JSON object's key order.
	// Go maps don't preserve insertion order, but listing depends on it.
	order  []string
	raters map[int64]map[int64]struct{}
}

// Open loads both files. It never fails on bad file contents; it only errors when the
// data directory cannot be created at all.
func Open(moviesPath, usersPath string) (*Store, error) {
	if dir := filepath.Dir(moviesPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	s := &Store{moviesPath: moviesPath, usersPath: usersPath}
	s.loadMovies()
	s.loadUsers()
	return s, nil
}

// ReloadMovies re-reads the rated-movies file, replacing the in-memory map.
// Used by !lista so out-of-band file edits (the only deletion path) take effect.
func (s *Store) ReloadMovies() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMoviesLocked()
}

func (s *Store) loadMovies() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMoviesLocked()
}

func (s *Store) loadMoviesLocked() {
	s.movies = make(map[string]int64)
	s.order = nil

	b, err := os.ReadFile(s.moviesPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read rated movies file", slog.String("path", s.moviesPath), slog.Any("err", err))
		}
		return
	}

	// Decode token by token so the file's key order survives the round trip.
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		slog.Warn("rated movies file malformed, starting empty", slog.String("path", s.moviesPath))
		return
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		key, ok := keyTok.(string)
		if !ok {
			break
		}
		valTok, err := dec.Token()
		if err != nil {
			break
		}
		num, ok := valTok.(json.Number)
		if !ok {
			continue
		}
		id, err := num.Int64()
		if err != nil {
			continue
		}
		if _, dup := s.movies[key]; !dup {
			s.order = append(s.order, key)
		}
		s.movies[key] = id
	}
}

func (s *Store) loadUsers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.raters = make(map[int64]map[int64]struct{})

	b, err := os.ReadFile(s.usersPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read rated users file", slog.String("path", s.usersPath), slog.Any("err", err))
		}
		return
	}
	var raw map[string][]int64
	if err := json.Unmarshal(b, &raw); err != nil {
		slog.Warn("rated users file malformed, starting empty", slog.String("path", s.usersPath))
		return
	}
	for k, users := range raw {
		threadID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		set := make(map[int64]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}
		s.raters[threadID] = set
	}
}

// Thread returns the review thread id recorded for an imdb id.
func (s *Store) Thread(imdbID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.movies[imdbID]
	return id, ok
}

// PutMovie records a newly opened review thread and persists immediately.
func (s *Store) PutMovie(imdbID string, threadID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.movies[imdbID]; !dup {
		s.order = append(s.order, imdbID)
	}
	s.movies[imdbID] = threadID
	s.saveMoviesLocked()
}

// MoviesNewestFirst returns all rated movies, most recently added first.
func (s *Store) MoviesNewestFirst() []RatedMovie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RatedMovie, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		k := s.order[i]
		out = append(out, RatedMovie{ImdbID: k, ThreadID: s.movies[k]})
	}
	return out
}

// HasRated reports whether the user already submitted a review in the thread.
func (s *Store) HasRated(threadID, userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.raters[threadID][userID]
	return ok
}

// AddRater records the user as having reviewed the thread and persists immediately.
// It returns false when the user was already recorded, which rejects a second form
// submission that slipped past the button-press guard.
func (s *Store) AddRater(threadID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.raters[threadID]
	if !ok {
		set = make(map[int64]struct{})
		s.raters[threadID] = set
	}
	if _, dup := set[userID]; dup {
		return false
	}
	set[userID] = struct{}{}
	s.saveUsersLocked()
	return true
}

// MovieCount returns the number of rated movies.
func (s *Store) MovieCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movies)
}

// ReviewCount returns the total number of recorded reviews across all threads.
func (s *Store) ReviewCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.raters {
		n += len(set)
	}
	return n
}

// Flush rewrites both files from memory.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveMoviesLocked()
	s.saveUsersLocked()
}

func (s *Store) saveMoviesLocked() {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			continue
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatInt(s.movies[k], 10))
	}
	buf.WriteByte('}')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "    "); err != nil {
		slog.Error("failed to encode rated movies", slog.Any("err", err))
		return
	}
	if err := os.WriteFile(s.moviesPath, pretty.Bytes(), 0o644); err != nil {
		slog.Error("failed to save rated movies", slog.String("path", s.moviesPath), slog.Any("err", err))
	}
}

func (s *Store) saveUsersLocked() {
	raw := make(map[string][]int64, len(s.raters))
	for threadID, set := range s.raters {
		users := make([]int64, 0, len(set))
		for u := range set {
			users = append(users, u)
		}
		sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
		raw[strconv.FormatInt(threadID, 10)] = users
	}
	b, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		slog.Error("failed to encode rated users", slog.Any("err", err))
		return
	}
	if err := os.WriteFile(s.usersPath, b, 0o644); err != nil {
		slog.Error("failed to save rated users", slog.String("path", s.usersPath), slog.Any("err", err))
	}
}
