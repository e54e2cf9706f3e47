// Package digest emails subscribers a daily summary of the ingested
// releases. Subscribers live in a small sqlite database; delivery goes
// through the Resend HTTP API.
package digest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"unreeled/internal/release"
)

var knownMediaTypes = map[string]struct{}{
	string(release.MediaMovie):     {},
	string(release.MediaTV):        {},
	string(release.MediaBook):      {},
	string(release.MediaGame):      {},
	string(release.MediaAnime):     {},
	string(release.MediaMusic):     {},
	string(release.MediaPodcast):   {},
	string(release.MediaComic):     {},
	string(release.MediaNews):      {},
	string(release.MediaBoardGame): {},
}

// Subscriber is one digest recipient. An empty MediaTypes set means the
// subscriber takes every media type.
type Subscriber struct {
	ID         int64
	Email      string
	MediaTypes []release.MediaType
	CreatedAt  time.Time
}

// Subscribed reports whether the subscriber takes the given media type.
func (s *Subscriber) Subscribed(mediaType release.MediaType) bool {
	if len(s.MediaTypes) == 0 {
		return true
	}
	for _, mt := range s.MediaTypes {
		if mt == mediaType {
			return true
		}
	}
	return false
}

// Store persists digest subscribers.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the subscriber database.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open subscriber database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			media_types TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate subscriber schema: %w", err)
	}
	return nil
}

// Subscribe adds an email address with its media-type subscriptions. No
// types means everything. Re-subscribing an existing address replaces its
// subscriptions.
func (s *Store) Subscribe(ctx context.Context, email string, mediaTypes []string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address %q", email)
	}
	normalized, err := normalizeMediaTypes(mediaTypes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscribers (email, media_types, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET media_types = excluded.media_types`,
		email, strings.Join(normalized, ","), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", email, err)
	}
	return nil
}

// Unsubscribe removes an email address and reports whether it existed.
func (s *Store) Unsubscribe(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("unsubscribe %s: %w", email, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Subscribers lists every recipient, oldest first.
func (s *Store) Subscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, media_types, created_at FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []Subscriber
	for rows.Next() {
		var (
			sub     Subscriber
			types   string
			created string
		)
		if err := rows.Scan(&sub.ID, &sub.Email, &types, &created); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		for _, t := range strings.Split(types, ",") {
			if t != "" {
				sub.MediaTypes = append(sub.MediaTypes, release.MediaType(t))
			}
		}
		sub.CreatedAt, _ = time.Parse(time.RFC3339, created)
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

func normalizeMediaTypes(mediaTypes []string) ([]string, error) {
	seen := map[string]struct{}{}
	normalized := make([]string, 0, len(mediaTypes))
	for _, t := range mediaTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, known := knownMediaTypes[t]; !known {
			return nil, fmt.Errorf("unknown media type %q", t)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	return normalized, nil
}
