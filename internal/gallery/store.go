// Package gallery serves the video catalog and the subscription gate in
// front of it.
package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Video is one gallery entry. YoutubeID doubles as the streaming ContentID.
type Video struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	YoutubeID string `json:"youtubeId"`
	Thumbnail string `json:"thumbnail"`
	Category  string `json:"category"`
}

// Store reads and writes the video catalog.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListVideos returns the whole catalog ordered by id.
func (s *Store) ListVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, youtube_id, thumbnail, category FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.Label, &v.YoutubeID, &v.Thumbnail, &v.Category); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// AddVideo inserts a catalog entry, returning its id.
func (s *Store) AddVideo(ctx context.Context, v Video) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (label, youtube_id, thumbnail, category) VALUES (?, ?, ?, ?)`,
		v.Label, v.YoutubeID, v.Thumbnail, v.Category)
	if err != nil {
		return 0, fmt.Errorf("insert video: %w", err)
	}
	return res.LastInsertId()
}

// SubscriptionStatusActive is the one status value that grants access.
const SubscriptionStatusActive = "active"

// ErrNoSubscription is returned when a user has no subscription row.
var ErrNoSubscription = errors.New("no subscription")

// Subscriptions answers whether a user may access gated content. The payment
// provider's webhook layer (outside this repo's scope) calls SetStatus.
type Subscriptions struct {
	db  *sql.DB
	now func() time.Time
}

// NewSubscriptions returns a Subscriptions store over db.
func NewSubscriptions(db *sql.DB) *Subscriptions {
	return &Subscriptions{db: db, now: time.Now}
}

// Active reports whether userID holds an active, unexpired subscription.
func (s *Subscriptions) Active(ctx context.Context, userID int64) (bool, error) {
	var (
		status    string
		periodEnd sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, period_end FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&status, &periodEnd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query subscription: %w", err)
	}

	if status != SubscriptionStatusActive {
		return false, nil
	}
	if periodEnd.Valid && periodEnd.Time.Before(s.now().UTC()) {
		return false, nil
	}
	return true, nil
}

// SetStatus upserts the subscription row for userID.
func (s *Subscriptions) SetStatus(ctx context.Context, userID int64, status string, periodEnd time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, status, period_end, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			period_end = excluded.period_end,
			updated_at = CURRENT_TIMESTAMP`,
		userID, status, periodEnd)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
