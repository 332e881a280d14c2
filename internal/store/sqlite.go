package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"feedhub/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id          TEXT PRIMARY KEY,
	author_id   TEXT NOT NULL,
	author_name TEXT NOT NULL,
	body        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	promoted    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	likes       INTEGER NOT NULL DEFAULT 0,
	comments    INTEGER NOT NULL DEFAULT 0,
	shares      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);

CREATE TABLE IF NOT EXISTS follows (
	user_id   TEXT NOT NULL,
	author_id TEXT NOT NULL,
	weight    REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (user_id, author_id)
);

CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	body       TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_user_item ON interactions(user_id, item_id);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id);
`

// SQLiteStore implements Store on a local SQLite database. Writes are
// serialized through a mutex; SQLite handles concurrent reads under WAL.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// OpenSQLite opens (and bootstraps) a SQLite-backed store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// SavePost inserts or replaces a canonical item. Used by seeding and tests.
func (s *SQLiteStore) SavePost(ctx context.Context, item types.FeedItem) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO posts
			(id, author_id, author_name, body, kind, promoted, created_at, likes, comments, shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.AuthorID, item.AuthorName, item.Body, string(item.Kind),
		boolToInt(item.Promoted), item.CreatedAt.UTC(), item.Likes, item.Comments, item.Shares)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// SaveFollow records that userID follows authorID with the given interaction weight.
func (s *SQLiteStore) SaveFollow(ctx context.Context, userID, authorID string, weight float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO follows (user_id, author_id, weight) VALUES (?, ?, ?)`,
		userID, authorID, weight)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) FetchCandidates(ctx context.Context, params types.CurationParams, limit int) ([]types.FeedItem, error) {
	var (
		where []string
		args  []any
	)

	if len(params.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(params.Kinds))+")")
		for _, k := range params.Kinds {
			args = append(args, string(k))
		}
	}
	if params.MaxAge > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, time.Now().Add(-params.MaxAge).UTC())
	}
	if !params.IncludePromoted {
		where = append(where, "promoted = 0")
	}
	if params.Variant == types.VariantFollowing {
		where = append(where, "author_id IN (SELECT author_id FROM follows WHERE user_id = ?)")
		args = append(args, params.UserID)
	}

	query, err := buildCandidateQuery(params.Variant, where, limit)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var items []types.FeedItem
	for rows.Next() {
		var (
			item     types.FeedItem
			kind     string
			promoted int
		)
		if err := rows.Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.Body,
			&kind, &promoted, &item.CreatedAt, &item.Likes, &item.Comments, &item.Shares); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		item.Kind = types.ContentKind(kind)
		item.Promoted = promoted != 0
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return items, nil
}

func buildCandidateQuery(variant types.FeedVariant, where []string, limit int) (string, error) {
	if limit <= 0 {
		return "", fmt.Errorf("candidate limit must be positive")
	}
	q := "SELECT id, author_id, author_name, body, kind, promoted, created_at, likes, comments, shares FROM posts"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if variant == types.VariantTrending {
		q += " ORDER BY (likes + comments + shares) DESC, created_at DESC, id DESC"
	} else {
		q += " ORDER BY created_at DESC, id DESC"
	}
	q += " LIMIT ?"
	return q, nil
}

func (s *SQLiteStore) FetchInteractionState(ctx context.Context, userID string, itemIDs []string) (map[string]types.InteractionState, error) {
	state := make(map[string]types.InteractionState, len(itemIDs))
	if userID == "" || len(itemIDs) == 0 {
		return state, nil
	}

	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, userID)
	for _, id := range itemIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, action FROM interactions
		WHERE user_id = ? AND item_id IN (`+placeholders(len(itemIDs))+`)
		AND action IN ('like', 'bookmark')`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, action string
		if err := rows.Scan(&itemID, &action); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		st := state[itemID]
		switch action {
		case types.ActionLike:
			st.Liked = true
		case types.ActionBookmark:
			st.Bookmarked = true
		}
		state[itemID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return state, nil
}

func (s *SQLiteStore) RecordInteraction(ctx context.Context, event types.InteractionEvent) (*InteractionResult, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInteraction, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var authorID string
	err = tx.QueryRowContext(ctx, "SELECT author_id FROM posts WHERE id = ?", event.ItemID).Scan(&authorID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, event.ItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	switch event.Action {
	case types.ActionLike, types.ActionBookmark:
		// Toggles: a duplicate like or bookmark is a no-op.
		var existing int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM interactions WHERE user_id = ? AND item_id = ? AND action = ?`,
			event.UserID, event.ItemID, event.Action).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		if existing == 0 {
			if err := insertInteraction(ctx, tx, event); err != nil {
				return nil, err
			}
			if event.Action == types.ActionLike {
				if err := bumpCounter(ctx, tx, event.ItemID, "likes", 1); err != nil {
					return nil, err
				}
			}
		}

	case types.ActionUnlike:
		res, err := tx.ExecContext(ctx, `
			DELETE FROM interactions WHERE user_id = ? AND item_id = ? AND action = ?`,
			event.UserID, event.ItemID, types.ActionLike)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if err := bumpCounter(ctx, tx, event.ItemID, "likes", -1); err != nil {
				return nil, err
			}
		}

	case types.ActionComment:
		if err := insertInteraction(ctx, tx, event); err != nil {
			return nil, err
		}
		if err := bumpCounter(ctx, tx, event.ItemID, "comments", 1); err != nil {
			return nil, err
		}

	case types.ActionShare:
		if err := insertInteraction(ctx, tx, event); err != nil {
			return nil, err
		}
		if err := bumpCounter(ctx, tx, event.ItemID, "shares", 1); err != nil {
			return nil, err
		}
	}

	result := &InteractionResult{AuthorID: authorID}
	err = tx.QueryRowContext(ctx, "SELECT likes, comments, shares FROM posts WHERE id = ?", event.ItemID).
		Scan(&result.Likes, &result.Comments, &result.Shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return result, nil
}

func (s *SQLiteStore) FetchUserContext(ctx context.Context, userID string) (*types.UserContext, error) {
	uctx := &types.UserContext{
		UserID:        userID,
		Follows:       make(map[string]bool),
		AuthorWeights: make(map[string]float64),
		KindAffinity:  make(map[types.ContentKind]float64),
		ComputedAt:    time.Now(),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT author_id, weight FROM follows WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var authorID string
		var weight float64
		if err := rows.Scan(&authorID, &weight); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		uctx.Follows[authorID] = true
		uctx.AuthorWeights[authorID] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	// Kind affinity: 1.0 baseline plus the user's share of interactions on
	// that kind, giving a multiplier in [1, 2].
	kindRows, err := s.db.QueryContext(ctx, `
		SELECT p.kind, COUNT(*) FROM interactions i
		JOIN posts p ON p.id = i.item_id
		WHERE i.user_id = ?
		GROUP BY p.kind`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer kindRows.Close()

	counts := make(map[types.ContentKind]float64)
	var total float64
	for kindRows.Next() {
		var kind string
		var n float64
		if err := kindRows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
		counts[types.ContentKind(kind)] = n
		total += n
	}
	if err := kindRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	for kind, n := range counts {
		uctx.KindAffinity[kind] = 1.0 + n/math.Max(total, 1)
	}

	return uctx, nil
}

func insertInteraction(ctx context.Context, tx *sql.Tx, event types.InteractionEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, item_id, action, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.ItemID, event.Action, event.Body, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

func bumpCounter(ctx context.Context, tx *sql.Tx, itemID, column string, delta int64) error {
	// column is one of the fixed counter names, never caller input.
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE posts SET %s = MAX(0, %s + ?) WHERE id = ?", column, column),
		delta, itemID)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
