// Package sqlite is the single-file persistence backend used when no Postgres DSN is configured.
// Timestamps are stored as unix nanoseconds so ordering is exact.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fils-quiz-bot/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the database file (and its directory) when missing and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path not set")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	now := s.clock().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, language_code, is_bot, created_at, updated_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			is_bot = excluded.is_bot,
			updated_at = excluded.updated_at,
			last_active_at = excluded.last_active_at`,
		user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode, user.IsBot, now, now, now)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return nil
}

func (s *Store) AddSubmission(ctx context.Context, sub domain.Submission) error {
	now := s.clock()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	answers := sub.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (user_id, model, answers, created_at) VALUES (?, ?, ?, ?)`,
		sub.UserID, sub.Model, string(payload), sub.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("add submission for %d: %w", sub.UserID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET last_active_at = ? WHERE id = ?`, now.UnixNano(), sub.UserID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdatePhone(ctx context.Context, userID int64, phone string) error {
	now := s.clock().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET phone = ?, updated_at = ?, last_active_at = ? WHERE id = ?`, phone, now, now, userID)
	if err != nil {
		return fmt.Errorf("update phone for %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) IssuePromoCode(ctx context.Context, promo domain.PromoCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO promo_codes (user_id, code, amount, issued_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		promo.UserID, promo.Code, promo.Amount, promo.IssuedAt.UnixNano(), promo.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("issue promo code for %d: %w", promo.UserID, err)
	}
	return nil
}

func (s *Store) LatestPromoCode(ctx context.Context, userID int64) (domain.PromoCode, error) {
	var (
		promo             domain.PromoCode
		issued, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, code, amount, issued_at, expires_at FROM promo_codes
		 WHERE user_id = ? ORDER BY issued_at DESC, id DESC LIMIT 1`, userID).
		Scan(&promo.UserID, &promo.Code, &promo.Amount, &issued, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PromoCode{}, domain.ErrPromoNotFound
	}
	if err != nil {
		return domain.PromoCode{}, fmt.Errorf("latest promo code for %d: %w", userID, err)
	}
	promo.IssuedAt = fromNanos(issued)
	promo.ExpiresAt = fromNanos(expiresAt)
	return promo, nil
}

// ListUsers returns users newest first, each with the model of their latest submission.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]domain.UserSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.first_name, u.last_name, u.language_code, u.is_bot, u.phone,
		       u.created_at, u.updated_at, u.last_active_at,
		       (SELECT s.model FROM submissions AS s WHERE s.user_id = u.id
		        ORDER BY s.created_at DESC, s.id DESC LIMIT 1) AS last_model
		FROM users AS u
		ORDER BY u.created_at DESC, u.id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []domain.UserSummary{}
	for rows.Next() {
		var (
			u                          domain.UserSummary
			created, updated, lastSeen int64
			lastModel                  sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode, &u.IsBot, &u.Phone,
			&created, &updated, &lastSeen, &lastModel); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		u.CreatedAt = fromNanos(created)
		u.UpdatedAt = fromNanos(updated)
		u.LastActiveAt = fromNanos(lastSeen)
		u.LastModel = lastModel.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ByModel: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&stats.Users); err != nil {
		return domain.Stats{}, fmt.Errorf("count users: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT model, count(*) FROM submissions GROUP BY model`)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			model string
			n     int
		)
		if err := rows.Scan(&model, &n); err != nil {
			return domain.Stats{}, err
		}
		stats.ByModel[model] = n
		stats.Submissions += n
	}
	return stats, rows.Err()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
