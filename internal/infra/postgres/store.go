package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fils-quiz-bot/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk"`
	Username     string    `bun:"username"`
	FirstName    string    `bun:"first_name"`
	LastName     string    `bun:"last_name"`
	LanguageCode string    `bun:"language_code"`
	IsBot        bool      `bun:"is_bot"`
	Phone        string    `bun:"phone"`
	CreatedAt    time.Time `bun:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at"`
	LastActiveAt time.Time `bun:"last_active_at"`
}

type userListRow struct {
	userRow   `bun:",extend"`
	LastModel sql.NullString `bun:"last_model,scanonly"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions,alias:s"`

	ID        int64           `bun:"id,pk,autoincrement"`
	UserID    int64           `bun:"user_id"`
	Model     string          `bun:"model"`
	Answers   []domain.Answer `bun:"answers,type:jsonb"`
	CreatedAt time.Time       `bun:"created_at"`
}

type promoCodeRow struct {
	bun.BaseModel `bun:"table:promo_codes,alias:p"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id"`
	Code      string    `bun:"code"`
	Amount    int       `bun:"amount"`
	IssuedAt  time.Time `bun:"issued_at"`
	ExpiresAt time.Time `bun:"expires_at"`
}

// Store persists users, submissions and promo codes in Postgres through bun.
type Store struct {
	db    *bun.DB
	clock func() time.Time
}

// OpenDB connects bun to Postgres using the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser inserts a profile or refreshes it. The phone column is left untouched.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	now := s.clock().UTC()
	row := userRow{
		ID:           user.ID,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		LanguageCode: user.LanguageCode,
		IsBot:        user.IsBot,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("language_code = EXCLUDED.language_code").
		Set("is_bot = EXCLUDED.is_bot").
		Set("updated_at = EXCLUDED.updated_at").
		Set("last_active_at = EXCLUDED.last_active_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return nil
}

func (s *Store) AddSubmission(ctx context.Context, sub domain.Submission) error {
	now := s.clock().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	row := submissionRow{
		UserID:    sub.UserID,
		Model:     sub.Model,
		Answers:   sub.Answers,
		CreatedAt: sub.CreatedAt.UTC(),
	}
	if row.Answers == nil {
		row.Answers = []domain.Answer{}
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("add submission for %d: %w", sub.UserID, err)
		}
		_, err := tx.NewUpdate().
			Model((*userRow)(nil)).
			Set("last_active_at = ?", now).
			Where("id = ?", sub.UserID).
			Exec(ctx)
		return err
	})
}

func (s *Store) UpdatePhone(ctx context.Context, userID int64, phone string) error {
	now := s.clock().UTC()
	res, err := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Set("phone = ?", phone).
		Set("updated_at = ?", now).
		Set("last_active_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update phone for %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) IssuePromoCode(ctx context.Context, promo domain.PromoCode) error {
	row := promoCodeRow{
		UserID:    promo.UserID,
		Code:      promo.Code,
		Amount:    promo.Amount,
		IssuedAt:  promo.IssuedAt.UTC(),
		ExpiresAt: promo.ExpiresAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("issue promo code for %d: %w", promo.UserID, err)
	}
	return nil
}

func (s *Store) LatestPromoCode(ctx context.Context, userID int64) (domain.PromoCode, error) {
	var row promoCodeRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		OrderExpr("issued_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PromoCode{}, domain.ErrPromoNotFound
	}
	if err != nil {
		return domain.PromoCode{}, fmt.Errorf("latest promo code for %d: %w", userID, err)
	}
	return domain.PromoCode{
		UserID:    row.UserID,
		Code:      row.Code,
		Amount:    row.Amount,
		IssuedAt:  row.IssuedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// ListUsers returns users newest first, each with the model of their latest submission.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]domain.UserSummary, error) {
	var rows []userListRow
	q := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("u.*").
		ColumnExpr("(SELECT s.model FROM submissions AS s WHERE s.user_id = u.id ORDER BY s.created_at DESC, s.id DESC LIMIT 1) AS last_model").
		OrderExpr("u.created_at DESC, u.id ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.UserSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.UserSummary{
			User: domain.User{
				ID:           row.ID,
				Username:     row.Username,
				FirstName:    row.FirstName,
				LastName:     row.LastName,
				LanguageCode: row.LanguageCode,
				IsBot:        row.IsBot,
			},
			Phone:        row.Phone,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
			LastActiveAt: row.LastActiveAt,
			LastModel:    row.LastModel.String,
		})
	}
	return out, nil
}

func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.NewSelect().Model((*userRow)(nil)).Column("id").Order("id").Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	users, err := s.db.NewSelect().Model((*userRow)(nil)).Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count users: %w", err)
	}
	var byModel []struct {
		Model string `bun:"model"`
		N     int    `bun:"n"`
	}
	err = s.db.NewSelect().
		Model((*submissionRow)(nil)).
		Column("model").
		ColumnExpr("count(*) AS n").
		Group("model").
		Scan(ctx, &byModel)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count submissions: %w", err)
	}
	stats := domain.Stats{Users: users, ByModel: make(map[string]int, len(byModel))}
	for _, row := range byModel {
		stats.ByModel[row.Model] = row.N
		stats.Submissions += row.N
	}
	return stats, nil
}
