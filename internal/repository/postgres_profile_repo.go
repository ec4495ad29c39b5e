package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/inflect/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。未作成の場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	var email, fullName, avatarURL sql.NullString
	var plan string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, avatar_url, plan, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		userID,
	).Scan(&p.ID, &email, &fullName, &avatarURL, &plan, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	p.Email = nullStringPtr(email)
	p.FullName = nullStringPtr(fullName)
	p.AvatarURL = nullStringPtr(avatarURL)
	p.Plan = model.Plan(plan)
	return &p, nil
}

// Update はemailとfull_nameを更新する。
// プロフィール行が存在しない場合はエラーを返す。
func (r *PostgresProfileRepo) Update(ctx context.Context, userID, email string, fullName *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET email = $2, full_name = $3, updated_at = now() WHERE id = $1`,
		userID, email, fullName,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireAffected(result, "profile", userID)
}

// UpdatePlan は契約プランを更新する。
func (r *PostgresProfileRepo) UpdatePlan(ctx context.Context, userID string, plan model.Plan) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET plan = $2, updated_at = now() WHERE id = $1`,
		userID, string(plan),
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return requireAffected(result, "profile", userID)
}

// CreateFromUser はユーザー情報からプロフィール行を作成する。
// 既に存在する場合は何もせずfalseを返す。
func (r *PostgresProfileRepo) CreateFromUser(ctx context.Context, user *model.User) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, avatar_url, plan)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), 'basic')
		 ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Email, user.Name, user.AvatarURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListUnprovisionedUsers はプロフィール未作成のユーザーを作成日時順に取得する。
func (r *PostgresProfileRepo) ListUnprovisionedUsers(ctx context.Context, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
		 FROM users u
		 LEFT JOIN profiles p ON p.id = u.id
		 WHERE p.id IS NULL
		 ORDER BY u.created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprovisioned users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// requireAffected は更新対象の行が存在したかを確認する。
func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
