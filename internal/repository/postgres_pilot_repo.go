package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// PostgresPilotRepo はPostgreSQLを使用したパイロット申込リポジトリ。
type PostgresPilotRepo struct {
	db *sql.DB
}

// NewPostgresPilotRepo はPostgresPilotRepoを生成する。
func NewPostgresPilotRepo(db *sql.DB) *PostgresPilotRepo {
	return &PostgresPilotRepo{db: db}
}

// Create は申込を作成する。
func (r *PostgresPilotRepo) Create(ctx context.Context, app *model.PilotApplication) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pilot_applications
		 (id, user_id, kind, company_name, website, summary, reason, purpose, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.UserID, string(app.Kind), app.CompanyName, app.Website,
		app.Summary, app.Reason, app.Purpose, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pilot application: %w", err)
	}
	return nil
}

// ListPendingSiteChecks はWebサイト確認が未実施の申込を古い順に取得する。
func (r *PostgresPilotRepo) ListPendingSiteChecks(ctx context.Context, limit int) ([]*model.PilotApplication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, company_name, website, created_at
		 FROM pilot_applications
		 WHERE website <> '' AND site_checked_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending site checks: %w", err)
	}
	defer rows.Close()

	var apps []*model.PilotApplication
	for rows.Next() {
		var (
			app    model.PilotApplication
			userID sql.NullString
			kind   string
		)
		if err := rows.Scan(&app.ID, &userID, &kind, &app.CompanyName, &app.Website, &app.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pilot application: %w", err)
		}
		app.UserID = nullStringPtr(userID)
		app.Kind = model.PilotKind(kind)
		apps = append(apps, &app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pilot applications: %w", err)
	}
	return apps, nil
}

// MarkSiteChecked はWebサイト確認結果を記録する。
func (r *PostgresPilotRepo) MarkSiteChecked(ctx context.Context, id string, statusCode int, title string, checkedAt time.Time) error {
	var code sql.NullInt64
	if statusCode > 0 {
		code = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	}
	var siteTitle sql.NullString
	if title != "" {
		siteTitle = sql.NullString{String: title, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE pilot_applications
		 SET site_status_code = $2, site_title = $3, site_checked_at = $4
		 WHERE id = $1`,
		id, code, siteTitle, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark site checked: %w", err)
	}
	return requireAffected(result, "pilot application", id)
}

// compile-time interface check
var _ PilotRepository = (*PostgresPilotRepo)(nil)
