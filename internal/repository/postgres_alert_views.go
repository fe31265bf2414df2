package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"owl-alerts/common/database"
	"owl-alerts/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresAlertViewsRepository 已读记录Repository实现
type PostgresAlertViewsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertViewsRepository 创建已读记录Repository
func NewPostgresAlertViewsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertViewsRepository {
	return &PostgresAlertViewsRepository{db: db, logger: logger}
}

var _ AlertViewsRepository = (*PostgresAlertViewsRepository)(nil)

// RecordView 记录已读
// 同一事务内对 alert / users 行加 FOR SHARE 锁，保证不会写入指向已删除行的记录
func (r *PostgresAlertViewsRepository) RecordView(ctx context.Context, alertID, userID int64) (*domain.AlertView, bool, error) {
	view := &domain.AlertView{AlertID: alertID, UserID: userID}
	created := false

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM alert WHERE id = $1 FOR SHARE`, alertID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.ForeignKeyError{Entity: "alert", ID: alertID}
			}
			return translateError(err, "lock alert")
		}

		err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.ForeignKeyError{Entity: "user", ID: userID}
			}
			return translateError(err, "lock user")
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO alert_view (alert_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (alert_id, user_id) DO NOTHING
			RETURNING id, viewed_at
		`, alertID, userID).Scan(&view.ID, &view.ViewedAt)
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return translateError(err, "insert alert view")
		}

		// 已存在：返回第一次的记录，viewed_at 不变
		err = tx.QueryRowContext(ctx, `
			SELECT id, viewed_at
			FROM alert_view
			WHERE alert_id = $1 AND user_id = $2
		`, alertID, userID).Scan(&view.ID, &view.ViewedAt)
		if err != nil {
			return translateError(err, "get existing alert view")
		}
		return nil
	})
	if err != nil {
		var fkErr *domain.ForeignKeyError
		if errors.As(err, &fkErr) && fkErr.ID == 0 {
			if fkErr.Entity == "alert" {
				fkErr.ID = alertID
			} else {
				fkErr.ID = userID
			}
		}
		return nil, false, err
	}

	r.logger.Debug("Alert view recorded",
		zap.Int64("alert_id", alertID),
		zap.Int64("user_id", userID),
		zap.Bool("created", created),
	)
	return view, created, nil
}

// GetView 根据 id 查询已读记录
func (r *PostgresAlertViewsRepository) GetView(ctx context.Context, viewID int64) (*domain.AlertView, error) {
	var v domain.AlertView
	err := r.db.QueryRowContext(ctx, `
		SELECT id, alert_id, user_id, viewed_at
		FROM alert_view
		WHERE id = $1
	`, viewID).Scan(&v.ID, &v.AlertID, &v.UserID, &v.ViewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "alert view", ID: viewID}
		}
		return nil, translateError(err, "get alert view")
	}
	return &v, nil
}

// HasViewed 用户是否已读告警
func (r *PostgresAlertViewsRepository) HasViewed(ctx context.Context, alertID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_view WHERE alert_id = $1 AND user_id = $2
		)
	`, alertID, userID).Scan(&exists)
	if err != nil {
		return false, translateError(err, "check alert view")
	}
	return exists, nil
}

// ListViewsByAlert 告警的全部已读记录
func (r *PostgresAlertViewsRepository) ListViewsByAlert(ctx context.Context, alertID int64) ([]*domain.AlertView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, alert_id, user_id, viewed_at
		FROM alert_view
		WHERE alert_id = $1
		ORDER BY viewed_at, id
	`, alertID)
	if err != nil {
		return nil, translateError(err, "list alert views")
	}
	defer rows.Close()

	views := []*domain.AlertView{}
	for rows.Next() {
		var v domain.AlertView
		if err := rows.Scan(&v.ID, &v.AlertID, &v.UserID, &v.ViewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert view: %w", err)
		}
		views = append(views, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert views: %w", err)
	}
	return views, nil
}

// CountViews 批量统计已读数
func (r *PostgresAlertViewsRepository) CountViews(ctx context.Context, alertIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(alertIDs))
	if len(alertIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT alert_id, COUNT(*)
		FROM alert_view
		WHERE alert_id = ANY($1)
		GROUP BY alert_id
	`, pq.Array(alertIDs))
	if err != nil {
		return nil, translateError(err, "count alert views")
	}
	defer rows.Close()

	for rows.Next() {
		var alertID int64
		var n int
		if err := rows.Scan(&alertID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert view count: %w", err)
		}
		counts[alertID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert view counts: %w", err)
	}
	return counts, nil
}

// ListViewedAlertIDs 用户已读的告警 id
func (r *PostgresAlertViewsRepository) ListViewedAlertIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT alert_id
		FROM alert_view
		WHERE user_id = $1
		ORDER BY alert_id
	`, userID)
	if err != nil {
		return nil, translateError(err, "list viewed alerts")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate viewed alerts: %w", err)
	}
	return ids, nil
}
