package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"owl-alerts/common/database"
	"owl-alerts/internal/domain"

	"go.uber.org/zap"
)

// PostgresUsersRepository users 表由外部维护，这里只处理与告警相关的部分
type PostgresUsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresUsersRepository 创建用户Repository
func NewPostgresUsersRepository(db *sql.DB, logger *zap.Logger) *PostgresUsersRepository {
	return &PostgresUsersRepository{db: db, logger: logger}
}

var _ UsersRepository = (*PostgresUsersRepository)(nil)

// UserExists 用户是否存在
func (r *PostgresUsersRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, translateError(err, "check user")
	}
	return exists, nil
}

// DeleteUser 删除用户：已读记录级联删除，created_by 置空，告警其他字段不变
func (r *PostgresUsersRepository) DeleteUser(ctx context.Context, userID int64) (int, error) {
	var removed int
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.NotFoundError{Entity: "user", ID: userID}
			}
			return translateError(err, "lock user")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM alert_view WHERE user_id = $1`, userID)
		if err != nil {
			return translateError(err, "delete user alert views")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted alert views: %w", err)
		}
		removed = int(n)

		if _, err := tx.ExecContext(ctx, `UPDATE alert SET created_by = NULL WHERE created_by = $1`, userID); err != nil {
			return translateError(err, "detach alert creator")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
			return translateError(err, "delete user")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("User deleted",
		zap.Int64("user_id", userID),
		zap.Int("views_removed", removed),
	)
	return removed, nil
}
