package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"owl-alerts/common/database"
	"owl-alerts/internal/domain"

	"go.uber.org/zap"
)

const alertColumns = `
			id,
			title,
			message,
			description,
			severity,
			pages,
			show_on_home,
			created_by,
			created_at,
			updated_at,
			ativo,
			imagem_blob,
			imagem_mime_type`

// 列表查询不读取 imagem_blob
const alertListColumns = `
			id,
			title,
			message,
			description,
			severity,
			pages,
			show_on_home,
			created_by,
			created_at,
			updated_at,
			ativo,
			imagem_blob IS NOT NULL AS has_image,
			imagem_mime_type`

// rowScanner *sql.Row 和 *sql.Rows 的公共接口
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Message,
		&a.Description,
		&a.Severity,
		&a.Pages,
		&a.ShowOnHome,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Active,
		&a.ImageBlob,
		&a.ImageMimeType,
	); err != nil {
		return nil, err
	}
	a.HasImage = len(a.ImageBlob) > 0
	return &a, nil
}

func scanAlertListItem(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Message,
		&a.Description,
		&a.Severity,
		&a.Pages,
		&a.ShowOnHome,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Active,
		&a.HasImage,
		&a.ImageMimeType,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// nullBytes 空切片按 NULL 写入
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullInt64(n sql.NullInt64) any {
	if n.Valid {
		return n.Int64
	}
	return nil
}

func nullString(s sql.NullString) any {
	if s.Valid {
		return s.String
	}
	return nil
}

// PostgresAlertsRepository 告警Repository实现
type PostgresAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepository 创建告警Repository
func NewPostgresAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

// CreateAlert 插入告警
func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, alert *domain.Alert) (*domain.Alert, error) {
	if alert == nil {
		return nil, fmt.Errorf("alert is required")
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO alert (
			title, message, description, severity, pages, show_on_home,
			created_by, ativo, imagem_blob, imagem_mime_type
		) VALUES (
			$1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10
		)
		RETURNING id, created_at, updated_at
	`

	created := *alert
	if created.Pages == nil {
		created.Pages = domain.Pages{}
	}
	err := r.db.QueryRowContext(ctx, query,
		created.Title,
		nullString(created.Message),
		nullString(created.Description),
		created.Severity,
		created.Pages,
		created.ShowOnHome,
		nullInt64(created.CreatedBy),
		created.Active,
		nullBytes(created.ImageBlob),
		nullString(created.ImageMimeType),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		err = translateError(err, "create alert")
		var fkErr *domain.ForeignKeyError
		if errors.As(err, &fkErr) {
			fkErr.ID = created.CreatedBy.Int64
		}
		return nil, err
	}
	created.HasImage = len(created.ImageBlob) > 0
	created.Views = nil

	r.logger.Debug("Alert created",
		zap.Int64("alert_id", created.ID),
		zap.String("severity", created.Severity.String()),
	)
	return &created, nil
}

// GetAlert 根据 id 查询告警
func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, alertID int64) (*domain.Alert, error) {
	query := `SELECT` + alertColumns + `
		FROM alert
		WHERE id = $1
	`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "alert", ID: alertID}
		}
		return nil, translateError(err, "get alert")
	}
	return alert, nil
}

// ListAlerts 查询告警列表
func (r *PostgresAlertsRepository) ListAlerts(ctx context.Context, filter AlertsFilter, page, size int) ([]*domain.Alert, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.ActiveOnly {
		where = append(where, "ativo = TRUE")
	}
	if filter.Page != "" {
		pageJSON, err := json.Marshal([]string{filter.Page})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode page filter: %w", err)
		}
		if filter.Page == domain.HomePage {
			where = append(where, fmt.Sprintf("(show_on_home = TRUE OR pages @> $%d::jsonb)", argIdx))
		} else {
			where = append(where, fmt.Sprintf("pages @> $%d::jsonb", argIdx))
		}
		args = append(args, string(pageJSON))
		argIdx++
	}
	if filter.ShowOnHome != nil {
		where = append(where, fmt.Sprintf("show_on_home = $%d", argIdx))
		args = append(args, *filter.ShowOnHome)
		argIdx++
	}
	if filter.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}
	if filter.MinSeverity != "" {
		// 枚举类型按声明顺序比较：low < medium < high < critical
		where = append(where, fmt.Sprintf("severity >= $%d", argIdx))
		args = append(args, filter.MinSeverity)
		argIdx++
	}
	if filter.UnseenBy > 0 {
		where = append(where, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM alert_view v WHERE v.alert_id = alert.id AND v.user_id = $%d)", argIdx))
		args = append(args, filter.UnseenBy)
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM alert WHERE %s`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, translateError(err, "count alerts")
	}

	orderBy := "created_at DESC, id DESC"
	if filter.OrderBySeverity {
		orderBy = "severity DESC, created_at DESC, id DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alert
		WHERE %s
		ORDER BY %s
	`, alertListColumns, whereClause, orderBy)
	if size > 0 {
		if page <= 0 {
			page = 1
		}
		query += fmt.Sprintf("LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, size, (page-1)*size)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, translateError(err, "list alerts")
	}
	defer rows.Close()

	alerts := []*domain.Alert{}
	for rows.Next() {
		alert, err := scanAlertListItem(rows)
		if err != nil {
			return nil, 0, translateError(err, "scan alert")
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

// UpdateAlert 更新告警
// 使用 SELECT ... FOR UPDATE 串行化同一行的并发写入；updated_at 严格递增
func (r *PostgresAlertsRepository) UpdateAlert(ctx context.Context, alertID int64, update domain.AlertUpdate) (*domain.Alert, error) {
	var updated *domain.Alert
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanAlert(tx.QueryRowContext(ctx, `SELECT`+alertColumns+`
			FROM alert
			WHERE id = $1
			FOR UPDATE
		`, alertID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.NotFoundError{Entity: "alert", ID: alertID}
			}
			return translateError(err, "lock alert")
		}

		if err := update.ApplyTo(current); err != nil {
			return err
		}

		query := `
			UPDATE alert SET
				title = $2,
				message = $3,
				description = $4,
				severity = $5,
				pages = $6::jsonb,
				show_on_home = $7,
				created_by = $8,
				ativo = $9,
				imagem_blob = $10,
				imagem_mime_type = $11,
				updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
			WHERE id = $1
			RETURNING updated_at
		`
		pages := current.Pages
		if pages == nil {
			pages = domain.Pages{}
		}
		err = tx.QueryRowContext(ctx, query,
			alertID,
			current.Title,
			nullString(current.Message),
			nullString(current.Description),
			current.Severity,
			pages,
			current.ShowOnHome,
			nullInt64(current.CreatedBy),
			current.Active,
			nullBytes(current.ImageBlob),
			nullString(current.ImageMimeType),
		).Scan(&current.UpdatedAt)
		if err != nil {
			err = translateError(err, "update alert")
			var fkErr *domain.ForeignKeyError
			if errors.As(err, &fkErr) {
				fkErr.ID = current.CreatedBy.Int64
			}
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Alert updated",
		zap.Int64("alert_id", alertID),
		zap.Time("updated_at", updated.UpdatedAt),
	)
	return updated, nil
}

// DeleteAlert 删除告警及其全部已读记录（同一事务）
func (r *PostgresAlertsRepository) DeleteAlert(ctx context.Context, alertID int64) (int, error) {
	var removed int
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM alert WHERE id = $1 FOR UPDATE`, alertID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.NotFoundError{Entity: "alert", ID: alertID}
			}
			return translateError(err, "lock alert")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM alert_view WHERE alert_id = $1`, alertID)
		if err != nil {
			return translateError(err, "delete alert views")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted alert views: %w", err)
		}
		removed = int(n)

		if _, err := tx.ExecContext(ctx, `DELETE FROM alert WHERE id = $1`, alertID); err != nil {
			return translateError(err, "delete alert")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("Alert deleted",
		zap.Int64("alert_id", alertID),
		zap.Int("views_removed", removed),
	)
	return removed, nil
}
