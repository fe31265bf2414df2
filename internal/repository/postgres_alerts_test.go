package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"owl-alerts/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var alertColumnNames = []string{
	"id", "title", "message", "description", "severity", "pages", "show_on_home",
	"created_by", "created_at", "updated_at", "ativo", "imagem_blob", "imagem_mime_type",
}

var alertListColumnNames = []string{
	"id", "title", "message", "description", "severity", "pages", "show_on_home",
	"created_by", "created_at", "updated_at", "ativo", "has_image", "imagem_mime_type",
}

func setupMockAlertsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresAlertsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewPostgresAlertsRepository(db, logger)

	return db, mock, repo
}

func maintenanceAlert() *domain.Alert {
	return &domain.Alert{
		Title:      "Maintenance",
		Severity:   domain.SeverityHigh,
		Pages:      domain.Pages{"dashboard"},
		ShowOnHome: true,
		Active:     true,
	}
}

// ============================================
// CreateAlert
// ============================================

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	createdAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO alert`).
		WithArgs("Maintenance", nil, nil, "high", `["dashboard"]`, true, nil, true, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), createdAt, createdAt))

	alert, err := repo.CreateAlert(context.Background(), maintenanceAlert())

	require.NoError(t, err)
	assert.Equal(t, int64(1), alert.ID)
	assert.Equal(t, createdAt, alert.CreatedAt)
	assert.Equal(t, alert.CreatedAt, alert.UpdatedAt)
	assert.True(t, alert.Active)
	assert.Empty(t, alert.Views)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_WithImageAndCreator(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	a := maintenanceAlert()
	a.Pages = nil
	a.CreatedBy = sql.NullInt64{Int64: 7, Valid: true}
	a.ImageBlob = []byte{0x89, 'P', 'N', 'G'}
	a.ImageMimeType = sql.NullString{String: "image/png", Valid: true}

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO alert`).
		WithArgs("Maintenance", nil, nil, "high", `[]`, true, int64(7), true, []byte{0x89, 'P', 'N', 'G'}, "image/png").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(2), now, now))

	alert, err := repo.CreateAlert(context.Background(), a)

	require.NoError(t, err)
	assert.True(t, alert.HasImage)
	assert.Equal(t, domain.Pages{}, alert.Pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_UnknownCreator(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	a := maintenanceAlert()
	a.CreatedBy = sql.NullInt64{Int64: 99, Valid: true}

	mock.ExpectQuery(`INSERT INTO alert`).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "alert_created_by_fkey"})

	_, err := repo.CreateAlert(context.Background(), a)

	var fkErr *domain.ForeignKeyError
	require.ErrorAs(t, err, &fkErr)
	assert.Equal(t, "user", fkErr.Entity)
	assert.Equal(t, int64(99), fkErr.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_InvalidSeverityNeverReachesDB(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	a := maintenanceAlert()
	a.Severity = "urgent"

	_, err := repo.CreateAlert(context.Background(), a)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// GetAlert / ListAlerts
// ============================================

func TestGetAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(alertColumnNames).AddRow(
		int64(1), "Maintenance", "Scheduled downtime", nil, "high", []byte(`["dashboard","billing"]`), true,
		int64(7), now, now, true, []byte{1, 2}, "image/png",
	)
	mock.ExpectQuery(`SELECT`).WithArgs(int64(1)).WillReturnRows(rows)

	alert, err := repo.GetAlert(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Maintenance", alert.Title)
	assert.Equal(t, "Scheduled downtime", alert.Message.String)
	assert.False(t, alert.Description.Valid)
	assert.Equal(t, domain.SeverityHigh, alert.Severity)
	assert.Equal(t, domain.Pages{"dashboard", "billing"}, alert.Pages)
	assert.Equal(t, int64(7), alert.CreatedBy.Int64)
	assert.True(t, alert.HasImage)
	require.NotNil(t, alert.Image())
	assert.Equal(t, "image/png", alert.Image().MimeType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs(int64(404)).WillReturnRows(sqlmock.NewRows(alertColumnNames))

	_, err := repo.GetAlert(context.Background(), 404)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(404), nf.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_CorruptSeverity(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(alertColumnNames).AddRow(
		int64(1), "Broken", nil, nil, "severe", "[]", false, nil, now, now, true, nil, nil,
	))

	_, err := repo.GetAlert(context.Background(), 1)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListAlerts_ActiveForPageUnseen(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM alert WHERE TRUE AND ativo = TRUE AND pages @> $1::jsonb AND NOT EXISTS`)).
		WithArgs(`["dashboard"]`, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs(`["dashboard"]`, int64(42), 20, 20).
		WillReturnRows(sqlmock.NewRows(alertListColumnNames).AddRow(
			int64(3), "Maintenance", nil, nil, "medium", `["dashboard"]`, false, nil, now, now, true, true, "image/jpeg",
		))

	alerts, total, err := repo.ListAlerts(context.Background(), AlertsFilter{
		ActiveOnly: true,
		Page:       "dashboard",
		UnseenBy:   42,
	}, 2, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].HasImage)
	assert.Nil(t, alerts[0].ImageBlob)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlerts_HomeAndSeverity(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`(show_on_home = TRUE OR pages @> $1::jsonb) AND severity >= $2`)).
		WithArgs(`["home"]`, "high").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY severity DESC, created_at DESC, id DESC`).
		WithArgs(`["home"]`, "high").
		WillReturnRows(sqlmock.NewRows(alertListColumnNames))

	alerts, total, err := repo.ListAlerts(context.Background(), AlertsFilter{
		Page:            domain.HomePage,
		MinSeverity:     domain.SeverityHigh,
		OrderBySeverity: true,
	}, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, alerts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// UpdateAlert
// ============================================

func TestUpdateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	createdAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	updatedAt := createdAt.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(alertColumnNames).AddRow(
		int64(1), "Maintenance", "Scheduled downtime", nil, "high", `["dashboard"]`, true,
		nil, createdAt, createdAt, true, nil, nil,
	))
	mock.ExpectQuery(`UPDATE alert SET`).
		WithArgs(int64(1), "Maintenance", "Scheduled downtime", nil, "high", `["dashboard"]`, true, nil, false, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updatedAt))
	mock.ExpectCommit()

	off := false
	alert, err := repo.UpdateAlert(context.Background(), 1, domain.AlertUpdate{Active: &off})

	require.NoError(t, err)
	assert.False(t, alert.Active)
	assert.Equal(t, "Maintenance", alert.Title)
	assert.Equal(t, createdAt, alert.CreatedAt)
	assert.Equal(t, updatedAt, alert.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(alertColumnNames))
	mock.ExpectRollback()

	title := "New"
	_, err := repo.UpdateAlert(context.Background(), 5, domain.AlertUpdate{Title: &title})

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_InvalidPatchRollsBack(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(alertColumnNames).AddRow(
		int64(1), "Maintenance", nil, nil, "low", `[]`, false, nil, now, now, true, nil, nil,
	))
	mock.ExpectRollback()

	// 只设置 mime type，没有图片数据
	_, err := repo.UpdateAlert(context.Background(), 1, domain.AlertUpdate{
		Image: &domain.AlertImage{MimeType: "image/png"},
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// DeleteAlert
// ============================================

func TestDeleteAlert_CascadesViews(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM alert WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM alert_view WHERE alert_id = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM alert WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.DeleteAlert(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM alert`).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.DeleteAlert(context.Background(), 8)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlert_ParentDeleteFailureRollsBack(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM alert`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`DELETE FROM alert_view`).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM alert WHERE`).WithArgs(int64(1)).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.DeleteAlert(context.Background(), 1)

	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
