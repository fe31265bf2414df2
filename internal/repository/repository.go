package repository

import (
	"database/sql"

	"go.uber.org/zap"
)

// NewPostgresRepositories 基于同一个连接池创建全部Repository
func NewPostgresRepositories(db *sql.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Alerts: NewPostgresAlertsRepository(db, logger),
		Views:  NewPostgresAlertViewsRepository(db, logger),
		Users:  NewPostgresUsersRepository(db, logger),
	}
}

// NewMemoryRepositories 基于同一个内存存储创建全部Repository（DB 未启用时使用）
func NewMemoryRepositories(store *MemoryStore) *Repositories {
	return &Repositories{
		Alerts: store,
		Views:  store,
		Users:  store,
	}
}
