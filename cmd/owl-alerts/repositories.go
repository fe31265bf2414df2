package main

import (
	"owl-alerts/common/database"
	"owl-alerts/internal/config"
	"owl-alerts/internal/repository"

	"go.uber.org/zap"
)

// openRepositories 打开 Postgres 存储；DB 未启用或连接失败时使用内存存储
// persistent 为 false 表示内存存储：没有用户表数据，已读记录无法写入
func openRepositories(cfg *config.Config, log *zap.Logger) (repos *repository.Repositories, persistent bool, closeFn func()) {
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err == nil {
			log.Info("DB enabled for owl-alerts")
			return repository.NewPostgresRepositories(db, log), true, func() { _ = database.Close(db) }
		}
		log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
	} else {
		log.Warn("DB disabled, using memory store")
	}
	return repository.NewMemoryRepositories(repository.NewMemoryStore()), false, func() {}
}
