package repository

import (
	"context"

	"owl-alerts/internal/domain"
)

// AlertsRepository 告警Repository接口
// Repository层只负责数据访问和存储层约束，输入校验在Service层完成
type AlertsRepository interface {
	// CreateAlert 插入告警，返回带 id / created_at / updated_at 的记录
	// created_by 不存在时返回 ForeignKeyError
	CreateAlert(ctx context.Context, alert *domain.Alert) (*domain.Alert, error)

	// GetAlert 查询单条告警（包含 imagem_blob）
	GetAlert(ctx context.Context, alertID int64) (*domain.Alert, error)

	// ListAlerts 查询告警列表（不加载 imagem_blob，只返回 HasImage）
	// size <= 0 表示不分页
	ListAlerts(ctx context.Context, filter AlertsFilter, page, size int) ([]*domain.Alert, int, error)

	// UpdateAlert 行锁内应用变更并刷新 updated_at
	UpdateAlert(ctx context.Context, alertID int64, update domain.AlertUpdate) (*domain.Alert, error)

	// DeleteAlert 同一事务内删除所有 alert_view 子记录和告警本身，返回删除的已读记录数
	DeleteAlert(ctx context.Context, alertID int64) (int, error)
}

// AlertViewsRepository 告警已读记录Repository接口
type AlertViewsRepository interface {
	// RecordView 记录已读：同一 (alert_id, user_id) 重复调用返回已有记录，created=false
	// alert 或 user 不存在时返回 ForeignKeyError
	RecordView(ctx context.Context, alertID, userID int64) (view *domain.AlertView, created bool, err error)

	// GetView 根据 id 查询已读记录
	GetView(ctx context.Context, viewID int64) (*domain.AlertView, error)

	// HasViewed 用户是否已读告警
	HasViewed(ctx context.Context, alertID, userID int64) (bool, error)

	// ListViewsByAlert 告警的全部已读记录（按 viewed_at 升序）
	ListViewsByAlert(ctx context.Context, alertID int64) ([]*domain.AlertView, error)

	// CountViews 批量统计已读数，没有记录的告警不出现在结果中
	CountViews(ctx context.Context, alertIDs []int64) (map[int64]int, error)

	// ListViewedAlertIDs 用户已读的告警 id
	ListViewedAlertIDs(ctx context.Context, userID int64) ([]int64, error)
}

// UsersRepository 用户（外部实体）相关的数据访问
type UsersRepository interface {
	UserExists(ctx context.Context, userID int64) (bool, error)

	// DeleteUser 同一事务内删除用户的已读记录、清空其创建的告警的 created_by、删除用户
	DeleteUser(ctx context.Context, userID int64) (int, error)
}

// AlertsFilter 告警查询过滤器
type AlertsFilter struct {
	ActiveOnly      bool            // 只查询 ativo = TRUE
	Page            string          // 可选，页面定向（home 同时匹配 show_on_home）
	ShowOnHome      *bool           // 可选
	Severity        domain.Severity // 可选，精确匹配
	MinSeverity     domain.Severity // 可选，不低于该等级
	UnseenBy        int64           // 可选，排除该用户已读的告警
	OrderBySeverity bool            // 先按严重程度降序，再按创建时间降序
}

// Repositories 一组Repository
type Repositories struct {
	Alerts AlertsRepository
	Views  AlertViewsRepository
	Users  UsersRepository
}
