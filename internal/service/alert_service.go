package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"owl-alerts/internal/domain"
	"owl-alerts/internal/repository"
	"owl-alerts/internal/store"

	"go.uber.org/zap"
)

// AlertService 告警服务
// 缓存和事件发布是可选的（nil 时跳过），失败只记录日志，不影响已提交的写入
type AlertService struct {
	repos     *repository.Repositories
	cache     *store.ViewCache
	publisher EventPublisher
	fetcher   ImageFetcher
	logger    *zap.Logger
}

// NewAlertService 创建告警服务
func NewAlertService(
	repos *repository.Repositories,
	cache *store.ViewCache,
	publisher EventPublisher,
	fetcher ImageFetcher,
	logger *zap.Logger,
) *AlertService {
	return &AlertService{
		repos:     repos,
		cache:     cache,
		publisher: publisher,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// CreateAlertRequest 创建告警请求
type CreateAlertRequest struct {
	Title         string
	Message       string // 空白表示不设置
	Description   string // 空白表示不设置
	Severity      string // 空值默认 low
	Pages         []string
	ShowOnHome    bool
	CreatedBy     *int64
	ImageBlob     []byte
	ImageMimeType string
}

// CreateAlert 创建告警（ativo = true）
func (s *AlertService) CreateAlert(ctx context.Context, req CreateAlertRequest) (*domain.Alert, error) {
	severity, err := domain.ParseSeverity(req.Severity)
	if err != nil {
		return nil, err
	}
	pages, err := normalizePages(req.Pages)
	if err != nil {
		return nil, err
	}

	alert := &domain.Alert{
		Title:       strings.TrimSpace(req.Title),
		Message:     optionalText(req.Message),
		Description: optionalText(req.Description),
		Severity:    severity,
		Pages:       pages,
		ShowOnHome:  req.ShowOnHome,
		Active:      true,
	}
	if len(req.ImageBlob) > 0 || strings.TrimSpace(req.ImageMimeType) != "" {
		mimeType := strings.TrimSpace(req.ImageMimeType)
		alert.ImageBlob = req.ImageBlob
		alert.ImageMimeType = sql.NullString{String: mimeType, Valid: mimeType != ""}
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	if req.CreatedBy != nil {
		exists, err := s.repos.Users.UserExists(ctx, *req.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("failed to check creator: %w", err)
		}
		if !exists {
			return nil, &domain.ForeignKeyError{Entity: "user", ID: *req.CreatedBy}
		}
		alert.CreatedBy = sql.NullInt64{Int64: *req.CreatedBy, Valid: true}
	}

	created, err := s.repos.Alerts.CreateAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.Info("Alert created",
		zap.Int64("alert_id", created.ID),
		zap.String("severity", created.Severity.String()),
		zap.Strings("pages", created.Pages),
		zap.Bool("show_on_home", created.ShowOnHome),
	)
	s.publish(ctx, newAlertEvent(EventAlertCreated, created))
	return created, nil
}

// GetAlert 查询告警（包含图片），withViews 时加载已读记录
func (s *AlertService) GetAlert(ctx context.Context, alertID int64, withViews bool) (*domain.Alert, error) {
	alert, err := s.repos.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	if withViews {
		views, err := s.repos.Views.ListViewsByAlert(ctx, alertID)
		if err != nil {
			return nil, fmt.Errorf("failed to list alert views: %w", err)
		}
		alert.Views = views
	}
	return alert, nil
}

// ListAlertsRequest 查询告警列表请求
type ListAlertsRequest struct {
	ActiveOnly      bool
	PageID          string // 页面定向过滤
	ShowOnHome      *bool
	Severity        string
	MinSeverity     string
	UnseenBy        int64
	OrderBySeverity bool

	Page int // 默认 1
	Size int // 0 时默认 20；负数表示不分页
}

// ListAlertsResponse 查询告警列表响应（不包含图片内容）
type ListAlertsResponse struct {
	Items []*domain.Alert `json:"items"`
	Total int             `json:"total"`
}

// ListAlerts 查询告警列表
func (s *AlertService) ListAlerts(ctx context.Context, req ListAlertsRequest) (*ListAlertsResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size == 0 {
		req.Size = 20
	}

	filter := repository.AlertsFilter{
		ActiveOnly:      req.ActiveOnly,
		Page:            strings.TrimSpace(req.PageID),
		ShowOnHome:      req.ShowOnHome,
		UnseenBy:        req.UnseenBy,
		OrderBySeverity: req.OrderBySeverity,
	}
	if strings.TrimSpace(req.Severity) != "" {
		sev, err := domain.ParseSeverity(req.Severity)
		if err != nil {
			return nil, err
		}
		filter.Severity = sev
	}
	if strings.TrimSpace(req.MinSeverity) != "" {
		sev, err := domain.ParseSeverity(req.MinSeverity)
		if err != nil {
			return nil, err
		}
		filter.MinSeverity = sev
	}

	alerts, total, err := s.repos.Alerts.ListAlerts(ctx, filter, req.Page, req.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return &ListAlertsResponse{Items: alerts, Total: total}, nil
}

// ListForPage 页面上展示的有效告警（home 页同时包含 show_on_home），按严重程度、创建时间降序
// userID > 0 时标记该用户是否已读
func (s *AlertService) ListForPage(ctx context.Context, pageID string, userID int64) ([]domain.PageAlert, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, domain.NewValidationError("page", "is required")
	}

	alerts, _, err := s.repos.Alerts.ListAlerts(ctx, repository.AlertsFilter{
		ActiveOnly:      true,
		Page:            pageID,
		OrderBySeverity: true,
	}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for page %s: %w", pageID, err)
	}

	viewed := map[int64]bool{}
	if userID > 0 && len(alerts) > 0 {
		ids, err := s.repos.Views.ListViewedAlertIDs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list viewed alerts: %w", err)
		}
		for _, id := range ids {
			viewed[id] = true
		}
	}

	items := make([]domain.PageAlert, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, domain.PageAlert{Alert: a, Viewed: viewed[a.ID]})
	}
	return items, nil
}

// UpdateAlert 局部更新告警，刷新 updated_at
func (s *AlertService) UpdateAlert(ctx context.Context, alertID int64, update domain.AlertUpdate) (*domain.Alert, error) {
	return s.update(ctx, alertID, update, EventAlertUpdated)
}

// DeactivateAlert 软删除：ativo = false，保留已读记录
func (s *AlertService) DeactivateAlert(ctx context.Context, alertID int64) (*domain.Alert, error) {
	active := false
	return s.update(ctx, alertID, domain.AlertUpdate{Active: &active}, EventAlertDeactivated)
}

// ActivateAlert 重新启用告警
func (s *AlertService) ActivateAlert(ctx context.Context, alertID int64) (*domain.Alert, error) {
	active := true
	return s.update(ctx, alertID, domain.AlertUpdate{Active: &active}, EventAlertActivated)
}

func (s *AlertService) update(ctx context.Context, alertID int64, update domain.AlertUpdate, eventType string) (*domain.Alert, error) {
	if update.Pages != nil {
		pages, err := normalizePages(*update.Pages)
		if err != nil {
			return nil, err
		}
		update.Pages = &pages
	}

	updated, err := s.repos.Alerts.UpdateAlert(ctx, alertID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	s.logger.Info("Alert updated",
		zap.Int64("alert_id", alertID),
		zap.String("event_type", eventType),
		zap.Bool("ativo", updated.Active),
	)
	s.publish(ctx, newAlertEvent(eventType, updated))
	return updated, nil
}

// DeleteAlert 删除告警及其已读记录，返回删除的已读记录数
func (s *AlertService) DeleteAlert(ctx context.Context, alertID int64) (int, error) {
	removed, err := s.repos.Alerts.DeleteAlert(ctx, alertID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alert: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.PurgeAlert(ctx, alertID); err != nil {
			s.logger.Warn("Failed to purge view cache for alert",
				zap.Int64("alert_id", alertID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Alert deleted",
		zap.Int64("alert_id", alertID),
		zap.Int("views_removed", removed),
	)
	s.publish(ctx, &AlertEvent{EventType: EventAlertDeleted, AlertID: alertID})
	return removed, nil
}

// RecordView 记录用户已读；重复调用返回已有记录，created = false
func (s *AlertService) RecordView(ctx context.Context, alertID, userID int64) (*domain.AlertView, bool, error) {
	view, created, err := s.repos.Views.RecordView(ctx, alertID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record view: %w", err)
	}

	s.markCachedView(ctx, alertID, userID)
	if created {
		s.logger.Debug("Alert view recorded",
			zap.Int64("alert_id", alertID),
			zap.Int64("user_id", userID),
		)
		s.publish(ctx, &AlertEvent{EventType: EventAlertViewed, AlertID: alertID, UserID: userID})
	}
	return view, created, nil
}

// HasViewed 用户是否已读告警
// 只有已读会命中缓存，未读总是回源查询
func (s *AlertService) HasViewed(ctx context.Context, alertID, userID int64) (bool, error) {
	if s.cache != nil {
		viewed, err := s.cache.Get(ctx, alertID, userID)
		if err == nil && viewed {
			return true, nil
		}
		if err != nil && !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("Failed to read view cache",
				zap.Int64("alert_id", alertID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	viewed, err := s.repos.Views.HasViewed(ctx, alertID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check view: %w", err)
	}
	if viewed {
		s.markCachedView(ctx, alertID, userID)
	}
	return viewed, nil
}

// ListViews 告警的已读记录
func (s *AlertService) ListViews(ctx context.Context, alertID int64) ([]*domain.AlertView, error) {
	views, err := s.repos.Views.ListViewsByAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert views: %w", err)
	}
	return views, nil
}

// CountViews 批量统计已读数
func (s *AlertService) CountViews(ctx context.Context, alertIDs []int64) (map[int64]int, error) {
	counts, err := s.repos.Views.CountViews(ctx, alertIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count alert views: %w", err)
	}
	return counts, nil
}

// ListViewedAlertIDs 用户已读的告警 id
func (s *AlertService) ListViewedAlertIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.repos.Views.ListViewedAlertIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list viewed alerts: %w", err)
	}
	return ids, nil
}

// GetAlertImage 告警图片；没有图片时返回 NotFoundError
func (s *AlertService) GetAlertImage(ctx context.Context, alertID int64) (*domain.AlertImage, error) {
	alert, err := s.repos.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	img := alert.Image()
	if img == nil {
		return nil, &domain.NotFoundError{Entity: "alert image", ID: alertID}
	}
	return img, nil
}

// AttachImageFromURL 下载图片并写入告警
func (s *AlertService) AttachImageFromURL(ctx context.Context, alertID int64, imageURL string) (*domain.Alert, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("image fetcher is not configured")
	}
	img, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, alertID, domain.AlertUpdate{Image: img}, EventAlertUpdated)
}

// DeleteUser 删除用户：删除其已读记录，清空其创建的告警的 created_by
func (s *AlertService) DeleteUser(ctx context.Context, userID int64) (int, error) {
	removed, err := s.repos.Users.DeleteUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.PurgeUser(ctx, userID); err != nil {
			s.logger.Warn("Failed to purge view cache for user",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("User deleted",
		zap.Int64("user_id", userID),
		zap.Int("views_removed", removed),
	)
	s.publish(ctx, &AlertEvent{EventType: EventUserDeleted, UserID: userID})
	return removed, nil
}

func (s *AlertService) markCachedView(ctx context.Context, alertID, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkViewed(ctx, alertID, userID); err != nil {
		s.logger.Warn("Failed to write view cache",
			zap.Int64("alert_id", alertID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *AlertService) publish(ctx context.Context, event *AlertEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish alert event",
			zap.String("event_type", event.EventType),
			zap.Int64("alert_id", event.AlertID),
			zap.Error(err),
		)
	}
}

// normalizePages 去掉首尾空白，拒绝空条目；保持顺序，不去重
func normalizePages(pages []string) (domain.Pages, error) {
	out := make(domain.Pages, 0, len(pages))
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, domain.NewValidationError("pages", fmt.Sprintf("entry %d is empty", i))
		}
		out = append(out, p)
	}
	return out, nil
}

func optionalText(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
