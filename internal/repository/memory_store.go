package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"owl-alerts/internal/domain"
)

// MemoryStore 内存实现（DB 未启用时使用，也用于单元测试）
// 一把读写锁保证每个操作原子执行，语义与 Postgres 实现一致
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	alerts      map[int64]*domain.Alert
	views       map[int64]*domain.AlertView
	users       map[int64]struct{}
	nextAlertID int64
	nextViewID  int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		alerts: map[int64]*domain.Alert{},
		views:  map[int64]*domain.AlertView{},
		users:  map[int64]struct{}{},
	}
}

var (
	_ AlertsRepository     = (*MemoryStore)(nil)
	_ AlertViewsRepository = (*MemoryStore)(nil)
	_ UsersRepository      = (*MemoryStore)(nil)
)

// SetClock 替换时钟（测试用）
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser 登记外部用户 id
func (s *MemoryStore) AddUser(userIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		s.users[id] = struct{}{}
	}
}

func cloneAlert(a *domain.Alert, withBlob bool) *domain.Alert {
	c := *a
	if a.Pages != nil {
		c.Pages = append(domain.Pages{}, a.Pages...)
	}
	if withBlob && a.ImageBlob != nil {
		c.ImageBlob = append([]byte(nil), a.ImageBlob...)
	} else {
		c.ImageBlob = nil
	}
	c.HasImage = len(a.ImageBlob) > 0
	c.Views = nil
	return &c
}

func cloneView(v *domain.AlertView) *domain.AlertView {
	c := *v
	return &c
}

// CreateAlert 插入告警
func (s *MemoryStore) CreateAlert(_ context.Context, alert *domain.Alert) (*domain.Alert, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.CreatedBy.Valid {
		if _, ok := s.users[alert.CreatedBy.Int64]; !ok {
			return nil, &domain.ForeignKeyError{Entity: "user", ID: alert.CreatedBy.Int64}
		}
	}

	s.nextAlertID++
	stored := cloneAlert(alert, true)
	stored.ID = s.nextAlertID
	if stored.Pages == nil {
		stored.Pages = domain.Pages{}
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.alerts[stored.ID] = stored

	return cloneAlert(stored, true), nil
}

// GetAlert 查询单条告警
func (s *MemoryStore) GetAlert(_ context.Context, alertID int64) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "alert", ID: alertID}
	}
	return cloneAlert(a, true), nil
}

func (s *MemoryStore) viewedLocked(alertID, userID int64) bool {
	for _, v := range s.views {
		if v.AlertID == alertID && v.UserID == userID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) matches(a *domain.Alert, f AlertsFilter) bool {
	if f.ActiveOnly && !a.Active {
		return false
	}
	if f.Page != "" && !a.VisibleOn(f.Page) {
		return false
	}
	if f.ShowOnHome != nil && a.ShowOnHome != *f.ShowOnHome {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.MinSeverity != "" && !a.Severity.AtLeast(f.MinSeverity) {
		return false
	}
	if f.UnseenBy > 0 && s.viewedLocked(a.ID, f.UnseenBy) {
		return false
	}
	return true
}

// ListAlerts 查询告警列表
func (s *MemoryStore) ListAlerts(_ context.Context, filter AlertsFilter, page, size int) ([]*domain.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if s.matches(a, filter) {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if filter.OrderBySeverity && a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(all)
	if size > 0 {
		if page <= 0 {
			page = 1
		}
		start := (page - 1) * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}
		all = all[start:end]
	}

	out := make([]*domain.Alert, 0, len(all))
	for _, a := range all {
		out = append(out, cloneAlert(a, false))
	}
	return out, total, nil
}

// UpdateAlert 更新告警
func (s *MemoryStore) UpdateAlert(_ context.Context, alertID int64, update domain.AlertUpdate) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.alerts[alertID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "alert", ID: alertID}
	}

	next := cloneAlert(stored, true)
	if err := update.ApplyTo(next); err != nil {
		return nil, err
	}
	if next.CreatedBy.Valid && next.CreatedBy != stored.CreatedBy {
		if _, ok := s.users[next.CreatedBy.Int64]; !ok {
			return nil, &domain.ForeignKeyError{Entity: "user", ID: next.CreatedBy.Int64}
		}
	}
	next.ID = stored.ID
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = domain.NextUpdatedAt(stored.UpdatedAt, s.now())
	s.alerts[alertID] = next

	return cloneAlert(next, true), nil
}

// DeleteAlert 删除告警及其已读记录
func (s *MemoryStore) DeleteAlert(_ context.Context, alertID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alertID]; !ok {
		return 0, &domain.NotFoundError{Entity: "alert", ID: alertID}
	}
	removed := 0
	for id, v := range s.views {
		if v.AlertID == alertID {
			delete(s.views, id)
			removed++
		}
	}
	delete(s.alerts, alertID)
	return removed, nil
}

// RecordView 记录已读
func (s *MemoryStore) RecordView(_ context.Context, alertID, userID int64) (*domain.AlertView, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alertID]; !ok {
		return nil, false, &domain.ForeignKeyError{Entity: "alert", ID: alertID}
	}
	if _, ok := s.users[userID]; !ok {
		return nil, false, &domain.ForeignKeyError{Entity: "user", ID: userID}
	}
	for _, v := range s.views {
		if v.AlertID == alertID && v.UserID == userID {
			return cloneView(v), false, nil
		}
	}

	s.nextViewID++
	v := &domain.AlertView{
		ID:       s.nextViewID,
		AlertID:  alertID,
		UserID:   userID,
		ViewedAt: s.now(),
	}
	s.views[v.ID] = v
	return cloneView(v), true, nil
}

// GetView 根据 id 查询已读记录
func (s *MemoryStore) GetView(_ context.Context, viewID int64) (*domain.AlertView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[viewID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "alert view", ID: viewID}
	}
	return cloneView(v), nil
}

// HasViewed 用户是否已读告警
func (s *MemoryStore) HasViewed(_ context.Context, alertID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewedLocked(alertID, userID), nil
}

// ListViewsByAlert 告警的全部已读记录
func (s *MemoryStore) ListViewsByAlert(_ context.Context, alertID int64) ([]*domain.AlertView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []*domain.AlertView{}
	for _, v := range s.views {
		if v.AlertID == alertID {
			views = append(views, cloneView(v))
		}
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].ViewedAt.Equal(views[j].ViewedAt) {
			return views[i].ViewedAt.Before(views[j].ViewedAt)
		}
		return views[i].ID < views[j].ID
	})
	return views, nil
}

// CountViews 批量统计已读数
func (s *MemoryStore) CountViews(_ context.Context, alertIDs []int64) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(alertIDs))
	for _, id := range alertIDs {
		wanted[id] = true
	}
	counts := make(map[int64]int, len(alertIDs))
	for _, v := range s.views {
		if wanted[v.AlertID] {
			counts[v.AlertID]++
		}
	}
	return counts, nil
}

// ListViewedAlertIDs 用户已读的告警 id
func (s *MemoryStore) ListViewedAlertIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []int64{}
	for _, v := range s.views {
		if v.UserID == userID {
			ids = append(ids, v.AlertID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UserExists 用户是否存在
func (s *MemoryStore) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

// DeleteUser 删除用户及其已读记录，清空 created_by
func (s *MemoryStore) DeleteUser(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return 0, &domain.NotFoundError{Entity: "user", ID: userID}
	}
	removed := 0
	for id, v := range s.views {
		if v.UserID == userID {
			delete(s.views, id)
			removed++
		}
	}
	for _, a := range s.alerts {
		if a.CreatedBy.Valid && a.CreatedBy.Int64 == userID {
			a.CreatedBy.Valid = false
			a.CreatedBy.Int64 = 0
		}
	}
	delete(s.users, userID)
	return removed, nil
}
