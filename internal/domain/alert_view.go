package domain

import "time"

// AlertView 告警已读记录（对应 alert_view 表）
// (alert_id, user_id) 唯一：每个用户对每条告警只有一条记录
type AlertView struct {
	ID       int64     `db:"id"`        // BIGSERIAL, PRIMARY KEY
	AlertID  int64     `db:"alert_id"`  // BIGINT, NOT NULL, REFERENCES alert(id) ON DELETE CASCADE
	UserID   int64     `db:"user_id"`   // BIGINT, NOT NULL, REFERENCES users(id) ON DELETE CASCADE
	ViewedAt time.Time `db:"viewed_at"` // TIMESTAMPTZ, NOT NULL
}

// PageAlert 页面展示用：告警 + 当前用户是否已读
type PageAlert struct {
	Alert  *Alert
	Viewed bool
}
