package domain

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxTitleLength title 列 VARCHAR(255)
	MaxTitleLength = 255
	// MaxMimeTypeLength imagem_mime_type 列 VARCHAR(100)
	MaxMimeTypeLength = 100
)

// Alert 告警领域模型（对应 alert 表）
type Alert struct {
	ID          int64          `db:"id"`          // BIGSERIAL, PRIMARY KEY
	Title       string         `db:"title"`       // VARCHAR(255), NOT NULL
	Message     sql.NullString `db:"message"`     // TEXT, nullable
	Description sql.NullString `db:"description"` // TEXT, nullable
	Severity    Severity       `db:"severity"`    // alert_severity, DEFAULT 'low'

	// 页面定向
	Pages      Pages `db:"pages"`        // JSONB, DEFAULT '[]'
	ShowOnHome bool  `db:"show_on_home"` // BOOLEAN, DEFAULT FALSE

	// 追踪
	CreatedBy sql.NullInt64 `db:"created_by"` // BIGINT, nullable, REFERENCES users(id) ON DELETE SET NULL
	CreatedAt time.Time     `db:"created_at"` // TIMESTAMPTZ, NOT NULL
	UpdatedAt time.Time     `db:"updated_at"` // TIMESTAMPTZ, NOT NULL
	Active    bool          `db:"ativo"`      // BOOLEAN, DEFAULT TRUE（软删除标记）

	// 图片
	ImageBlob     []byte         `db:"imagem_blob"`      // BYTEA, nullable
	ImageMimeType sql.NullString `db:"imagem_mime_type"` // VARCHAR(100), nullable

	// HasImage 列表查询不加载 imagem_blob，只返回是否有图片
	HasImage bool `db:"-"`

	// Views 仅在 GetAlert(withViews=true) 时加载
	Views []*AlertView `db:"-"`
}

// AlertImage 告警图片
type AlertImage struct {
	Blob     []byte
	MimeType string
}

// Image 返回图片（没有图片时返回 nil）
func (a *Alert) Image() *AlertImage {
	if len(a.ImageBlob) == 0 || !a.ImageMimeType.Valid {
		return nil
	}
	return &AlertImage{Blob: a.ImageBlob, MimeType: a.ImageMimeType.String}
}

// VisibleOn 告警是否在页面上展示（页面定向或首页）
func (a *Alert) VisibleOn(page string) bool {
	if page == HomePage && a.ShowOnHome {
		return true
	}
	return a.Pages.Contains(page)
}

// Validate 校验写入前的完整记录
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(a.Title) > MaxTitleLength {
		return NewValidationError("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	if !a.Severity.Valid() {
		return NewValidationError("severity", fmt.Sprintf("%q is not one of low, medium, high, critical", string(a.Severity)))
	}
	for i, page := range a.Pages {
		if strings.TrimSpace(page) == "" {
			return NewValidationError("pages", fmt.Sprintf("entry %d is empty", i))
		}
	}
	return validateImage(a.ImageBlob, a.ImageMimeType)
}

func validateImage(blob []byte, mimeType sql.NullString) error {
	hasBlob := len(blob) > 0
	hasMime := mimeType.Valid && mimeType.String != ""
	if hasBlob != hasMime {
		return NewValidationError("imagem_mime_type", "image bytes and mime type must be set together")
	}
	if !hasMime {
		return nil
	}
	if len(mimeType.String) > MaxMimeTypeLength {
		return NewValidationError("imagem_mime_type", fmt.Sprintf("must be at most %d characters", MaxMimeTypeLength))
	}
	major, minor, ok := strings.Cut(mimeType.String, "/")
	if !ok || major == "" || minor == "" || strings.ContainsAny(mimeType.String, " \t") {
		return NewValidationError("imagem_mime_type", fmt.Sprintf("%q is not a media type", mimeType.String))
	}
	return nil
}

// AlertUpdate 局部更新：nil 表示不修改；sql.Null*{Valid:false} 表示清空
// id / created_at 不可修改，因此不在此结构中
type AlertUpdate struct {
	Title       *string
	Message     *sql.NullString
	Description *sql.NullString
	Severity    *Severity
	Pages       *Pages
	ShowOnHome  *bool
	CreatedBy   *sql.NullInt64
	Active      *bool

	Image      *AlertImage
	ClearImage bool
}

// IsEmpty 是否没有任何字段变更
func (u AlertUpdate) IsEmpty() bool {
	return u.Title == nil && u.Message == nil && u.Description == nil && u.Severity == nil &&
		u.Pages == nil && u.ShowOnHome == nil && u.CreatedBy == nil && u.Active == nil &&
		u.Image == nil && !u.ClearImage
}

// ApplyTo 将变更应用到当前记录并校验结果
func (u AlertUpdate) ApplyTo(a *Alert) error {
	if u.Image != nil && u.ClearImage {
		return NewValidationError("imagem_blob", "cannot set and clear the image in the same update")
	}
	next := *a
	if u.Title != nil {
		next.Title = strings.TrimSpace(*u.Title)
	}
	if u.Message != nil {
		next.Message = *u.Message
	}
	if u.Description != nil {
		next.Description = *u.Description
	}
	if u.Severity != nil {
		next.Severity = *u.Severity
	}
	if u.Pages != nil {
		next.Pages = *u.Pages
	}
	if u.ShowOnHome != nil {
		next.ShowOnHome = *u.ShowOnHome
	}
	if u.CreatedBy != nil {
		next.CreatedBy = *u.CreatedBy
	}
	if u.Active != nil {
		next.Active = *u.Active
	}
	if u.Image != nil {
		next.ImageBlob = u.Image.Blob
		next.ImageMimeType = sql.NullString{String: u.Image.MimeType, Valid: u.Image.MimeType != ""}
	}
	if u.ClearImage {
		next.ImageBlob = nil
		next.ImageMimeType = sql.NullString{}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.HasImage = len(next.ImageBlob) > 0
	*a = next
	return nil
}

// NextUpdatedAt 计算新的 updated_at：严格大于上一次的值
func NextUpdatedAt(prev, now time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
