package domain

import (
	"errors"
	"fmt"
)

// 错误类别哨兵，配合 errors.Is 使用
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForeignKey = errors.New("foreign key violation")
	ErrConstraint = errors.New("constraint violation")
)

// ValidationError 输入或存储值不合法（severity、必填字段、图片/类型不一致等）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError 目标 Alert / AlertView / User 不存在
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ForeignKeyError 引用的 Alert 或 User 不存在
type ForeignKeyError struct {
	Entity string
	ID     int64
}

func (e *ForeignKeyError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("referenced %s does not exist", e.Entity)
	}
	return fmt.Sprintf("referenced %s %d does not exist", e.Entity, e.ID)
}

func (e *ForeignKeyError) Unwrap() error { return ErrForeignKey }

// ConstraintError 违反唯一约束等
type ConstraintError struct {
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraint }

// NewValidationError 便捷构造
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
