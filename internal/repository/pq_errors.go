package repository

import (
	"errors"
	"fmt"
	"strings"

	"owl-alerts/internal/domain"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE
const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
	pqNotNullViolation    = "23502"
	pqStringTooLong       = "22001"
	pqInvalidText         = "22P02"
)

// translateError 将 pq 错误转换为领域错误，其他错误加上操作描述
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqForeignKeyViolation:
			return &domain.ForeignKeyError{Entity: fkEntity(pqErr.Constraint)}
		case pqUniqueViolation:
			return &domain.ConstraintError{Constraint: pqErr.Constraint}
		case pqCheckViolation, pqNotNullViolation, pqStringTooLong, pqInvalidText:
			field := pqErr.Column
			if field == "" {
				field = pqErr.Constraint
			}
			return &domain.ValidationError{Field: field, Reason: pqErr.Message}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// fkEntity 根据约束名判断被引用的实体
func fkEntity(constraint string) string {
	switch {
	case strings.Contains(constraint, "alert_id"):
		return "alert"
	case strings.Contains(constraint, "user_id"), strings.Contains(constraint, "created_by"):
		return "user"
	default:
		return "referenced row"
	}
}
