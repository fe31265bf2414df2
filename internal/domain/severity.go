package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Severity 告警严重程度（封闭集合：low / medium / high / critical）
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities 按等级从低到高排列
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity 解析输入值：空值取默认 low，大小写不敏感，其他值返回 ValidationError
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SeverityLow, nil
	}
	sev := Severity(s)
	if !sev.Valid() {
		return "", &ValidationError{
			Field:  "severity",
			Reason: fmt.Sprintf("%q is not one of low, medium, high, critical", s),
		}
	}
	return sev, nil
}

// Valid 是否为合法取值
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank 序数：low=1 ... critical=4，非法值为 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast 是否不低于 min
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func (s Severity) String() string { return string(s) }

// Value 实现 driver.Valuer
func (s Severity) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, &ValidationError{Field: "severity", Reason: fmt.Sprintf("%q is not a valid severity", string(s))}
	}
	return string(s), nil
}

// Scan 实现 sql.Scanner，从存储读取时同样校验
func (s *Severity) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return &ValidationError{Field: "severity", Reason: "stored value is NULL"}
	default:
		return fmt.Errorf("cannot scan %T into Severity", src)
	}
	sev := Severity(raw)
	if !sev.Valid() {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("stored value %q is not a valid severity", raw)}
	}
	*s = sev
	return nil
}
