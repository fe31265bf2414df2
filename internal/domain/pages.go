package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// HomePage 首页标识：show_on_home 的告警在此页面展示
const HomePage = "home"

// Pages 页面标识列表（有序，JSONB 数组存储，不去重）
type Pages []string

// Contains 是否包含页面
func (p Pages) Contains(page string) bool {
	for _, id := range p {
		if id == page {
			return true
		}
	}
	return false
}

// Value 实现 driver.Valuer：nil 存为 '[]'
func (p Pages) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner：NULL 读为空列表
func (p *Pages) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Pages{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Pages", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*p = Pages{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return &ValidationError{Field: "pages", Reason: "stored value is not a JSON array of strings"}
	}
	*p = Pages(ids)
	return nil
}
