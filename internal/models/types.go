package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// JSON 通用 JSON 对象类型（转化明细等自由字段）
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	*j = make(JSON)
	return scanJSONColumn(value, j)
}

// Merge 按键合并，后写覆盖同名键，返回新对象
func (j JSON) Merge(other map[string]interface{}) JSON {
	merged := make(JSON, len(j)+len(other))
	for k, v := range j {
		merged[k] = v
	}
	for k, v := range other {
		if strings.TrimSpace(k) == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// StringArray 字符串数组类型，用于国家列表等
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	*s = StringArray{}
	return scanJSONColumn(value, s)
}

// ContainsFold 忽略大小写判断是否包含
func (s StringArray) ContainsFold(target string) bool {
	target = strings.TrimSpace(target)
	for _, item := range s {
		if strings.EqualFold(strings.TrimSpace(item), target) {
			return true
		}
	}
	return false
}

// StringMap 字符串映射类型（宏模板、子参数等）
type StringMap map[string]string

// Value 实现 driver.Valuer 接口
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口
func (m *StringMap) Scan(value interface{}) error {
	*m = StringMap{}
	return scanJSONColumn(value, m)
}

// StatusMap 事件类型 -> 规范状态 -> 下游状态词
type StatusMap map[string]map[string]string

// Value 实现 driver.Valuer 接口
func (m StatusMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口
func (m *StatusMap) Scan(value interface{}) error {
	*m = StatusMap{}
	return scanJSONColumn(value, m)
}

// Lookup 查找映射后的下游状态
func (m StatusMap) Lookup(eventType, status string) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	byStatus, ok := m[eventType]
	if !ok {
		return "", false
	}
	mapped, ok := byStatus[status]
	if !ok || strings.TrimSpace(mapped) == "" {
		return "", false
	}
	return mapped, true
}

func scanJSONColumn(value interface{}, dest interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
