package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money 收益金额（保留 4 位小数，兼容小额 CPA 单价）
type Money struct {
	decimal.Decimal
}

const moneyScale = 4

// NewMoneyFromDecimal 从 decimal 创建金额
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(moneyScale)}
}

// NewMoneyFromString 从字符串创建金额，空串视为 0
func NewMoneyFromString(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Money{Decimal: decimal.Zero}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}, err
	}
	return NewMoneyFromDecimal(d), nil
}

// IsPositive 是否大于 0
func (m Money) IsPositive() bool {
	return m.Decimal.GreaterThan(decimal.Zero)
}

// Plain 去除尾随 0 的展示形式（50.0000 -> 50）
func (m Money) Plain() string {
	return m.Decimal.Round(moneyScale).String()
}

// MarshalJSON 输出字符串金额
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Plain())
}

// UnmarshalJSON 解析金额（字符串或数字）
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := NewMoneyFromString(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	*m = NewMoneyFromDecimal(d)
	return nil
}

// Value 用于数据库写入
func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(moneyScale).Value()
}

// Scan 用于数据库读取
func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(moneyScale)
	return nil
}

// String 返回固定 2 位小数格式
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}
