package service

import (
	"strings"

	"github.com/convtrack/internal/constants"
)

// 规范状态推进顺序
var conversionStatusOrder = map[string]int{
	constants.ConversionStatusInitiated:  0,
	constants.ConversionStatusPending:    1,
	constants.ConversionStatusApproved:   2,
	constants.ConversionStatusDeclined:   3,
	constants.ConversionStatusRefunded:   4,
	constants.ConversionStatusChargeback: 5,
}

// 推广追踪来源状态词
var trackerStatusTable = map[string]string{
	"lead":       constants.ConversionStatusApproved,
	"sale":       constants.ConversionStatusApproved,
	"approved":   constants.ConversionStatusApproved,
	"confirmed":  constants.ConversionStatusApproved,
	"accepted":   constants.ConversionStatusApproved,
	"hold":       constants.ConversionStatusPending,
	"pending":    constants.ConversionStatusPending,
	"new":        constants.ConversionStatusPending,
	"processing": constants.ConversionStatusPending,
	"rejected":   constants.ConversionStatusDeclined,
	"declined":   constants.ConversionStatusDeclined,
	"trash":      constants.ConversionStatusDeclined,
	"cancelled":  constants.ConversionStatusDeclined,
	"canceled":   constants.ConversionStatusDeclined,
	"fraud":      constants.ConversionStatusDeclined,
	"refund":     constants.ConversionStatusRefunded,
	"refunded":   constants.ConversionStatusRefunded,
	"chargeback": constants.ConversionStatusChargeback,
	"click":      constants.ConversionStatusInitiated,
	"initiated":  constants.ConversionStatusInitiated,
}

// 支付来源状态词
var paymentStatusTable = map[string]string{
	"success":            constants.ConversionStatusApproved,
	"succeeded":          constants.ConversionStatusApproved,
	"paid":               constants.ConversionStatusApproved,
	"completed":          constants.ConversionStatusApproved,
	"captured":           constants.ConversionStatusApproved,
	"pending":            constants.ConversionStatusPending,
	"processing":         constants.ConversionStatusPending,
	"created":            constants.ConversionStatusPending,
	"authorized":         constants.ConversionStatusPending,
	"initiated":          constants.ConversionStatusInitiated,
	"failed":             constants.ConversionStatusDeclined,
	"declined":           constants.ConversionStatusDeclined,
	"canceled":           constants.ConversionStatusDeclined,
	"cancelled":          constants.ConversionStatusDeclined,
	"expired":            constants.ConversionStatusDeclined,
	"voided":             constants.ConversionStatusDeclined,
	"refunded":           constants.ConversionStatusRefunded,
	"refund":             constants.ConversionStatusRefunded,
	"partially_refunded": constants.ConversionStatusRefunded,
	"chargeback":         constants.ConversionStatusChargeback,
	"dispute":            constants.ConversionStatusChargeback,
	"disputed":           constants.ConversionStatusChargeback,
}

// IsCanonicalStatus 是否规范状态
func IsCanonicalStatus(status string) bool {
	_, ok := conversionStatusOrder[status]
	return ok
}

// IsConversionType 是否合法事件类型
func IsConversionType(eventType string) bool {
	switch eventType {
	case constants.ConversionTypeReg,
		constants.ConversionTypePurchase,
		constants.ConversionTypeRebill,
		constants.ConversionTypeRefund,
		constants.ConversionTypeChargeback:
		return true
	default:
		return false
	}
}

// NormalizeStatus 计算下一规范状态；prev 为空表示首个事件
func NormalizeStatus(prev, next, eventType string) string {
	if prev == "" {
		return next
	}
	reversal := next == constants.ConversionStatusRefunded || next == constants.ConversionStatusChargeback
	if eventType == constants.ConversionTypeReg && reversal {
		return prev
	}
	if reversal {
		if prev == constants.ConversionStatusApproved {
			return next
		}
		return prev
	}
	nextPos, nextOK := conversionStatusOrder[next]
	prevPos, prevOK := conversionStatusOrder[prev]
	if !nextOK || !prevOK {
		return prev
	}
	if nextPos >= prevPos {
		return next
	}
	return prev
}

// IsValidTransition 状态迁移是否会被接受
func IsValidTransition(from, to, eventType string) bool {
	return NormalizeStatus(from, to, eventType) == to
}

// MapExternalStatus 外部状态词映射为规范状态，未知值回退 pending
func MapExternalStatus(external, source string) string {
	value := strings.ToLower(strings.TrimSpace(external))
	var table map[string]string
	switch strings.ToLower(strings.TrimSpace(source)) {
	case constants.EventSourceTracker:
		table = trackerStatusTable
	case constants.EventSourcePayment:
		table = paymentStatusTable
	case constants.EventSourceFirstParty:
		if IsCanonicalStatus(value) {
			return value
		}
		return constants.ConversionStatusPending
	default:
		return constants.ConversionStatusPending
	}
	if mapped, ok := table[value]; ok {
		return mapped
	}
	return constants.ConversionStatusPending
}
