package postback

import (
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"
)

// Decision 单个配置的闸门判定
type Decision struct {
	Profile models.PostbackProfile
	Blocked bool
	Skipped bool
	Reason  string
}

// Proceed 是否放行投递
func (d Decision) Proceed() bool {
	return !d.Blocked && !d.Skipped
}

// Gate 反作弊与过滤闸门
type Gate struct{}

// NewGate 创建闸门
func NewGate() *Gate {
	return &Gate{}
}

// FilterProfiles 对匹配到的配置逐一判定；拦截优先于过滤
func (g *Gate) FilterProfiles(task Task, profiles []models.PostbackProfile) []Decision {
	decisions := make([]Decision, 0, len(profiles))
	level := task.Level()
	for _, profile := range profiles {
		decision := Decision{Profile: profile}
		switch level {
		case constants.AntifraudLevelHard:
			decision.Blocked = true
			decision.Reason = constants.PostbackBlockReasonHard
		case constants.AntifraudLevelSoft:
			if profile.AfSoftOnlyPending && task.Status != constants.ConversionStatusPending {
				decision.Blocked = true
				decision.Reason = constants.PostbackBlockReasonSoftStatus
			}
		}
		if !decision.Blocked {
			if reason := skipReason(task, &profile); reason != "" {
				decision.Skipped = true
				decision.Reason = reason
			}
		}
		decisions = append(decisions, decision)
	}
	return decisions
}

func skipReason(task Task, profile *models.PostbackProfile) string {
	if profile.FilterRevenueGt0 && !task.Revenue.IsPositive() {
		return constants.PostbackSkipReasonRevenue
	}
	country := strings.TrimSpace(task.ClickCountry)
	if len(profile.FilterCountriesAllow) > 0 && !profile.FilterCountriesAllow.ContainsFold(country) {
		return constants.PostbackSkipReasonCountry
	}
	if country != "" && profile.FilterCountriesDeny.ContainsFold(country) {
		return constants.PostbackSkipReasonCountry
	}
	if profile.FilterExcludeBots && task.ClickIsBot {
		return constants.PostbackSkipReasonBot
	}
	return ""
}
