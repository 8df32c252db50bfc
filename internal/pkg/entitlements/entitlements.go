package entitlements

import (
	"strings"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanCreator Plan = "creator"
	PlanStudio  Plan = "studio"
)

// VideoLimit returns how many videos a plan may generate per billing period.
func VideoLimit(plan Plan) int {
	switch plan {
	case PlanStudio:
		return 120
	case PlanCreator:
		return 30
	default:
		return 3
	}
}

// NormalizePlan maps arbitrary plan strings to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanCreator):
		return PlanCreator
	case string(PlanStudio):
		return PlanStudio
	default:
		return PlanFree
	}
}

// IsEntitlingStatus reports whether a subscription status grants plan benefits.
func IsEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "past_due":
		return true
	default:
		return false
	}
}
