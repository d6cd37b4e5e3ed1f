package auth

import (
	"github.com/eternisai/leadgen-assistant/internal/backend"
	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
)

// DefaultLeadsQuota applies when the backend reports no quota.
const DefaultLeadsQuota = 100

// nearLimitPercent marks the usage share from which the UI warns.
const nearLimitPercent = 80

// QuotaStatus summarises lead quota usage.
type QuotaStatus struct {
	Usage       int     `json:"usage"`
	Quota       int     `json:"quota"`
	Percentage  float64 `json:"percentage"`
	Remaining   int     `json:"remaining"`
	IsNearLimit bool    `json:"is_near_limit"`
	IsOverLimit bool    `json:"is_over_limit"`
}

// GetQuotaStatus computes the quota status of user. A nil user has nothing used.
func GetQuotaStatus(user *backend.User) QuotaStatus {
	if user == nil {
		return QuotaStatus{Quota: DefaultLeadsQuota, Remaining: DefaultLeadsQuota}
	}

	usage := user.LeadsUsed
	quota := user.LeadsQuota
	if quota <= 0 {
		quota = DefaultLeadsQuota
	}
	pct := float64(usage) * 100 / float64(quota)

	return QuotaStatus{
		Usage:       usage,
		Quota:       quota,
		Percentage:  pct,
		Remaining:   max(0, quota-usage),
		IsNearLimit: pct >= nearLimitPercent,
		IsOverLimit: pct >= 100,
	}
}

// QuotaExceededError is returned when a request would go over the quota.
type QuotaExceededError struct {
	*apperrors.QuotaError
}

func (e *QuotaExceededError) Error() string {
	return e.QuotaError.Error
}

// UserMessage is shown to the user as is.
func (e *QuotaExceededError) UserMessage() string {
	return e.QuotaError.Error
}

// CheckQuota rejects a request for requested leads that would exceed the quota.
func CheckQuota(user *backend.User, requested int) error {
	if user == nil {
		return ErrNotAuthenticated
	}

	status := GetQuotaStatus(user)
	if status.Usage+requested > status.Quota {
		return &QuotaExceededError{
			QuotaError: apperrors.QuotaExceeded(user.SubscriptionPlan, status.Quota, status.Usage, requested),
		}
	}
	return nil
}
