package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Period selects the counting window for a quota check.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// PeriodKey formats the counter key for a period at the given time:
// YYYY-MM-DD for daily windows, YYYY-MM for monthly ones.
func PeriodKey(p Period, t time.Time) (string, error) {
	switch p {
	case PeriodDaily:
		return t.UTC().Format("2006-01-02"), nil
	case PeriodMonthly:
		return t.UTC().Format("2006-01"), nil
	default:
		return "", ErrInvalidPeriod
	}
}

// CheckResult reports one window's standing against its limit.
type CheckResult struct {
	Allowed   bool   `json:"allowed"`
	Count     int64  `json:"count"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	PeriodKey string `json:"period_key"`
}

// Service tracks and enforces per-API call budgets.
type Service interface {
	CheckLimit(ctx context.Context, apiName string, limit int64, period Period) (CheckResult, error)
	// Increment bumps the window counter after a successful external call.
	// It is never invoked speculatively and is not rolled back on downstream
	// failure: the external call was made and consumed quota regardless.
	Increment(ctx context.Context, apiName string, period Period) (int64, error)
	Usage(ctx context.Context, apiName string) ([]ApiUsage, error)
}

var (
	ErrInvalidPeriod  = errors.New("invalid_quota_period")
	ErrInvalidAPIName = errors.New("invalid_api_name")
)

// QuotaExceededError is returned when either window of an API budget is
// exhausted; it carries both windows so callers can decide whether to wait
// or fall back to manual entry.
type QuotaExceededError struct {
	APIName string      `json:"api_name"`
	Window  Period      `json:"window"`
	Daily   CheckResult `json:"daily"`
	Monthly CheckResult `json:"monthly"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (%s window): daily %d/%d, monthly %d/%d",
		e.APIName, e.Window, e.Daily.Count, e.Daily.Limit, e.Monthly.Count, e.Monthly.Limit)
}
