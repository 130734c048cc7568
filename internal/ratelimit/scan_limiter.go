package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/larder/internal/config"
)

const keyScanBranch = "scan:branch:%s"

// ScanLimiter throttles document scan submissions per branch, in front of the
// quota windows: the bucket smooths out bursts, the quota caps the day and
// the month. It is disabled (always allows) when no redis address is
// configured.
type ScanLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewScanLimiter(cfg config.Config) (*ScanLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	if cfg.ScanRateLimit <= 0 || cfg.ScanRateBurst <= 0 {
		return nil, fmt.Errorf("scan rate limit must be positive, got rate=%v burst=%d", cfg.ScanRateLimit, cfg.ScanRateBurst)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})

	return &ScanLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.ScanRateLimit,
		burst:   cfg.ScanRateBurst,
	}, nil
}

func (l *ScanLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ScanLimiter) Allow(ctx context.Context, branchID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyScanBranch, strings.TrimSpace(branchID)), l.rate, l.burst)
}

// RetryAfterSeconds rounds a retry hint up to whole seconds for the
// Retry-After response header.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}
