package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/larder/internal/clock"
	"github.com/smallbiznis/larder/internal/config"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"github.com/smallbiznis/larder/pkg/db"
	"github.com/smallbiznis/larder/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	// fallbackIncrement switches Increment to the read-modify-write path.
	// That path is racy by design: concurrent increments may undercount.
	fallbackIncrement bool

	repo repository.Repository[quotadomain.ApiUsage]
}

func NewService(p ServiceParam) quotadomain.Service {
	return &Service{
		db:                p.DB,
		log:               p.Log.Named("quota.service"),
		genID:             p.GenID,
		clock:             p.Clock,
		fallbackIncrement: p.Cfg.QuotaFallbackIncrement,

		repo: repository.ProvideStore[quotadomain.ApiUsage](p.DB),
	}
}

func (s *Service) CheckLimit(ctx context.Context, apiName string, limit int64, period quotadomain.Period) (quotadomain.CheckResult, error) {
	apiName = strings.TrimSpace(apiName)
	if apiName == "" {
		return quotadomain.CheckResult{}, quotadomain.ErrInvalidAPIName
	}
	key, err := quotadomain.PeriodKey(period, s.clock.Now())
	if err != nil {
		return quotadomain.CheckResult{}, err
	}

	row, err := s.repo.FindOne(ctx, &quotadomain.ApiUsage{ApiName: apiName, PeriodKey: key})
	if err != nil {
		return quotadomain.CheckResult{}, err
	}

	var count int64
	if row != nil {
		count = row.Count
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return quotadomain.CheckResult{
		Allowed:   count < limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		PeriodKey: key,
	}, nil
}

func (s *Service) Increment(ctx context.Context, apiName string, period quotadomain.Period) (int64, error) {
	apiName = strings.TrimSpace(apiName)
	if apiName == "" {
		return 0, quotadomain.ErrInvalidAPIName
	}
	key, err := quotadomain.PeriodKey(period, s.clock.Now())
	if err != nil {
		return 0, err
	}

	if s.fallbackIncrement {
		return s.incrementFallback(ctx, apiName, key)
	}
	return s.incrementUpsert(ctx, apiName, key)
}

// incrementUpsert is the atomic path: a single increment-or-insert statement
// that cannot lose updates under concurrent callers.
func (s *Service) incrementUpsert(ctx context.Context, apiName, key string) (int64, error) {
	row := &quotadomain.ApiUsage{
		ID:        s.genID.Generate(),
		ApiName:   apiName,
		PeriodKey: key,
		Count:     1,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "api_name"}, {Name: "period_key"}},
		DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("count + 1")}),
	}).Create(row).Error
	if err != nil {
		return 0, err
	}

	return s.currentCount(ctx, apiName, key)
}

// incrementFallback is the documented non-atomic degradation for stores
// without an increment-or-insert primitive: select, then update with the
// previously read count. Concurrent increments may undercount; that is a
// known property of this path, not a bug to mask.
func (s *Service) incrementFallback(ctx context.Context, apiName, key string) (int64, error) {
	row, err := s.repo.FindOne(ctx, &quotadomain.ApiUsage{ApiName: apiName, PeriodKey: key})
	if err != nil {
		return 0, err
	}

	if row == nil {
		fresh := &quotadomain.ApiUsage{
			ID:        s.genID.Generate(),
			ApiName:   apiName,
			PeriodKey: key,
			Count:     1,
		}
		if err := s.repo.Create(ctx, fresh); err != nil {
			if db.IsDuplicateKeyErr(err) {
				// Another caller inserted first; fold into the update path.
				return s.incrementFallback(ctx, apiName, key)
			}
			return 0, err
		}
		return 1, nil
	}

	next := row.Count + 1
	err = s.db.WithContext(ctx).Model(&quotadomain.ApiUsage{}).
		Where("id = ?", row.ID).
		UpdateColumn("count", next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Service) Usage(ctx context.Context, apiName string) ([]quotadomain.ApiUsage, error) {
	filter := &quotadomain.ApiUsage{}
	if name := strings.TrimSpace(apiName); name != "" {
		filter.ApiName = name
	}

	rows, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	usage := make([]quotadomain.ApiUsage, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		usage = append(usage, *row)
	}
	return usage, nil
}

func (s *Service) currentCount(ctx context.Context, apiName, key string) (int64, error) {
	row, err := s.repo.FindOne(ctx, &quotadomain.ApiUsage{ApiName: apiName, PeriodKey: key})
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.Count, nil
}
