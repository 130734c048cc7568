package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/larder/internal/clock"
	"github.com/smallbiznis/larder/internal/config"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupQuotaService(t *testing.T, clk clock.Clock, fallback bool) (quotadomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}

	if err := db.AutoMigrate(&quotadomain.ApiUsage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	service := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Cfg:   config.Config{QuotaFallbackIncrement: fallback},
	})
	return service, db
}

func TestCheckLimitAllowsUnderLimit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, false)
	ctx := context.Background()

	res, err := service.CheckLimit(ctx, "invoice_extraction", 100, quotadomain.PeriodDaily)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("fresh window must be allowed, got %+v", res)
	}
	if res.Count != 0 || res.Remaining != 100 {
		t.Fatalf("fresh window: count=%d remaining=%d", res.Count, res.Remaining)
	}
	if res.PeriodKey != "2025-03-10" {
		t.Fatalf("daily key = %q, want 2025-03-10", res.PeriodKey)
	}
}

func TestCheckLimitDeniesAtLimit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	res, err := service.CheckLimit(ctx, "invoice_extraction", 3, quotadomain.PeriodDaily)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Fatalf("count == limit must deny, got %+v", res)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
}

func TestIncrementSeparatesWindows(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC))
	service, db := setupQuotaService(t, clk, false)
	ctx := context.Background()

	if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily); err != nil {
		t.Fatalf("daily increment: %v", err)
	}
	if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodMonthly); err != nil {
		t.Fatalf("monthly increment: %v", err)
	}

	// Day and month both roll over.
	clk.Advance(2 * time.Hour)
	if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily); err != nil {
		t.Fatalf("daily increment after rollover: %v", err)
	}

	var rows []quotadomain.ApiUsage
	if err := db.Order("period_key ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d counter rows, want 3", len(rows))
	}
	wantKeys := []string{"2025-03", "2025-03-31", "2025-04-01"}
	for i, row := range rows {
		if row.PeriodKey != wantKeys[i] {
			t.Fatalf("row %d: period_key = %q, want %q", i, row.PeriodKey, wantKeys[i])
		}
		if row.Count != 1 {
			t.Fatalf("row %q: count = %d, want 1", row.PeriodKey, row.Count)
		}
	}
}

func TestIncrementUpsertConcurrent(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, false)
	ctx := context.Background()

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent increment: %v", err)
	}

	res, err := service.CheckLimit(ctx, "invoice_extraction", 100, quotadomain.PeriodDaily)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Count != callers {
		t.Fatalf("count = %d, want %d", res.Count, callers)
	}
}

func TestIncrementFallbackPath(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, true)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}
}

func TestIncrementRejectsBlankAPIName(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, false)

	if _, err := service.Increment(context.Background(), "  ", quotadomain.PeriodDaily); err != quotadomain.ErrInvalidAPIName {
		t.Fatalf("got %v, want ErrInvalidAPIName", err)
	}
	if _, err := service.CheckLimit(context.Background(), "invoice_extraction", 10, "weekly"); err != quotadomain.ErrInvalidPeriod {
		t.Fatalf("got %v, want ErrInvalidPeriod", err)
	}
}

func TestUsageFiltersByAPI(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	service, _ := setupQuotaService(t, clk, false)
	ctx := context.Background()

	if _, err := service.Increment(ctx, "invoice_extraction", quotadomain.PeriodDaily); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := service.Increment(ctx, "other_api", quotadomain.PeriodDaily); err != nil {
		t.Fatalf("increment: %v", err)
	}

	usage, err := service.Usage(ctx, "invoice_extraction")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("got %d rows, want 1", len(usage))
	}
	if usage[0].ApiName != "invoice_extraction" {
		t.Fatalf("filter leaked api %q", usage[0].ApiName)
	}
}
