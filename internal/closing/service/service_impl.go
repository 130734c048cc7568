package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	closingdomain "github.com/smallbiznis/larder/internal/closing/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	obsmetrics "github.com/smallbiznis/larder/internal/observability/metrics"
	"github.com/smallbiznis/larder/pkg/db/option"
	"github.com/smallbiznis/larder/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *obsmetrics.Metrics

	repo       repository.Repository[closingdomain.ClosingRecord]
	branchrepo repository.Repository[branchdomain.Branch]
}

func NewService(p ServiceParam) closingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("closing.service"),
		genID:   p.GenID,
		metrics: p.Metrics,

		repo:       repository.ProvideStore[closingdomain.ClosingRecord](p.DB),
		branchrepo: repository.ProvideStore[branchdomain.Branch](p.DB),
	}
}

// SaveDraft upserts the branch's draft for the given date. A second save for
// the same (branch, date) replaces the item set wholesale with a
// delete-then-insert, so a partial re-count fully supersedes the first one.
func (s *Service) SaveDraft(ctx context.Context, req closingdomain.SaveDraftRequest) (*closingdomain.ClosingRecord, error) {
	branchID, err := snowflake.ParseString(strings.TrimSpace(req.BranchID))
	if err != nil {
		return nil, ingredientdomain.ErrInvalidBranch
	}
	branch, err := s.branchrepo.FindOne(ctx, &branchdomain.Branch{ID: branchID})
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, branchdomain.ErrNotFound
	}

	closingDate := strings.TrimSpace(req.ClosingDate)
	if _, err := time.Parse("2006-01-02", closingDate); err != nil {
		return nil, closingdomain.ErrInvalidDate
	}
	if len(req.Items) == 0 {
		return nil, closingdomain.ErrNoItems
	}

	// Snapshot opening quantities and expand packaging counts before touching
	// the record, so validation failures leave an existing draft intact.
	items := make([]closingdomain.ClosingItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Boxes < 0 || line.Packs < 0 || line.Units < 0 {
			return nil, closingdomain.ErrInvalidCount
		}

		ingredientID, err := snowflake.ParseString(strings.TrimSpace(line.IngredientID))
		if err != nil {
			return nil, ingredientdomain.ErrInvalidID
		}
		var ingredient ingredientdomain.Ingredient
		err = s.db.WithContext(ctx).First(&ingredient, "id = ?", ingredientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ingredientdomain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		unitsPerPack, packsPerBox := ingredient.PackagingFactors()
		item := closingdomain.ClosingItem{
			ID:           s.genID.Generate(),
			IngredientID: ingredientID,
			OpeningQty:   ingredient.CurrentQty,
			Boxes:        line.Boxes,
			Packs:        line.Packs,
			Units:        line.Units,
			ClosingQty:   closingdomain.CountedQty(line.Boxes, line.Packs, line.Units, unitsPerPack, packsPerBox),
			Note:         strings.TrimSpace(line.Note),
		}
		if line.WasteQty != nil {
			item.WasteQty = *line.WasteQty
		}
		items = append(items, item)
	}

	existing, err := s.repo.FindOne(ctx, &closingdomain.ClosingRecord{BranchID: branchID, ClosingDate: closingDate})
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == closingdomain.StatusCompleted {
		return nil, closingdomain.ErrInvalidTransition
	}

	record := existing
	if record == nil {
		record = &closingdomain.ClosingRecord{
			ID:          s.genID.Generate(),
			BranchID:    branchID,
			ClosingDate: closingDate,
			Status:      closingdomain.StatusDraft,
		}
	}
	for i := range items {
		items[i].ClosingID = record.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing == nil {
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Delete(&closingdomain.ClosingItem{}, "closing_id = ?", record.ID).Error; err != nil {
				return err
			}
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}

	record.Items = items
	s.log.Info("closing draft saved",
		zap.String("closing_id", record.ID.String()),
		zap.String("branch_id", branchID.String()),
		zap.String("closing_date", closingDate),
		zap.Int("items", len(items)),
	)
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*closingdomain.ClosingRecord, error) {
	closingID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, closingdomain.ErrInvalidID
	}

	var record closingdomain.ClosingRecord
	err = s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		First(&record, "id = ?", closingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, closingdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) List(ctx context.Context, req closingdomain.ListRequest) (closingdomain.ListResponse, error) {
	filter := &closingdomain.ClosingRecord{Status: req.Status}
	if branchID := strings.TrimSpace(req.BranchID); branchID != "" {
		id, err := snowflake.ParseString(branchID)
		if err != nil {
			return closingdomain.ListResponse{}, ingredientdomain.ErrInvalidBranch
		}
		filter.BranchID = id
	}
	if date := strings.TrimSpace(req.Date); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return closingdomain.ListResponse{}, closingdomain.ErrInvalidDate
		}
		filter.ClosingDate = date
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"closing_date": true, "created_at": true}, SortBy: "closing_date"}),
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}

	rows, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return closingdomain.ListResponse{}, err
	}

	closings := make([]closingdomain.ClosingRecord, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		closings = append(closings, *row)
	}
	return closingdomain.ListResponse{Closings: closings}, nil
}

// Complete seals the record and overwrites each counted ingredient's cached
// quantity with its closing quantity. The overwrite is absolute, not a
// delta: it is the anchor point that forgives drift accumulated since the
// last closing. The status flip is a compare-and-set inside the same
// transaction, so completing twice fails instead of resetting twice.
func (s *Service) Complete(ctx context.Context, id, closedBy string) (*closingdomain.ClosingRecord, error) {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	closedBy = strings.TrimSpace(closedBy)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&closingdomain.ClosingRecord{}).
			Where("id = ? AND status = ?", record.ID, closingdomain.StatusDraft).
			Updates(map[string]any{
				"status":    closingdomain.StatusCompleted,
				"closed_by": closedBy,
				"closed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return closingdomain.ErrInvalidTransition
		}

		for i := range record.Items {
			item := &record.Items[i]
			if err := ingredientdomain.OverwriteQty(tx, item.IngredientID, item.ClosingQty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record.Status = closingdomain.StatusCompleted
	record.ClosedBy = closedBy
	record.ClosedAt = &now

	s.metrics.RecordClosingCompleted(ctx)
	s.log.Info("closing completed",
		zap.String("closing_id", record.ID.String()),
		zap.String("branch_id", record.BranchID.String()),
		zap.String("closing_date", record.ClosingDate),
		zap.String("closed_by", closedBy),
		zap.Int("items", len(record.Items)),
	)
	return record, nil
}

// Delete removes a draft and its items. Completed closings are part of the
// audit trail and cannot be removed.
func (s *Service) Delete(ctx context.Context, id string) error {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.Status == closingdomain.StatusCompleted {
		return closingdomain.ErrInvalidTransition
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&closingdomain.ClosingItem{}, "closing_id = ?", record.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&closingdomain.ClosingRecord{}, "id = ? AND status = ?", record.ID, closingdomain.StatusDraft).Error
	})
}
