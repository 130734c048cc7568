package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/larder/internal/observability/metrics"
	"github.com/smallbiznis/larder/pkg/db/option"
	"github.com/smallbiznis/larder/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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

	repo repository.Repository[ledgerdomain.StockMovement]
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		metrics: p.Metrics,

		repo: repository.ProvideStore[ledgerdomain.StockMovement](p.DB),
	}
}

// Record validates the kind-sign contract, persists the movement and applies
// its signed effect to the ingredient's cached quantity in one transaction;
// a movement row never exists without its quantity effect.
func (s *Service) Record(ctx context.Context, req ledgerdomain.RecordRequest) (*ledgerdomain.StockMovement, error) {
	ingredientID, err := snowflake.ParseString(strings.TrimSpace(req.IngredientID))
	if err != nil {
		return nil, ingredientdomain.ErrInvalidID
	}
	if err := ledgerdomain.ValidateQty(req.Kind, req.Qty); err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	movement := &ledgerdomain.StockMovement{
		ID:           s.genID.Generate(),
		IngredientID: ingredientID,
		Kind:         req.Kind,
		Qty:          req.Qty,
		UnitPrice:    req.UnitPrice,
		SupplierName: strings.TrimSpace(req.SupplierName),
		Reference:    strings.TrimSpace(req.Reference),
		Metadata:     datatypes.JSONMap(req.Metadata),
		OccurredAt:   occurredAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, movement); err != nil {
			return err
		}
		return ingredientdomain.AdjustQty(tx, ingredientID, movement.Effect())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStockMovement(ctx, string(movement.Kind))
	s.log.Info("stock movement recorded",
		zap.String("movement_id", movement.ID.String()),
		zap.String("ingredient_id", ingredientID.String()),
		zap.String("kind", string(movement.Kind)),
		zap.String("qty", movement.Qty.String()),
	)
	return movement, nil
}

// Update is an administrative correction. The cached quantity is corrected
// incrementally: the old effect is reversed and the new one applied, never
// recomputed from full movement history.
func (s *Service) Update(ctx context.Context, req ledgerdomain.UpdateRequest) (*ledgerdomain.StockMovement, error) {
	movement, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updated := *movement
	if req.Qty != nil {
		if err := ledgerdomain.ValidateQty(movement.Kind, *req.Qty); err != nil {
			return nil, err
		}
		updated.Qty = *req.Qty
	}
	if req.UnitPrice != nil {
		updated.UnitPrice = req.UnitPrice
	}
	if req.Reference != nil {
		updated.Reference = strings.TrimSpace(*req.Reference)
	}

	oldEffect := movement.Effect()
	newEffect := updated.Effect()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !newEffect.Equal(oldEffect) {
			// Reversal of the old effect and application of the new one,
			// collapsed into one atomic adjustment.
			if err := ingredientdomain.AdjustQty(tx, movement.IngredientID, newEffect.Sub(oldEffect)); err != nil {
				return err
			}
		}
		return tx.Model(&ledgerdomain.StockMovement{}).
			Where("id = ?", movement.ID).
			Updates(map[string]any{
				"qty":        updated.Qty,
				"unit_price": updated.UnitPrice,
				"reference":  updated.Reference,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock movement corrected",
		zap.String("movement_id", movement.ID.String()),
		zap.String("old_qty", movement.Qty.String()),
		zap.String("new_qty", updated.Qty.String()),
	)
	return &updated, nil
}

// Delete reverses the movement's effect before removing the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	movement, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ingredientdomain.AdjustQty(tx, movement.IngredientID, movement.Effect().Neg()); err != nil {
			return err
		}
		return tx.Delete(&ledgerdomain.StockMovement{}, "id = ?", movement.ID).Error
	})
	if err != nil {
		return err
	}

	s.log.Info("stock movement deleted",
		zap.String("movement_id", movement.ID.String()),
		zap.String("ingredient_id", movement.IngredientID.String()),
	)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*ledgerdomain.StockMovement, error) {
	movementID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}

	row, err := s.repo.FindOne(ctx, &ledgerdomain.StockMovement{ID: movementID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ledgerdomain.ErrNotFound
	}
	return row, nil
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	filter := &ledgerdomain.StockMovement{}
	if ingredientID := strings.TrimSpace(req.IngredientID); ingredientID != "" {
		id, err := snowflake.ParseString(ingredientID)
		if err != nil {
			return ledgerdomain.ListResponse{}, ingredientdomain.ErrInvalidID
		}
		filter.IngredientID = id
	}
	if req.Kind != "" {
		if !req.Kind.Valid() {
			return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidKind
		}
		filter.Kind = req.Kind
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"occurred_at": true, "created_at": true}, SortBy: "occurred_at"}),
	}
	if req.From != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.GTE, Value: *req.From}))
	}
	if req.To != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.LTE, Value: *req.To}))
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}

	rows, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	movements := make([]ledgerdomain.StockMovement, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		movements = append(movements, *row)
	}
	return ledgerdomain.ListResponse{Movements: movements}, nil
}
