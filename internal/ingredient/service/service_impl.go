package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	"github.com/smallbiznis/larder/pkg/db"
	"github.com/smallbiznis/larder/pkg/db/option"
	"github.com/smallbiznis/larder/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	repo       repository.Repository[ingredientdomain.Ingredient]
	branchrepo repository.Repository[branchdomain.Branch]
}

func NewService(p ServiceParam) ingredientdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ingredient.service"),
		genID: p.GenID,

		repo:       repository.ProvideStore[ingredientdomain.Ingredient](p.DB),
		branchrepo: repository.ProvideStore[branchdomain.Branch](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req ingredientdomain.ListRequest) (ingredientdomain.ListResponse, error) {
	filter := &ingredientdomain.Ingredient{}
	if branchID := strings.TrimSpace(req.BranchID); branchID != "" {
		id, err := snowflake.ParseString(branchID)
		if err != nil {
			return ingredientdomain.ListResponse{}, ingredientdomain.ErrInvalidBranch
		}
		filter.BranchID = id
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"name": true, "created_at": true}, SortBy: "name", OrderBy: "ASC"}),
	}

	rows, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return ingredientdomain.ListResponse{}, err
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	items := make([]ingredientdomain.ListItem, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(row.Name), name) {
			continue
		}
		items = append(items, ingredientdomain.ListItem{
			Ingredient: *row,
			LowStock:   row.LowStock(),
		})
	}

	return ingredientdomain.ListResponse{Ingredients: items}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*ingredientdomain.Ingredient, error) {
	ingredientID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, ingredientdomain.ErrInvalidID
	}

	row, err := s.repo.FindOne(ctx, &ingredientdomain.Ingredient{ID: ingredientID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ingredientdomain.ErrNotFound
	}
	return row, nil
}

func (s *Service) Create(ctx context.Context, req ingredientdomain.CreateRequest) (*ingredientdomain.Ingredient, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ingredientdomain.ErrInvalidName
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		return nil, ingredientdomain.ErrInvalidUnit
	}

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

	row := &ingredientdomain.Ingredient{
		ID:       s.genID.Generate(),
		BranchID: branchID,
		Name:     name,
		Unit:     unit,
	}
	if req.InitialQty != nil {
		row.CurrentQty = *req.InitialQty
	}
	if req.UnitsPerPack != nil {
		if *req.UnitsPerPack < 0 {
			return nil, ingredientdomain.ErrInvalidPacking
		}
		row.UnitsPerPack = *req.UnitsPerPack
	}
	if req.PacksPerBox != nil {
		if *req.PacksPerBox < 0 {
			return nil, ingredientdomain.ErrInvalidPacking
		}
		row.PacksPerBox = *req.PacksPerBox
	}
	if req.ReorderLevel != nil {
		row.ReorderLevel = *req.ReorderLevel
	}

	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ingredientdomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("ingredient created",
		zap.String("ingredient_id", row.ID.String()),
		zap.String("branch_id", branchID.String()),
		zap.String("name", name),
	)
	return row, nil
}

func (s *Service) Update(ctx context.Context, req ingredientdomain.UpdateRequest) (*ingredientdomain.Ingredient, error) {
	row, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ingredientdomain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return nil, ingredientdomain.ErrInvalidUnit
		}
		updates["unit"] = unit
	}
	if req.UnitsPerPack != nil {
		if *req.UnitsPerPack < 0 {
			return nil, ingredientdomain.ErrInvalidPacking
		}
		updates["units_per_pack"] = *req.UnitsPerPack
	}
	if req.PacksPerBox != nil {
		if *req.PacksPerBox < 0 {
			return nil, ingredientdomain.ErrInvalidPacking
		}
		updates["packs_per_box"] = *req.PacksPerBox
	}
	if req.ReorderLevel != nil {
		updates["reorder_level"] = *req.ReorderLevel
	}
	if len(updates) == 0 {
		return row, nil
	}

	if err := s.repo.Update(ctx, row.ID.String(), updates); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ingredientdomain.ErrDuplicateName
		}
		return nil, err
	}

	return s.GetByID(ctx, req.ID)
}
