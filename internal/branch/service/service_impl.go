package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
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
	log   *zap.Logger
	genID *snowflake.Node

	repo repository.Repository[branchdomain.Branch]
}

func NewService(p ServiceParam) branchdomain.Service {
	return &Service{
		log:   p.Log.Named("branch.service"),
		genID: p.GenID,

		repo: repository.ProvideStore[branchdomain.Branch](p.DB),
	}
}

func (s *Service) List(ctx context.Context) (branchdomain.ListResponse, error) {
	rows, err := s.repo.Find(ctx, &branchdomain.Branch{},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"name": true, "created_at": true}, SortBy: "name", OrderBy: "ASC"}),
	)
	if err != nil {
		return branchdomain.ListResponse{}, err
	}

	branches := make([]branchdomain.Branch, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		branches = append(branches, *row)
	}
	return branchdomain.ListResponse{Branches: branches}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*branchdomain.Branch, error) {
	branchID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, branchdomain.ErrInvalidID
	}

	row, err := s.repo.FindOne(ctx, &branchdomain.Branch{ID: branchID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, branchdomain.ErrNotFound
	}
	return row, nil
}

func (s *Service) Create(ctx context.Context, req branchdomain.CreateRequest) (*branchdomain.Branch, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, branchdomain.ErrInvalidName
	}

	row := &branchdomain.Branch{
		ID:   s.genID.Generate(),
		Name: name,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, branchdomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("branch created", zap.String("branch_id", row.ID.String()), zap.String("name", name))
	return row, nil
}
