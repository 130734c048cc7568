package domain

import (
	"context"
	"errors"
)

type CreateRequest struct {
	Name string `json:"name"`
}

type ListResponse struct {
	Branches []Branch `json:"branches"`
}

type Service interface {
	List(ctx context.Context) (ListResponse, error)
	GetByID(ctx context.Context, id string) (*Branch, error)
	Create(ctx context.Context, req CreateRequest) (*Branch, error)
}

var (
	ErrInvalidID     = errors.New("invalid_branch_id")
	ErrInvalidName   = errors.New("invalid_branch_name")
	ErrDuplicateName = errors.New("duplicate_branch_name")
)
