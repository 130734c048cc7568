package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
)

type createIngredientRequest struct {
	BranchID     string  `json:"branch_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	InitialQty   *string `json:"initial_qty"`
	UnitsPerPack *int    `json:"units_per_pack"`
	PacksPerBox  *int    `json:"packs_per_box"`
	ReorderLevel *string `json:"reorder_level"`
}

type updateIngredientRequest struct {
	Name         *string `json:"name,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	UnitsPerPack *int    `json:"units_per_pack,omitempty"`
	PacksPerBox  *int    `json:"packs_per_box,omitempty"`
	ReorderLevel *string `json:"reorder_level,omitempty"`
}

func (s *Server) ListIngredients(c *gin.Context) {
	var query struct {
		BranchID string `form:"branch_id"`
		Name     string `form:"name"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ingredientSvc.List(c.Request.Context(), ingredientdomain.ListRequest{
		BranchID: strings.TrimSpace(query.BranchID),
		Name:     strings.TrimSpace(query.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetIngredientByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ingredientSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateIngredient(c *gin.Context) {
	var req createIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	initialQty, err := parseOptionalDecimalPtr(req.InitialQty)
	if err != nil {
		AbortWithError(c, newValidationError("initial_qty", "invalid_initial_qty", "invalid quantity"))
		return
	}
	reorderLevel, err := parseOptionalDecimalPtr(req.ReorderLevel)
	if err != nil {
		AbortWithError(c, newValidationError("reorder_level", "invalid_reorder_level", "invalid quantity"))
		return
	}

	resp, err := s.ingredientSvc.Create(c.Request.Context(), ingredientdomain.CreateRequest{
		BranchID:     strings.TrimSpace(req.BranchID),
		Name:         strings.TrimSpace(req.Name),
		Unit:         strings.TrimSpace(req.Unit),
		InitialQty:   initialQty,
		UnitsPerPack: req.UnitsPerPack,
		PacksPerBox:  req.PacksPerBox,
		ReorderLevel: reorderLevel,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateIngredient(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updateIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reorderLevel, err := parseOptionalDecimalPtr(req.ReorderLevel)
	if err != nil {
		AbortWithError(c, newValidationError("reorder_level", "invalid_reorder_level", "invalid quantity"))
		return
	}

	resp, err := s.ingredientSvc.Update(c.Request.Context(), ingredientdomain.UpdateRequest{
		ID:           id,
		Name:         trimStringPtr(req.Name),
		Unit:         trimStringPtr(req.Unit),
		UnitsPerPack: req.UnitsPerPack,
		PacksPerBox:  req.PacksPerBox,
		ReorderLevel: reorderLevel,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isIngredientValidationError(err error) bool {
	switch err {
	case ingredientdomain.ErrInvalidID,
		ingredientdomain.ErrInvalidBranch,
		ingredientdomain.ErrInvalidName,
		ingredientdomain.ErrInvalidUnit,
		ingredientdomain.ErrInvalidPacking:
		return true
	default:
		return false
	}
}
