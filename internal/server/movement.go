package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
)

type recordMovementRequest struct {
	IngredientID string         `json:"ingredient_id"`
	Kind         string         `json:"kind"`
	Qty          string         `json:"qty"`
	UnitPrice    *string        `json:"unit_price"`
	SupplierName string         `json:"supplier_name"`
	Reference    string         `json:"reference"`
	Metadata     map[string]any `json:"metadata"`
	OccurredAt   *string        `json:"occurred_at"`
}

type updateMovementRequest struct {
	Qty       *string `json:"qty,omitempty"`
	UnitPrice *string `json:"unit_price,omitempty"`
	Reference *string `json:"reference,omitempty"`
}

func (s *Server) RecordMovement(c *gin.Context) {
	var req recordMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	qty, err := parseOptionalDecimal(req.Qty)
	if err != nil || qty == nil {
		AbortWithError(c, newValidationError("qty", "invalid_movement_qty", "invalid quantity"))
		return
	}
	unitPrice, err := parseOptionalDecimalPtr(req.UnitPrice)
	if err != nil {
		AbortWithError(c, newValidationError("unit_price", "invalid_unit_price", "invalid price"))
		return
	}
	occurred, err := parseOptionalTimePtr(req.OccurredAt)
	if err != nil {
		AbortWithError(c, newValidationError("occurred_at", "invalid_occurred_at", "invalid time"))
		return
	}

	resp, err := s.ledgerSvc.Record(c.Request.Context(), ledgerdomain.RecordRequest{
		IngredientID: strings.TrimSpace(req.IngredientID),
		Kind:         ledgerdomain.MovementKind(strings.TrimSpace(req.Kind)),
		Qty:          *qty,
		UnitPrice:    unitPrice,
		SupplierName: strings.TrimSpace(req.SupplierName),
		Reference:    strings.TrimSpace(req.Reference),
		Metadata:     req.Metadata,
		OccurredAt:   occurred,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMovements(c *gin.Context) {
	var query struct {
		IngredientID string `form:"ingredient_id"`
		Kind         string `form:"kind"`
		From         string `form:"from"`
		To           string `form:"to"`
		Limit        string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid time"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid time"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListRequest{
		IngredientID: strings.TrimSpace(query.IngredientID),
		Kind:         ledgerdomain.MovementKind(strings.TrimSpace(query.Kind)),
		From:         from,
		To:           to,
		Limit:        limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMovementByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ledgerSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMovement(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updateMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	qty, err := parseOptionalDecimalPtr(req.Qty)
	if err != nil {
		AbortWithError(c, newValidationError("qty", "invalid_movement_qty", "invalid quantity"))
		return
	}
	unitPrice, err := parseOptionalDecimalPtr(req.UnitPrice)
	if err != nil {
		AbortWithError(c, newValidationError("unit_price", "invalid_unit_price", "invalid price"))
		return
	}

	resp, err := s.ledgerSvc.Update(c.Request.Context(), ledgerdomain.UpdateRequest{
		ID:        id,
		Qty:       qty,
		UnitPrice: unitPrice,
		Reference: trimStringPtr(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteMovement(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.ledgerSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func isMovementValidationError(err error) bool {
	switch err {
	case ledgerdomain.ErrInvalidID,
		ledgerdomain.ErrInvalidKind,
		ledgerdomain.ErrInvalidQuantity:
		return true
	default:
		return false
	}
}
