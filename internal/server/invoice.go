package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
)

type intakeInvoiceItemRequest struct {
	Name          string  `json:"name"`
	Qty           string  `json:"qty"`
	UnitPrice     *string `json:"unit_price"`
	TotalPrice    *string `json:"total_price"`
	NewIngredient bool    `json:"new_ingredient"`
	Unit          string  `json:"unit"`
}

type intakeInvoiceRequest struct {
	BranchID     string                     `json:"branch_id"`
	SupplierName string                     `json:"supplier_name"`
	ReferenceNo  string                     `json:"reference_no"`
	TotalAmount  *string                    `json:"total_amount"`
	ReceivedAt   *string                    `json:"received_at"`
	Items        []intakeInvoiceItemRequest `json:"items"`
}

type updateInvoiceItemRequest struct {
	MatchedIngredientID *string `json:"matched_ingredient_id,omitempty"`
	NewIngredient       *bool   `json:"new_ingredient,omitempty"`
	Unit                *string `json:"unit,omitempty"`
	ConfirmedQty        *string `json:"confirmed_qty,omitempty"`
}

func (s *Server) IntakeInvoice(c *gin.Context) {
	var req intakeInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	intake, err := buildIntakeRequest(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.Intake(c.Request.Context(), *intake)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func buildIntakeRequest(req intakeInvoiceRequest) (*invoicedomain.IntakeRequest, error) {
	totalAmount, err := parseOptionalDecimalPtr(req.TotalAmount)
	if err != nil {
		return nil, newValidationError("total_amount", "invalid_total_amount", "invalid amount")
	}
	receivedAt, err := parseOptionalTimePtr(req.ReceivedAt)
	if err != nil {
		return nil, newValidationError("received_at", "invalid_received_at", "invalid time")
	}

	intake := invoicedomain.IntakeRequest{
		BranchID:     strings.TrimSpace(req.BranchID),
		SupplierName: strings.TrimSpace(req.SupplierName),
		ReferenceNo:  strings.TrimSpace(req.ReferenceNo),
		ReceivedAt:   receivedAt,
	}
	if totalAmount != nil {
		intake.TotalAmount = *totalAmount
	}

	for _, line := range req.Items {
		qty, err := parseOptionalDecimal(line.Qty)
		if err != nil || qty == nil {
			return nil, newValidationError("items.qty", "invalid_confirmed_qty", "invalid quantity")
		}
		unitPrice, err := parseOptionalDecimalPtr(line.UnitPrice)
		if err != nil {
			return nil, newValidationError("items.unit_price", "invalid_unit_price", "invalid price")
		}
		totalPrice, err := parseOptionalDecimalPtr(line.TotalPrice)
		if err != nil {
			return nil, newValidationError("items.total_price", "invalid_total_price", "invalid price")
		}

		item := invoicedomain.IntakeItem{
			Name:          strings.TrimSpace(line.Name),
			Qty:           *qty,
			NewIngredient: line.NewIngredient,
			Unit:          strings.TrimSpace(line.Unit),
		}
		if unitPrice != nil {
			item.UnitPrice = *unitPrice
		}
		if totalPrice != nil {
			item.TotalPrice = *totalPrice
		} else {
			item.TotalPrice = item.Qty.Mul(item.UnitPrice)
		}
		intake.Items = append(intake.Items, item)
	}

	return &intake, nil
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		BranchID string `form:"branch_id"`
		Status   string `form:"status"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListRequest{
		BranchID: strings.TrimSpace(query.BranchID),
		Status:   invoicedomain.Status(strings.TrimSpace(query.Status)),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) StartInvoiceInspection(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.invoiceSvc.StartInspection(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateInvoiceItem(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	itemID := strings.TrimSpace(c.Param("itemId"))

	var req updateInvoiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var confirmedQty *decimal.Decimal
	if req.ConfirmedQty != nil {
		parsed, err := parseOptionalDecimal(*req.ConfirmedQty)
		if err != nil || parsed == nil {
			AbortWithError(c, newValidationError("confirmed_qty", "invalid_confirmed_qty", "invalid quantity"))
			return
		}
		confirmedQty = parsed
	}

	resp, err := s.invoiceSvc.UpdateItem(c.Request.Context(), invoicedomain.UpdateItemRequest{
		InvoiceID:           id,
		ItemID:              itemID,
		MatchedIngredientID: trimStringPtr(req.MatchedIngredientID),
		NewIngredient:       req.NewIngredient,
		Unit:                trimStringPtr(req.Unit),
		ConfirmedQty:        confirmedQty,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	report, err := s.invoiceSvc.Confirm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) DisputeInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.invoiceSvc.Dispute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func isInvoiceValidationError(err error) bool {
	switch err {
	case invoicedomain.ErrInvalidID,
		invoicedomain.ErrInvalidBranch,
		invoicedomain.ErrInvalidSupplier,
		invoicedomain.ErrNoItems,
		invoicedomain.ErrInvalidQty:
		return true
	default:
		return false
	}
}
