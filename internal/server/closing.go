package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	closingdomain "github.com/smallbiznis/larder/internal/closing/domain"
)

type closingDraftItemRequest struct {
	IngredientID string  `json:"ingredient_id"`
	Boxes        int64   `json:"boxes"`
	Packs        int64   `json:"packs"`
	Units        int64   `json:"units"`
	WasteQty     *string `json:"waste_qty,omitempty"`
	Note         string  `json:"note,omitempty"`
}

type saveClosingDraftRequest struct {
	BranchID    string                    `json:"branch_id"`
	ClosingDate string                    `json:"closing_date"`
	Items       []closingDraftItemRequest `json:"items"`
}

type completeClosingRequest struct {
	ClosedBy string `json:"closed_by"`
}

func (s *Server) SaveClosingDraft(c *gin.Context) {
	var req saveClosingDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	draft := closingdomain.SaveDraftRequest{
		BranchID:    strings.TrimSpace(req.BranchID),
		ClosingDate: strings.TrimSpace(req.ClosingDate),
	}
	for _, line := range req.Items {
		wasteQty, err := parseOptionalDecimalPtr(line.WasteQty)
		if err != nil {
			AbortWithError(c, newValidationError("items.waste_qty", "invalid_waste_qty", "invalid quantity"))
			return
		}
		draft.Items = append(draft.Items, closingdomain.DraftItem{
			IngredientID: strings.TrimSpace(line.IngredientID),
			Boxes:        line.Boxes,
			Packs:        line.Packs,
			Units:        line.Units,
			WasteQty:     wasteQty,
			Note:         strings.TrimSpace(line.Note),
		})
	}

	resp, err := s.closingSvc.SaveDraft(c.Request.Context(), draft)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListClosings(c *gin.Context) {
	var query struct {
		BranchID string `form:"branch_id"`
		Date     string `form:"date"`
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

	resp, err := s.closingSvc.List(c.Request.Context(), closingdomain.ListRequest{
		BranchID: strings.TrimSpace(query.BranchID),
		Date:     strings.TrimSpace(query.Date),
		Status:   closingdomain.Status(strings.TrimSpace(query.Status)),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetClosingByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.closingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CompleteClosing(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req completeClosingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.closingSvc.Complete(c.Request.Context(), id, strings.TrimSpace(req.ClosedBy))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteClosing(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.closingSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func isClosingValidationError(err error) bool {
	switch err {
	case closingdomain.ErrInvalidID,
		closingdomain.ErrInvalidDate,
		closingdomain.ErrNoItems,
		closingdomain.ErrInvalidCount:
		return true
	default:
		return false
	}
}
