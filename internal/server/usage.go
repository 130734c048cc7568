package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/larder/internal/extraction"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
)

// GetUsage reports both quota windows for an API so operators can see what
// is left before submitting a scan.
func (s *Server) GetUsage(c *gin.Context) {
	apiName := strings.TrimSpace(c.Query("api"))
	if apiName == "" {
		apiName = extraction.APIName
	}

	daily, err := s.quotaSvc.CheckLimit(c.Request.Context(), apiName, s.cfg.ExtractionDailyLimit, quotadomain.PeriodDaily)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	monthly, err := s.quotaSvc.CheckLimit(c.Request.Context(), apiName, s.cfg.ExtractionMonthlyLimit, quotadomain.PeriodMonthly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	history, err := s.quotaSvc.Usage(c.Request.Context(), apiName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"api_name": apiName,
		"daily":    daily,
		"monthly":  monthly,
		"history":  history,
	}})
}

func isQuotaValidationError(err error) bool {
	switch err {
	case quotadomain.ErrInvalidAPIName,
		quotadomain.ErrInvalidPeriod:
		return true
	default:
		return false
	}
}
