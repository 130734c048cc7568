package server

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/larder/internal/extraction"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
	"github.com/smallbiznis/larder/internal/observability/logger"
	"github.com/smallbiznis/larder/internal/ratelimit"
	"go.uber.org/zap"
)

const maxScanDocumentBytes = 10 << 20

type scanInvoiceRequest struct {
	BranchID       string `json:"branch_id" form:"branch_id"`
	SupplierName   string `json:"supplier_name" form:"supplier_name"`
	DocumentBase64 string `json:"document_base64" form:"-"`
	MimeType       string `json:"mime_type" form:"mime_type"`
	Text           string `json:"text" form:"-"`
}

// ScanRateLimit is the edge guard in front of the DB-backed quota gateway:
// the token bucket smooths bursts per branch, the quota windows enforce the
// actual budget inside the extraction client.
func (s *Server) ScanRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.scanLimiter == nil || !s.scanLimiter.Enabled() {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.Query("branch_id"))
		if key == "" {
			key = c.ClientIP()
		}

		ctx := c.Request.Context()
		res, err := s.scanLimiter.Allow(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("scan rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, c.FullPath(), "scan-rate")
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(res.RetryAfter)))
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

// ScanInvoice runs a document through extraction and feeds the result into
// invoice intake, where line items are matched against the catalog. The
// invoice lands in received state for operator review like any manual entry.
func (s *Server) ScanInvoice(c *gin.Context) {
	req, document, err := readScanRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	var result *extraction.Result
	if req.Text != "" {
		result, err = s.extractor.ParseText(ctx, req.Text)
	} else {
		result, err = s.extractor.ExtractImage(ctx, document, req.MimeType)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	supplier := strings.TrimSpace(req.SupplierName)
	if supplier == "" {
		supplier = result.SupplierGuess
	}

	intake := invoicedomain.IntakeRequest{
		BranchID:     strings.TrimSpace(req.BranchID),
		SupplierName: supplier,
		ReferenceNo:  result.ReferenceNo,
	}
	for _, line := range result.Items {
		intake.Items = append(intake.Items, invoicedomain.IntakeItem{
			Name:       line.Name,
			Qty:        line.Qty,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		})
		intake.TotalAmount = intake.TotalAmount.Add(line.TotalPrice)
	}

	invoice, err := s.invoiceSvc.Intake(ctx, intake)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"invoice":         invoice,
		"extracted_items": len(result.Items),
	}})
}

// readScanRequest accepts either a multipart upload ("document" file part) or
// a JSON body carrying base64 document bytes or pre-OCR'd text.
func readScanRequest(c *gin.Context) (*scanInvoiceRequest, []byte, error) {
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "multipart/form-data") {
		var req scanInvoiceRequest
		if err := c.ShouldBind(&req); err != nil {
			return nil, nil, invalidRequestError()
		}

		file, header, err := c.Request.FormFile("document")
		if err != nil {
			return nil, nil, newValidationError("document", "invalid_document", "document file is required")
		}
		defer file.Close()

		document, err := io.ReadAll(io.LimitReader(file, maxScanDocumentBytes+1))
		if err != nil {
			return nil, nil, invalidRequestError()
		}
		if len(document) > maxScanDocumentBytes {
			return nil, nil, newValidationError("document", "document_too_large", "document exceeds size limit")
		}
		if req.MimeType == "" {
			req.MimeType = header.Header.Get("Content-Type")
		}
		return &req, document, nil
	}

	var req scanInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, invalidRequestError()
	}
	req.Text = strings.TrimSpace(req.Text)

	var document []byte
	if req.DocumentBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
		if err != nil {
			return nil, nil, newValidationError("document_base64", "invalid_document", "invalid base64 document")
		}
		if len(decoded) > maxScanDocumentBytes {
			return nil, nil, newValidationError("document_base64", "document_too_large", "document exceeds size limit")
		}
		document = decoded
	}
	if req.Text == "" && len(document) == 0 {
		return nil, nil, newValidationError("document", "invalid_document", "document or text is required")
	}

	return &req, document, nil
}
