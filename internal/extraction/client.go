// Package extraction turns supplier invoice documents into structured line
// items through an external OCR/LLM service, fronted by the quota gateway.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/larder/internal/config"
	obsmetrics "github.com/smallbiznis/larder/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// APIName is the logical API the quota gateway counts for extraction calls;
// both the daily and the monthly window are tracked under this name.
const APIName = "invoice_extraction"

const systemPrompt = `You read restaurant supplier invoices. Reply with a single JSON object:
{"supplier":"<supplier name or empty>","reference_no":"<invoice number or empty>","items":[{"name":"<item name>","quantity":<number>,"unit_price":<number>,"total_price":<number>}]}
Use plain JSON with no markdown. Omit items you cannot read. Quantities are numbers, not strings.`

// LineItem is one well-formed candidate invoice line. Items lacking a usable
// name or with non-positive quantity are filtered inside the client so all
// downstream consumers see only valid candidates.
type LineItem struct {
	Name       string          `json:"name"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Result is the structured output of one extraction call.
type Result struct {
	Items         []LineItem `json:"items"`
	SupplierGuess string     `json:"supplier_guess,omitempty"`
	ReferenceNo   string     `json:"reference_no,omitempty"`
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ClientParam struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Quota   quotadomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Client calls the external extraction service. It checks both quota windows
// before every call (fail-closed) and bills both windows after a completed
// call regardless of what the caller does with the result.
type Client struct {
	completer chatCompleter
	quota     quotadomain.Service
	log       *zap.Logger
	metrics   *obsmetrics.Metrics

	model        string
	dailyLimit   int64
	monthlyLimit int64
}

func NewClient(p ClientParam) *Client {
	var completer chatCompleter
	if p.Cfg.OpenAIAPIKey != "" {
		completer = openai.NewClient(p.Cfg.OpenAIAPIKey)
	}

	return &Client{
		completer: completer,
		quota:     p.Quota,
		log:       p.Log.Named("extraction.client"),
		metrics:   p.Metrics,

		model:        p.Cfg.OpenAIModel,
		dailyLimit:   p.Cfg.ExtractionDailyLimit,
		monthlyLimit: p.Cfg.ExtractionMonthlyLimit,
	}
}

// ExtractImage sends a document image through the combined
// image-to-structured-JSON pass.
func (c *Client) ExtractImage(ctx context.Context, documentBytes []byte, mimeType string) (*Result, error) {
	const op = "ExtractImage"

	if len(documentBytes) == 0 {
		return nil, newError(op, ErrEmptyDocument, "")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(documentBytes))
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Extract the line items from this invoice."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		},
	}

	return c.extract(ctx, op, "image", messages)
}

// ParseText runs the text-parsing pass over OCR output produced elsewhere.
// It is fronted by the same quota windows as the image pass.
func (c *Client) ParseText(ctx context.Context, text string) (*Result, error) {
	const op = "ParseText"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(op, ErrEmptyDocument, "")
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: "Extract the line items from this invoice text:\n\n" + text},
	}

	return c.extract(ctx, op, "text", messages)
}

func (c *Client) extract(ctx context.Context, op, mode string, messages []openai.ChatCompletionMessage) (*Result, error) {
	if c.completer == nil {
		c.recordCall(ctx, mode, "missing_credentials")
		return nil, newError(op, ErrMissingCredentials, "")
	}

	if err := c.checkQuota(ctx); err != nil {
		c.recordCall(ctx, mode, "quota_exceeded")
		return nil, err
	}

	resp, err := c.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.recordCall(ctx, mode, "timeout")
			return nil, newError(op, ErrTimeout, "")
		}
		c.recordCall(ctx, mode, "upstream_error")
		c.log.Error("extraction call failed", zap.String("op", op), zap.Error(err))
		return nil, newError(op, ErrUpstreamFailure, "chat completion")
	}

	// The external call completed, so the quota is consumed no matter what
	// happens to the response below.
	c.billUsage(ctx)

	if len(resp.Choices) == 0 {
		c.recordCall(ctx, mode, "malformed")
		return nil, newError(op, ErrMalformedResponse, "no choices in response")
	}

	result, err := c.parseContent(resp.Choices[0].Message.Content)
	if err != nil {
		c.recordCall(ctx, mode, "malformed")
		return nil, newError(op, err, "")
	}

	c.recordCall(ctx, mode, "ok")
	c.log.Info("extraction completed",
		zap.String("op", op),
		zap.Int("items", len(result.Items)),
		zap.String("supplier_guess", result.SupplierGuess),
	)
	return result, nil
}

// checkQuota verifies both windows and refuses fail-closed when either is
// exhausted, carrying both counts for the caller.
func (c *Client) checkQuota(ctx context.Context) error {
	daily, err := c.quota.CheckLimit(ctx, APIName, c.dailyLimit, quotadomain.PeriodDaily)
	if err != nil {
		return err
	}
	monthly, err := c.quota.CheckLimit(ctx, APIName, c.monthlyLimit, quotadomain.PeriodMonthly)
	if err != nil {
		return err
	}

	window := quotadomain.Period("")
	switch {
	case !daily.Allowed:
		window = quotadomain.PeriodDaily
	case !monthly.Allowed:
		window = quotadomain.PeriodMonthly
	default:
		return nil
	}

	c.metrics.RecordQuotaDenied(ctx, string(window))
	return &quotadomain.QuotaExceededError{
		APIName: APIName,
		Window:  window,
		Daily:   daily,
		Monthly: monthly,
	}
}

// billUsage increments both windows in parallel. Failures are logged, never
// propagated: the extraction result is still valid and must be returned.
func (c *Client) billUsage(ctx context.Context) {
	billCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, period := range []quotadomain.Period{quotadomain.PeriodDaily, quotadomain.PeriodMonthly} {
		wg.Add(1)
		go func(p quotadomain.Period) {
			defer wg.Done()
			if _, err := c.quota.Increment(billCtx, APIName, p); err != nil {
				c.log.Warn("quota increment failed",
					zap.String("api_name", APIName),
					zap.String("period", string(p)),
					zap.Error(err),
				)
			}
		}(period)
	}
	wg.Wait()
}

type rawItem struct {
	Name       string      `json:"name"`
	Quantity   flexDecimal `json:"quantity"`
	UnitPrice  flexDecimal `json:"unit_price"`
	TotalPrice flexDecimal `json:"total_price"`
}

type rawExtraction struct {
	Supplier    string    `json:"supplier"`
	ReferenceNo string    `json:"reference_no"`
	Items       []rawItem `json:"items"`
}

func (c *Client) parseContent(content string) (*Result, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		repaired := repairJSON(content)
		if repaired == content || json.Unmarshal([]byte(repaired), &raw) != nil {
			c.log.Warn("extraction response unparseable after repair pass",
				zap.Int("content_len", len(content)),
			)
			return nil, ErrMalformedResponse
		}
	}

	items := make([]LineItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		name := strings.TrimSpace(item.Name)
		qty := decimal.Decimal(item.Quantity)
		if name == "" || !qty.IsPositive() {
			continue
		}
		items = append(items, LineItem{
			Name:       name,
			Qty:        qty,
			UnitPrice:  decimal.Decimal(item.UnitPrice),
			TotalPrice: decimal.Decimal(item.TotalPrice),
		})
	}

	return &Result{
		Items:         items,
		SupplierGuess: strings.TrimSpace(raw.Supplier),
		ReferenceNo:   strings.TrimSpace(raw.ReferenceNo),
	}, nil
}

func (c *Client) recordCall(ctx context.Context, mode, outcome string) {
	c.metrics.RecordExtractionCall(ctx, mode, outcome)
}

// flexDecimal accepts numbers or numeric strings; field absence or a value
// that is not numeric at all fails that item's validation rather than the
// whole response.
type flexDecimal decimal.Decimal

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = flexDecimal(decimal.Zero)
		return nil
	}
	s = strings.Trim(s, `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		*f = flexDecimal(decimal.Zero)
		return nil
	}
	*f = flexDecimal(d)
	return nil
}
