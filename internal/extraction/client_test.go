package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"go.uber.org/zap"
)

// stubCompleter returns a canned response or error and counts invocations.
type stubCompleter struct {
	content string
	err     error
	calls   int
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

// stubQuota counts window usage in memory.
type stubQuota struct {
	mu         sync.Mutex
	counts     map[quotadomain.Period]int64
	denyDaily  bool
	increments int
}

func newStubQuota() *stubQuota {
	return &stubQuota{counts: map[quotadomain.Period]int64{}}
}

func (s *stubQuota) CheckLimit(_ context.Context, _ string, limit int64, period quotadomain.Period) (quotadomain.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.counts[period]
	allowed := count < limit
	if s.denyDaily && period == quotadomain.PeriodDaily {
		allowed = false
		count = limit
	}
	return quotadomain.CheckResult{Allowed: allowed, Count: count, Limit: limit}, nil
}

func (s *stubQuota) Increment(_ context.Context, _ string, period quotadomain.Period) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[period]++
	s.increments++
	return s.counts[period], nil
}

func (s *stubQuota) Usage(context.Context, string) ([]quotadomain.ApiUsage, error) {
	return nil, nil
}

func newTestClient(completer chatCompleter, quota quotadomain.Service) *Client {
	return &Client{
		completer:    completer,
		quota:        quota,
		log:          zap.NewNop(),
		model:        "gpt-4o-mini",
		dailyLimit:   100,
		monthlyLimit: 1000,
	}
}

func TestParseTextRejectsEmptyInput(t *testing.T) {
	client := newTestClient(&stubCompleter{}, newStubQuota())

	_, err := client.ParseText(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("got %v, want ErrEmptyDocument", err)
	}

	if _, err := client.ExtractImage(context.Background(), nil, ""); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("got %v, want ErrEmptyDocument", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	quota := newStubQuota()
	client := newTestClient(nil, quota)

	_, err := client.ParseText(context.Background(), "invoice text")
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("got %v, want ErrMissingCredentials", err)
	}
	if quota.increments != 0 {
		t.Fatalf("no quota may be consumed without a call, got %d increments", quota.increments)
	}
}

func TestQuotaDeniedFailsClosed(t *testing.T) {
	completer := &stubCompleter{content: `{"items":[]}`}
	quota := newStubQuota()
	quota.denyDaily = true
	client := newTestClient(completer, quota)

	_, err := client.ParseText(context.Background(), "invoice text")
	var quotaErr *quotadomain.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("got %v, want QuotaExceededError", err)
	}
	if quotaErr.Window != quotadomain.PeriodDaily {
		t.Fatalf("window = %s, want daily", quotaErr.Window)
	}
	if quotaErr.Daily.Limit != 100 || quotaErr.Monthly.Limit != 1000 {
		t.Fatalf("error must carry both windows: %+v", quotaErr)
	}
	if completer.calls != 0 {
		t.Fatal("denied request must never reach the upstream service")
	}
	if quota.increments != 0 {
		t.Fatalf("denied request consumed quota: %d increments", quota.increments)
	}
}

func TestSuccessfulExtractionBillsBothWindows(t *testing.T) {
	completer := &stubCompleter{content: `{
		"supplier": "Acme Foods",
		"reference_no": "INV-001",
		"items": [
			{"name": "Flour", "quantity": 25, "unit_price": 2, "total_price": 50},
			{"name": "  ", "quantity": 3, "unit_price": 1, "total_price": 3},
			{"name": "Sugar", "quantity": 0, "unit_price": 1, "total_price": 0},
			{"name": "Eggs", "quantity": "12", "unit_price": "0.5", "total_price": "6"}
		]
	}`}
	quota := newStubQuota()
	client := newTestClient(completer, quota)

	result, err := client.ParseText(context.Background(), "invoice text")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// The blank name and the zero quantity are filtered; string numerics pass.
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(result.Items), result.Items)
	}
	if result.Items[0].Name != "Flour" || !result.Items[0].Qty.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected first item %+v", result.Items[0])
	}
	if result.Items[1].Name != "Eggs" || !result.Items[1].Qty.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("unexpected second item %+v", result.Items[1])
	}
	if result.SupplierGuess != "Acme Foods" || result.ReferenceNo != "INV-001" {
		t.Fatalf("header fields lost: %+v", result)
	}

	if got := quota.counts[quotadomain.PeriodDaily]; got != 1 {
		t.Fatalf("daily window billed %d times, want 1", got)
	}
	if got := quota.counts[quotadomain.PeriodMonthly]; got != 1 {
		t.Fatalf("monthly window billed %d times, want 1", got)
	}
}

func TestFencedResponseIsRepaired(t *testing.T) {
	completer := &stubCompleter{content: "```json\n{\"supplier\":\"Acme\",\"items\":[{\"name\":\"Flour\",\"quantity\":2,}]}\n```"}
	client := newTestClient(completer, newStubQuota())

	result, err := client.ParseText(context.Background(), "invoice text")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "Flour" {
		t.Fatalf("got %+v", result.Items)
	}
}

func TestMalformedResponseStillBills(t *testing.T) {
	completer := &stubCompleter{content: "the invoice appears to list flour and sugar"}
	quota := newStubQuota()
	client := newTestClient(completer, quota)

	_, err := client.ParseText(context.Background(), "invoice text")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("got %v, want ErrMalformedResponse", err)
	}

	// The upstream call completed, so both windows are consumed regardless.
	if quota.increments != 2 {
		t.Fatalf("got %d increments, want 2", quota.increments)
	}
}

func TestUpstreamFailureDoesNotBill(t *testing.T) {
	completer := &stubCompleter{err: errors.New("connection refused")}
	quota := newStubQuota()
	client := newTestClient(completer, quota)

	_, err := client.ParseText(context.Background(), "invoice text")
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("got %v, want ErrUpstreamFailure", err)
	}
	if quota.increments != 0 {
		t.Fatalf("failed call consumed quota: %d increments", quota.increments)
	}
}

func TestDeadlineMapsToTimeout(t *testing.T) {
	completer := &stubCompleter{err: context.DeadlineExceeded}
	client := newTestClient(completer, newStubQuota())

	_, err := client.ParseText(context.Background(), "invoice text")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Op != "ParseText" {
		t.Fatalf("error must carry the failing op, got %v", err)
	}
}
