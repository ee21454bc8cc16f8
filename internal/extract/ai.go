package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resilience"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/pkg/anthropic"
)

const blockSystemPrompt = `You extract bank statement transactions from Brazilian and US statements.
Return only JSON: an array of objects with the keys "date", "description", "amount" and "type".
- "date": the transaction date exactly as printed (for example 05/07/2024 or 05/07).
- "description": the full transaction description, including the counterparty name.
- "amount": the signed amount as printed. Debits are negative, credits positive.
- "type": the operation type if printed (PIX, TED, DIZIMO, OFERTA, TARIFA...), otherwise "".
Do not invent transactions. Skip balance lines (SALDO). Return [] when there are none.`

// AIConfig configures the Anthropic-backed block extractor.
type AIConfig struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute int
	Retry             resilience.RetryConfig
}

// AIExtractor implements BlockExtractor on the Anthropic Messages API.
type AIExtractor struct {
	client  anthropic.Client
	cfg     AIConfig
	limiter *rate.Limiter
}

// NewAIExtractor creates an AI extractor. A non-positive RequestsPerMinute
// disables pacing.
func NewAIExtractor(client anthropic.Client, cfg AIConfig) *AIExtractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "extract_block")
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &AIExtractor{client: client, cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

// ExtractBlock sends the grouped text, and the PDF when present, at
// temperature 0 and parses the JSON reply.
func (a *AIExtractor) ExtractBlock(ctx context.Context, req BlockRequest) ([]BlockItem, error) {
	var prompt strings.Builder
	if req.ContextInstruction != "" {
		prompt.WriteString("Layout notes: ")
		prompt.WriteString(req.ContextInstruction)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Statement file: ")
	prompt.WriteString(req.FileName)
	prompt.WriteString("\n\n")
	prompt.WriteString(req.RawText)

	msg := anthropic.Message{Role: "user", Content: prompt.String()}
	if req.Base64Payload != "" {
		msg.Documents = []anthropic.Document{{Data: req.Base64Payload}}
	}

	temp := 0.0
	mreq := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.CachedSystem(blockSystemPrompt),
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, a.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return a.client.CreateMessage(ctx, mreq)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: ai block request")
	}
	resp.Usage.Log(a.cfg.Model, "extract_block")

	items, err := ParseBlockItems(resp.Text())
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ai block extraction",
		zap.String("component", "extract"),
		zap.String("file", req.FileName),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// ParseBlockItems accepts a bare JSON array, an object with a
// "transactions" array, or either wrapped in a markdown code fence.
func ParseBlockItems(text string) ([]BlockItem, error) {
	cleaned := stripFence(text)

	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return nil, eris.New("extract: ai reply contains no json")
	}
	cleaned = cleaned[start:]

	if cleaned[0] == '{' {
		if end := strings.LastIndex(cleaned, "}"); end >= 0 {
			cleaned = cleaned[:end+1]
		}
		var wrapped struct {
			Transactions []BlockItem `json:"transactions"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
			return nil, eris.Wrap(err, "extract: parse ai reply object")
		}
		if wrapped.Transactions == nil {
			return nil, eris.New("extract: ai reply object has no transactions")
		}
		return wrapped.Transactions, nil
	}

	if end := strings.LastIndex(cleaned, "]"); end >= 0 {
		cleaned = cleaned[:end+1]
	}
	var items []BlockItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, eris.Wrap(err, "extract: parse ai reply array")
	}
	return items, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
