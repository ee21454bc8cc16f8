package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/grouping"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// BlockRequest is what BLOCK extraction sends to the AI collaborator.
type BlockRequest struct {
	FileName           string
	RawText            string
	ContextInstruction string
	// Base64Payload is the original PDF, when the document has one.
	Base64Payload string
}

// BlockItem is one transaction returned by the collaborator.
type BlockItem struct {
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Amount      LooseValue `json:"amount"`
	Type        string     `json:"type,omitempty"`
}

// LooseValue accepts a JSON string or number and keeps its text form, so
// "1.234,56" and 1234.56 both reach the amount resolver.
type LooseValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *LooseValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = LooseValue(s)
		return nil
	}
	*v = LooseValue(data)
	return nil
}

// BlockExtractor turns a free-form block of statement text into items.
type BlockExtractor interface {
	ExtractBlock(ctx context.Context, req BlockRequest) ([]BlockItem, error)
}

func (e *Executor) block(ctx context.Context, doc model.RawDocument, s model.Block) (*Result, error) {
	rules, err := grouping.RulesFromSpec(s.Contract.Grouping)
	if err != nil {
		return nil, eris.Wrap(err, "extract: block grouping rules")
	}

	records := grouping.Group(doc.Lines(), rules)
	req := BlockRequest{
		FileName:           doc.FileName,
		RawText:            strings.Join(grouping.Flatten(records), "\n"),
		ContextInstruction: s.Contract.Description,
	}
	if len(doc.RawBinary) > 0 {
		req.Base64Payload = base64.StdEncoding.EncodeToString(doc.RawBinary)
	}
	if req.RawText == "" && req.Base64Payload == "" {
		req.RawText = doc.RawText
	}

	res := &Result{}
	if e.blocks == nil {
		e.fail(res, doc.FileName, eris.New("no block extractor configured"))
		return res, nil
	}

	items, err := e.blocks.ExtractBlock(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract: block extraction cancelled")
		}
		e.fail(res, doc.FileName, err)
		return res, nil
	}

	anchor := s.Formatters.AnchorYear
	if anchor == 0 {
		anchor = resolve.DiscoverAnchorYear(doc.RawText, e.now())
	}

	for i, item := range items {
		e.metrics.RowRead()
		if item.Date == "" && item.Description == "" && item.Amount == "" {
			e.metrics.RowBlank()
			continue
		}

		var issues []string
		amount, ok := resolve.ParseAmount(string(item.Amount))
		if !ok {
			issues = append(issues, "invalid amount")
		}
		if s.Formatters.InvertSign && amount != 0 {
			amount = -amount
		}

		tx := buildTransaction(item.Date, item.Description, amount, anchor, nil)
		tx.PaymentMethod = resolve.DetectPaymentMethod(item.Description)
		tx.ContributionType = resolve.ClassifyType(item.Type)
		if tx.ContributionType == model.TypeOther {
			tx.ContributionType = resolve.ClassifyType(item.Description)
		}
		res.Rows = append(res.Rows, Row{Line: i + 1, Transaction: tx, Issues: append(tx.Validate(), issues...)})
	}
	return res, nil
}

func (e *Executor) fail(res *Result, fileName string, cause error) {
	e.metrics.BlockFailure()
	res.Warnings = append(res.Warnings, &model.ExtractionFailureError{FileName: fileName, Cause: cause})
	zap.L().Warn("block extraction failed",
		zap.String("component", "extract"),
		zap.String("file", fileName),
		zap.Error(cause),
	)
}
