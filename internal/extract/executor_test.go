package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockBlockExtractor struct {
	mock.Mock
}

func (m *mockBlockExtractor) ExtractBlock(ctx context.Context, req BlockRequest) ([]BlockItem, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BlockItem), args.Error(1)
}

func columnsModel(mapping model.ColumnMapping) *model.LearnedFileModel {
	return &model.LearnedFileModel{
		Identity: model.ModelIdentity{ID: "m1", Name: "banco-csv", IsActive: true},
		Strategy: model.StrategySpec{ParserType: model.ParserColumns, ColumnMapping: mapping},
	}
}

func newTestExecutor(blocks BlockExtractor, m *metrics.Collector) *Executor {
	e := NewExecutor(blocks, m)
	e.now = func() time.Time { return time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

const statement = `Data;Historico;Valor
01/07/2024;PIX RECEBIDO JOAO DA SILVA;100,00

02/07/2024;DIZIMO MARIA SOUZA;1.234,56
03/07/2024;TARIFA PACOTE;-12,50
;;
99/99/2024;X;abc
`

func TestExecute_Columns(t *testing.T) {
	doc := model.RawDocument{FileName: "julho.csv", RawText: statement}
	fp := fingerprint.Compute(doc.RawText)
	lm := columnsModel(model.ColumnMapping{HeaderRows: 1, DateColumn: 0, DescriptionColumn: 1, AmountColumn: model.IntPtr(2)})
	m := metrics.NewCollector()

	res, err := newTestExecutor(nil, m).Execute(context.Background(), doc, fp, lm)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	valid := res.Valid()
	require.Len(t, valid, 3)

	first := valid[0]
	assert.Equal(t, "2024-07-01", first.Date)
	assert.Equal(t, "PIX RECEBIDO JOAO DA SILVA", first.Name)
	assert.Equal(t, "PIX RECEBIDO JOAO DA SILVA", first.RawDescription)
	assert.InDelta(t, 100.0, first.Amount, 1e-9)
	assert.Equal(t, model.PaymentPIX, first.PaymentMethod)
	assert.Equal(t, "TRANSFERENCIA", first.ContributionType)
	assert.Equal(t, model.StatusPending, first.Status)
	assert.NotEmpty(t, first.ID)

	assert.Equal(t, "DIZIMO", valid[1].ContributionType)
	assert.InDelta(t, 1234.56, valid[1].Amount, 1e-9)
	assert.Equal(t, model.PaymentOther, valid[1].PaymentMethod)
	assert.InDelta(t, -12.5, valid[2].Amount, 1e-9)

	rejected := res.Rejected()
	require.Len(t, rejected, 1)
	assert.Equal(t, 7, rejected[0].Line)
	assert.Contains(t, rejected[0].Reasons, "invalid date")
	assert.Contains(t, rejected[0].Reasons, "description too short")
	assert.Contains(t, rejected[0].Reasons, "invalid amount")

	s := m.Snapshot()
	assert.Equal(t, int64(5), s.RowsRead)
	assert.Equal(t, int64(2), s.RowsBlank)
	assert.Equal(t, int64(1), s.RowsRejected)
	assert.Equal(t, int64(3), s.RowsExtracted)
}

func TestExecute_ColumnsDebitCreditAndConstraints(t *testing.T) {
	doc := model.RawDocument{
		FileName: "conta.csv",
		RawText: "Data;Descricao;Debito;Credito\n" +
			"SALDO ANTERIOR;;;500,00\n" +
			"05/07;TED RECEBIDA ANA;;250,00\n" +
			"06/07;PAGTO BOLETO LUZ;80,00;\n" +
			"07/07;AJUSTE;0,00;\n",
	}
	fp := fingerprint.Compute(doc.RawText)
	lm := columnsModel(model.ColumnMapping{
		HeaderRows: 1, DateColumn: 0, DescriptionColumn: 1,
		DebitColumn: model.IntPtr(2), CreditColumn: model.IntPtr(3),
	})
	lm.Strategy.Formatters.AnchorYear = 2023
	lm.Strategy.Constraints = model.Constraints{SkipPatterns: []string{`^saldo`}, IgnoreZeroAmounts: true}
	lm.Strategy.SanitizationRules = []model.SanitizationRule{{Pattern: `^TED RECEBIDA `, Replacement: ""}}
	m := metrics.NewCollector()

	res, err := newTestExecutor(nil, m).Execute(context.Background(), doc, fp, lm)
	require.NoError(t, err)

	valid := res.Valid()
	require.Len(t, valid, 2)
	assert.Equal(t, "2023-07-05", valid[0].Date)
	assert.InDelta(t, 250.0, valid[0].Amount, 1e-9)
	assert.Equal(t, "ANA", valid[0].CleanedDescription)
	assert.Equal(t, "TED RECEBIDA ANA", valid[0].RawDescription)
	assert.Equal(t, model.PaymentTED, valid[0].PaymentMethod)

	assert.Equal(t, "2023-07-06", valid[1].Date)
	assert.InDelta(t, -80.0, valid[1].Amount, 1e-9)
	assert.Equal(t, model.PaymentBoleto, valid[1].PaymentMethod)

	assert.Equal(t, int64(2), m.Snapshot().RowsIgnored)
}

func TestExecute_ColumnsInvertSign(t *testing.T) {
	doc := model.RawDocument{FileName: "cartao.csv", RawText: "01/07/2024;COMPRA MERCADO;45,90\n"}
	lm := columnsModel(model.ColumnMapping{DateColumn: 0, DescriptionColumn: 1, AmountColumn: model.IntPtr(2)})
	lm.Strategy.Formatters.InvertSign = true

	res, err := newTestExecutor(nil, nil).Execute(context.Background(), doc, fingerprint.Compute(doc.RawText), lm)
	require.NoError(t, err)
	require.Len(t, res.Valid(), 1)
	assert.InDelta(t, -45.90, res.Valid()[0].Amount, 1e-9)
}

func TestExecute_InvalidModel(t *testing.T) {
	e := newTestExecutor(nil, nil)
	_, err := e.Execute(context.Background(), model.RawDocument{}, nil, nil)
	require.Error(t, err)

	lm := columnsModel(model.ColumnMapping{})
	_, err = e.Execute(context.Background(), model.RawDocument{RawText: "a"}, nil, lm)
	require.Error(t, err)

	lm = columnsModel(model.ColumnMapping{AmountColumn: model.IntPtr(2)})
	lm.Strategy.Constraints.SkipPatterns = []string{"("}
	_, err = e.Execute(context.Background(), model.RawDocument{RawText: "a"}, nil, lm)
	require.Error(t, err)
}

func blockModel() *model.LearnedFileModel {
	return &model.LearnedFileModel{
		Identity: model.ModelIdentity{ID: "b1", Name: "banco-pdf", IsActive: true},
		Strategy: model.StrategySpec{
			ParserType:    model.ParserBlock,
			BlockContract: model.BlockContract{Description: "Extrato mensal em PDF", Grouping: model.GroupingSpec{AllowMultiLine: model.BoolPtr(true)}},
			Formatters:    model.Formatters{AnchorYear: 2024},
		},
	}
}

func TestExecute_Block(t *testing.T) {
	doc := model.RawDocument{
		FileName:  "extrato.pdf",
		RawText:   "BANCO EXEMPLO\n01/07 PIX RECEBIDO\nJOAO DA SILVA\n100,00\n",
		RawBinary: []byte("%PDF-1.4"),
	}
	blocks := &mockBlockExtractor{}
	blocks.On("ExtractBlock", mock.Anything, mock.MatchedBy(func(req BlockRequest) bool {
		return req.RawText == "01/07 PIX RECEBIDO JOAO DA SILVA 100,00" &&
			req.ContextInstruction == "Extrato mensal em PDF" &&
			req.Base64Payload == base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	})).Return([]BlockItem{
		{Date: "01/07", Description: "PIX RECEBIDO JOAO DA SILVA", Amount: "100,00", Type: "PIX"},
		{Date: "02/07", Description: "OFERTA CULTO", Amount: "35.5", Type: ""},
		{},
		{Date: "xx", Description: "?", Amount: "1"},
	}, nil)
	m := metrics.NewCollector()

	res, err := newTestExecutor(blocks, m).Execute(context.Background(), doc, fingerprint.Compute(doc.RawText), blockModel())
	require.NoError(t, err)
	blocks.AssertExpectations(t)
	assert.Empty(t, res.Warnings)

	valid := res.Valid()
	require.Len(t, valid, 2)
	assert.Equal(t, "2024-07-01", valid[0].Date)
	assert.Equal(t, model.PaymentPIX, valid[0].PaymentMethod)
	assert.Equal(t, "TRANSFERENCIA", valid[0].ContributionType)
	assert.Equal(t, "OFERTA", valid[1].ContributionType)
	assert.InDelta(t, 35.5, valid[1].Amount, 1e-9)
	assert.Len(t, res.Rejected(), 1)
	assert.Equal(t, int64(1), m.Snapshot().RowsBlank)
}

func TestExecute_BlockFailureIsWarning(t *testing.T) {
	doc := model.RawDocument{FileName: "extrato.pdf", RawText: "01/07 PIX 10,00"}
	blocks := &mockBlockExtractor{}
	blocks.On("ExtractBlock", mock.Anything, mock.Anything).Return(nil, errors.New("malformed reply"))
	m := metrics.NewCollector()

	res, err := newTestExecutor(blocks, m).Execute(context.Background(), doc, nil, blockModel())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	require.Len(t, res.Warnings, 1)

	var ef *model.ExtractionFailureError
	require.True(t, errors.As(res.Warnings[0], &ef))
	assert.Equal(t, "extrato.pdf", ef.FileName)
	assert.Equal(t, int64(1), m.Snapshot().BlockFailures)
}

func TestExecute_BlockWithoutExtractor(t *testing.T) {
	res, err := newTestExecutor(nil, nil).Execute(context.Background(), model.RawDocument{FileName: "a.pdf", RawText: "x"}, nil, blockModel())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Len(t, res.Warnings, 1)
}

func TestExecute_BlockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocks := &mockBlockExtractor{}
	blocks.On("ExtractBlock", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	_, err := newTestExecutor(blocks, nil).Execute(ctx, model.RawDocument{FileName: "a.pdf", RawText: "x"}, nil, blockModel())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
