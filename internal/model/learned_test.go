package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategySpec_DispatchColumns(t *testing.T) {
	spec := StrategySpec{
		ParserType: ParserColumns,
		ColumnMapping: ColumnMapping{
			HeaderRows:        1,
			DateColumn:        0,
			DescriptionColumn: 1,
			AmountColumn:      IntPtr(3),
		},
		SanitizationRules: []SanitizationRule{{Pattern: `^PIX `, Replacement: ""}},
	}

	st, err := spec.Dispatch()
	require.NoError(t, err)
	cols, ok := st.(Columns)
	require.True(t, ok)
	assert.Equal(t, ParserColumns, cols.ParserType())
	assert.Equal(t, 3, *cols.Mapping.AmountColumn)
	assert.Len(t, cols.Sanitization, 1)
}

func TestStrategySpec_DispatchDefaultsToColumns(t *testing.T) {
	st, err := StrategySpec{ColumnMapping: ColumnMapping{DebitColumn: IntPtr(2)}}.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, ParserColumns, st.ParserType())
}

func TestStrategySpec_DispatchBlock(t *testing.T) {
	m := LearnedFileModel{Strategy: StrategySpec{
		ParserType:    ParserBlock,
		BlockContract: BlockContract{Description: "Extrato PDF do banco X"},
	}}

	st, err := m.Dispatch()
	require.NoError(t, err)
	blk, ok := st.(Block)
	require.True(t, ok)
	assert.Equal(t, "Extrato PDF do banco X", blk.Contract.Description)
}

func TestStrategySpec_DispatchErrors(t *testing.T) {
	tests := []struct {
		name string
		spec StrategySpec
		want string
	}{
		{"no amount", StrategySpec{ParserType: ParserColumns}, "amount, debit or credit"},
		{"negative index", StrategySpec{ColumnMapping: ColumnMapping{DateColumn: -1, AmountColumn: IntPtr(1)}}, "date and description"},
		{"negative header rows", StrategySpec{ColumnMapping: ColumnMapping{HeaderRows: -2, AmountColumn: IntPtr(1)}}, "header rows"},
		{"unknown parser", StrategySpec{ParserType: "XML"}, "unknown parser type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Dispatch()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLearnedFileModel_Label(t *testing.T) {
	assert.Equal(t, "itau-csv", LearnedFileModel{Identity: ModelIdentity{ID: "m1", Name: "itau-csv"}}.Label())
	assert.Equal(t, "m1", LearnedFileModel{Identity: ModelIdentity{ID: "m1"}}.Label())
}

func TestErrorTypes(t *testing.T) {
	hash := "abc123"
	nm := &NoModelMatchError{FileName: "extrato.csv", Fingerprint: &StructuralFingerprint{HeaderHash: &hash, DataTopologyPattern: "DATE,TEXT"}}
	assert.Contains(t, nm.Error(), "abc123")
	assert.Contains(t, nm.Error(), "DATE,TEXT")
	assert.Contains(t, (&NoModelMatchError{FileName: "x"}).Error(), "empty document")

	cause := errors.New("boom")
	pf := &PersistenceFailureError{ChunkIndex: 2, Inserted: 200, Cause: cause}
	assert.ErrorIs(t, pf, cause)
	assert.Contains(t, pf.Error(), "chunk 2")

	ef := &ExtractionFailureError{FileName: "a.pdf", Cause: cause}
	assert.ErrorIs(t, ef, cause)

	vr := &ValidationRejectedError{Line: 4, Reasons: []string{"invalid date", "description too short"}}
	assert.Equal(t, "line 4 rejected: invalid date, description too short", vr.Error())

	assert.Equal(t, "duplicate row hash h_0", (&PersistenceConflictError{RowHash: "h_0"}).Error())
}

func TestRawDocument_Lines(t *testing.T) {
	doc := RawDocument{RawText: "a;b\r\nc;d\r\n\r\ne;f\n"}
	assert.Equal(t, []string{"a;b", "c;d", "", "e;f"}, doc.Lines())
	assert.Equal(t, []string{"a;b", "c;d"}, doc.Preview(2))
	assert.Nil(t, RawDocument{}.Lines())
}

func TestStructuralFingerprint_DelimiterRune(t *testing.T) {
	assert.Equal(t, '\t', StructuralFingerprint{Delimiter: "\t"}.DelimiterRune())
	assert.Equal(t, ';', StructuralFingerprint{}.DelimiterRune())
	assert.False(t, StructuralFingerprint{}.HasHeaderHash())
}
