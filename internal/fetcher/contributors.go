package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/reconcile"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// Column aliases recognized in contributor list headers, after folding.
var (
	nameHeaders   = []string{"NOME", "NAME", "CONTRIBUINTE", "MEMBRO", "DIZIMISTA"}
	amountHeaders = []string{"VALOR", "AMOUNT", "VALOR ESPERADO"}
	dateHeaders   = []string{"DATA", "DATE", "VENCIMENTO"}
	churchHeaders = []string{"IGREJA", "CHURCH", "CONGREGACAO", "CHURCH_ID", "IGREJA_ID"}
)

// contributorRecord is the JSON shape of a contributor list entry.
type contributorRecord struct {
	Name     string          `json:"name"`
	Amount   json.RawMessage `json:"amount"`
	Date     string          `json:"date"`
	ChurchID string          `json:"church_id"`
}

type contributorColumns struct {
	name, amount, date, church int
}

// LoadContributors parses a contributor list from CSV, XLSX or JSON.
// Rows without a name are skipped. defaultChurch applies when a row does not
// name its church.
func LoadContributors(ctx context.Context, name string, data []byte, defaultChurch string) ([]model.Contributor, error) {
	var (
		out []model.Contributor
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		out, err = contributorsFromJSON(ctx, data, defaultChurch)
	case ".xlsx":
		var rows [][]string
		rows, err = ReadXLSX(data, XLSXOptions{})
		if err == nil {
			out = contributorsFromRows(rows, defaultChurch)
		}
	default:
		text := DecodeText(data)
		first, _, _ := strings.Cut(text, "\n")
		delim := fingerprint.DetectDelimiter(first)
		var rows [][]string
		rows, err = ReadCSV(ctx, strings.NewReader(text), CSVOptions{
			Delimiter:  []rune(delim)[0],
			LazyQuotes: true,
			TrimSpace:  true,
			SkipBlank:  true,
		})
		if err == nil {
			out = contributorsFromRows(rows, defaultChurch)
		}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: load contributors %s", name)
	}

	zap.L().Debug("contributors loaded",
		zap.String("component", "fetcher"),
		zap.String("file", name),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func contributorsFromJSON(ctx context.Context, data []byte, defaultChurch string) ([]model.Contributor, error) {
	itemCh, errCh := DecodeJSONArray[contributorRecord](ctx, bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	var out []model.Contributor
	for rec := range itemCh {
		amount := strings.Trim(strings.TrimSpace(string(rec.Amount)), `"`)
		if c, ok := newContributor(rec.Name, amount, rec.Date, rec.ChurchID, defaultChurch); ok {
			out = append(out, c)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

func contributorsFromRows(rows [][]string, defaultChurch string) []model.Contributor {
	if len(rows) == 0 {
		return nil
	}
	cols, hasHeader := headerColumns(rows[0])
	if hasHeader {
		rows = rows[1:]
	} else {
		cols = inferColumns(rows)
	}
	if cols.name < 0 {
		return nil
	}

	var out []model.Contributor
	for _, row := range rows {
		if c, ok := newContributor(cell(row, cols.name), cell(row, cols.amount), cell(row, cols.date), cell(row, cols.church), defaultChurch); ok {
			out = append(out, c)
		}
	}
	return out
}

// headerColumns reports the columns named by a header row. A row counts as a
// header when it names the contributor column.
func headerColumns(row []string) (contributorColumns, bool) {
	cols := contributorColumns{name: -1, amount: -1, date: -1, church: -1}
	for i, h := range row {
		key := strings.ToUpper(strings.TrimSpace(resolve.Fold(h)))
		switch {
		case cols.name < 0 && contains(nameHeaders, key):
			cols.name = i
		case cols.amount < 0 && contains(amountHeaders, key):
			cols.amount = i
		case cols.date < 0 && contains(dateHeaders, key):
			cols.date = i
		case cols.church < 0 && contains(churchHeaders, key):
			cols.church = i
		}
	}
	return cols, cols.name >= 0
}

func inferColumns(rows [][]string) contributorColumns {
	date := resolve.IdentifyDateColumn(rows)
	amount := resolve.IdentifyAmountColumn(rows, date)
	return contributorColumns{
		name:   resolve.IdentifyNameColumn(rows, date, amount),
		amount: amount,
		date:   date,
		church: -1,
	}
}

func newContributor(name, amount, date, church, defaultChurch string) (model.Contributor, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Contributor{}, false
	}
	c := model.Contributor{
		Name:           name,
		CleanedName:    resolve.NormalizeName(name),
		NormalizedName: reconcile.Normalize(name),
		ChurchID:       strings.TrimSpace(church),
	}
	if c.ChurchID == "" {
		c.ChurchID = defaultChurch
	}
	if v, ok := resolve.ParseAmount(amount); ok {
		c.Amount = v
	}
	if d, ok := resolve.NormalizeDate(date, 0); ok {
		c.Date = &d
	}
	return c, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
