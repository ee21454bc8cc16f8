package resolve

import "github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"

// InferMapping suggests a column mapping for rows of an unknown layout.
// It returns false when no date, description or amount column is found.
func InferMapping(rows [][]string) (model.ColumnMapping, bool) {
	var m model.ColumnMapping

	date := IdentifyDateColumn(rows)
	if date < 0 {
		return m, false
	}
	amount := IdentifyAmountColumn(rows, date)
	if amount < 0 {
		return m, false
	}
	name := IdentifyNameColumn(rows, date, amount)
	if name < 0 {
		return m, false
	}

	for _, row := range rows {
		if date < len(row) && IsDateLike(row[date]) {
			break
		}
		m.HeaderRows++
	}
	if m.HeaderRows == len(rows) {
		m.HeaderRows = 0
	}

	m.DateColumn = date
	m.DescriptionColumn = name
	m.AmountColumn = model.IntPtr(amount)
	return m, true
}
