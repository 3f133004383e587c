package analytics

import (
	"github.com/samber/lo"

	"actiond/internal/domain"
)

// Crosstab is a two-dimensional count table.
type Crosstab struct {
	Rows    string                    `json:"rows"`
	Columns string                    `json:"columns"`
	Counts  map[string]map[string]int `json:"counts"`
	RowKeys []string                  `json:"rowKeys"`
	ColKeys []string                  `json:"columnKeys"`
}

// Tabulate counts entries per (row value, column value).
// Params: row and column properties and materialized entries.
// Returns: table, or false when both axes have fewer than two distinct values.
func Tabulate[R, C comparable](rows Property[R], cols Property[C], entries []domain.Entry) (Crosstab, bool) {
	rowValues := rows.distinct(entries)
	colValues := cols.distinct(entries)
	if len(rowValues) < 2 && len(colValues) < 2 {
		return Crosstab{}, false
	}

	table := Crosstab{
		Rows:    rows.Name,
		Columns: cols.Name,
		Counts:  make(map[string]map[string]int, len(rowValues)),
		RowKeys: lo.Map(rowValues, func(value R, _ int) string { return rows.Label(value) }),
		ColKeys: lo.Map(colValues, func(value C, _ int) string { return cols.Label(value) }),
	}
	for _, entry := range entries {
		for _, row := range rows.Extract(entry) {
			rowLabel := rows.Label(row)
			inner, ok := table.Counts[rowLabel]
			if !ok {
				inner = make(map[string]int)
				table.Counts[rowLabel] = inner
			}
			for _, col := range cols.Extract(entry) {
				inner[cols.Label(col)]++
			}
		}
	}
	return table, true
}
