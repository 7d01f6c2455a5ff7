package ingredients

import (
	"context"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
)

// Table is the content of a spreadsheet split into its header and data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Book reads and appends ingredient rows in one spreadsheet.
type Book struct {
	api           spreadsheet.API
	spreadsheetID string
}

func NewBook(api spreadsheet.API, spreadsheetID string) *Book {
	return &Book{api: api, spreadsheetID: spreadsheetID}
}

// List returns the header and every data row. The remote service drops
// trailing empty cells, so short rows are padded to the header width.
func (b *Book) List(ctx context.Context) (Table, error) {
	values, err := b.api.ReadRange(ctx, b.spreadsheetID, DataRange)
	if err != nil {
		return Table{}, apperrors.Kind(apperrors.ErrRemoteAPI, err)
	}

	table := Table{Header: append([]string(nil), Header...)}
	if len(values) == 0 {
		return table, nil
	}
	if len(values[0]) > 0 {
		table.Header = values[0]
	}
	for _, row := range values[1:] {
		table.Rows = append(table.Rows, pad(row, len(Header)))
	}
	return table, nil
}

// Add appends one ingredient after the last row.
func (b *Book) Add(ctx context.Context, in Ingredient) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := b.api.AppendRow(ctx, b.spreadsheetID, AppendRange, in.Row()); err != nil {
		return apperrors.Kind(apperrors.ErrRemoteAPI, err)
	}
	return nil
}

// WriteHeader writes Header to row 1 of a spreadsheet.
func WriteHeader(ctx context.Context, api spreadsheet.API, spreadsheetID string) error {
	return api.WriteRange(ctx, spreadsheetID, HeaderRange, [][]string{Header})
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
