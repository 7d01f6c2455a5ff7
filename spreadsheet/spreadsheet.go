// Package spreadsheet is the contract for the remote spreadsheet service the
// app stores ingredient rows in, plus its Google Sheets v4 adapter.
package spreadsheet

import (
	"context"

	"github.com/jrsteele09/ingredient-sheets/credentials"
)

// DefaultSheet is the title of the first tab of every created spreadsheet.
const DefaultSheet = "Sheet1"

// API is the subset of spreadsheet operations the app relies on. Ranges use
// A1 notation, e.g. "Sheet1!A1:H".
type API interface {
	// Create makes a new spreadsheet and returns its id.
	Create(ctx context.Context, title string) (string, error)
	// WriteRange overwrites the cells of rng with rows.
	WriteRange(ctx context.Context, spreadsheetID, rng string, rows [][]string) error
	// AppendRow adds row after the last non-empty row of rng.
	AppendRow(ctx context.Context, spreadsheetID, rng string, row []string) error
	// ReadRange returns the populated rows of rng.
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
}

// Factory builds an API client acting on behalf of one user.
type Factory interface {
	ForCredential(ctx context.Context, identity string, cred *credentials.Credential) (API, error)
}
