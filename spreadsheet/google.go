package spreadsheet

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jrsteele09/ingredient-sheets/credentials"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultRetryWindow = 5 * time.Second

	valueInputRaw         = "RAW"
	valueInputUserEntered = "USER_ENTERED"
)

var _ Factory = (*GoogleFactory)(nil)

// GoogleFactory creates Sheets v4 clients whose token source refreshes and
// persists the user's credential through the credential store.
type GoogleFactory struct {
	creds         *credentials.Store
	callTimeout   time.Duration
	retryWindow   time.Duration
	clientOptions []option.ClientOption
}

// GoogleOption defines a function type to modify the GoogleFactory instance.
type GoogleOption func(*GoogleFactory)

// WithCallTimeout bounds every single remote call.
func WithCallTimeout(d time.Duration) GoogleOption {
	return func(f *GoogleFactory) {
		if d > 0 {
			f.callTimeout = d
		}
	}
}

// WithRetryWindow sets how long idempotent calls keep retrying.
func WithRetryWindow(d time.Duration) GoogleOption {
	return func(f *GoogleFactory) {
		f.retryWindow = d
	}
}

// WithClientOptions adds options to every Sheets client (endpoint overrides in tests).
func WithClientOptions(opts ...option.ClientOption) GoogleOption {
	return func(f *GoogleFactory) {
		f.clientOptions = append(f.clientOptions, opts...)
	}
}

func NewGoogleFactory(creds *credentials.Store, options ...GoogleOption) *GoogleFactory {
	f := &GoogleFactory{
		creds:       creds,
		callTimeout: defaultCallTimeout,
		retryWindow: defaultRetryWindow,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *GoogleFactory) ForCredential(ctx context.Context, identity string, cred *credentials.Credential) (API, error) {
	if cred == nil {
		return nil, errors.New("[GoogleFactory ForCredential] credential is required")
	}

	opts := append([]option.ClientOption{option.WithTokenSource(f.creds.TokenSource(ctx, identity, cred))}, f.clientOptions...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[GoogleFactory ForCredential] create sheets service")
	}
	return &googleSheets{
		svc:         svc,
		identity:    identity,
		callTimeout: f.callTimeout,
		retryWindow: f.retryWindow,
	}, nil
}

type googleSheets struct {
	svc         *sheetsapi.Service
	identity    string
	callTimeout time.Duration
	retryWindow time.Duration
}

func (g *googleSheets) Create(ctx context.Context, title string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := g.svc.Spreadsheets.Create(&sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: title},
		Sheets: []*sheetsapi.Sheet{
			{Properties: &sheetsapi.SheetProperties{Title: DefaultSheet}},
		},
	}).Context(callCtx).Do()
	if err != nil {
		return "", classify(err, "create spreadsheet")
	}
	if resp.SpreadsheetId == "" {
		return "", errors.New("create spreadsheet: empty spreadsheet id")
	}
	return resp.SpreadsheetId, nil
}

func (g *googleSheets) WriteRange(ctx context.Context, spreadsheetID, rng string, rows [][]string) error {
	return g.retry(ctx, "write range", func(callCtx context.Context) error {
		_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheetsapi.ValueRange{
			Values: toValues(rows),
		}).ValueInputOption(valueInputRaw).Context(callCtx).Do()
		return err
	})
}

func (g *googleSheets) AppendRow(ctx context.Context, spreadsheetID, rng string, row []string) error {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	_, err := g.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheetsapi.ValueRange{
		Values: toValues([][]string{row}),
	}).ValueInputOption(valueInputUserEntered).Context(callCtx).Do()
	if err != nil {
		return classify(err, "append row")
	}
	return nil
}

func (g *googleSheets) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	var rows [][]string
	err := g.retry(ctx, "read range", func(callCtx context.Context) error {
		resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(callCtx).Do()
		if err != nil {
			return err
		}
		rows = fromValues(resp.Values)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// retry runs an idempotent call with exponential backoff. Only throttling,
// server errors and timeouts are retried.
func (g *googleSheets) retry(ctx context.Context, what string, call func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Str("identity", g.identity).Int("attempt", attempt).Msgf("Retrying sheets %s", what)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = g.retryWindow
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return classify(err, what)
	}
	return nil
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return apperrors.IsTimeout(err)
}

func classify(err error, what string) error {
	wrapped := fmt.Errorf("sheets %s: %w", what, err)
	if transient(err) {
		return apperrors.Retryable(wrapped)
	}
	return wrapped
}

func toValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	return values
}

func fromValues(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return rows
}
