package repofake

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jrsteele09/ingredient-sheets/credentials"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
)

var (
	_ spreadsheet.API     = (*FakeAPI)(nil)
	_ spreadsheet.Factory = (*FakeFactory)(nil)
)

// FakeAPI is an in-memory spreadsheet service. Each spreadsheet is a single
// grid; the sheet name and column bounds of a range are ignored, only the
// start row is honoured by WriteRange.
type FakeAPI struct {
	lock   sync.Mutex
	sheets map[string][][]string
	titles map[string]string
	nextID int
	calls  map[string]int

	failures     map[string]error
	beforeCreate func(ctx context.Context)
}

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		sheets:   make(map[string][][]string),
		titles:   make(map[string]string),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Fail makes every later call to method return err. A nil err clears it.
func (f *FakeAPI) Fail(method string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// OnCreate registers a hook run, without the lock held, at the start of
// every Create.
func (f *FakeAPI) OnCreate(hook func(ctx context.Context)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.beforeCreate = hook
}

func (f *FakeAPI) Create(ctx context.Context, title string) (string, error) {
	f.lock.Lock()
	hook := f.beforeCreate
	f.lock.Unlock()
	if hook != nil {
		hook(ctx)
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["Create"]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.failures["Create"]; err != nil {
		return "", err
	}

	f.nextID++
	id := fmt.Sprintf("sheet-%d", f.nextID)
	f.sheets[id] = nil
	f.titles[id] = title
	return id, nil
}

func (f *FakeAPI) WriteRange(_ context.Context, spreadsheetID, rng string, rows [][]string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["WriteRange"]++
	if err := f.failures["WriteRange"]; err != nil {
		return err
	}

	grid, ok := f.sheets[spreadsheetID]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", spreadsheetID)
	}
	start := startRow(rng) - 1
	for len(grid) < start+len(rows) {
		grid = append(grid, nil)
	}
	for i, row := range rows {
		grid[start+i] = append([]string(nil), row...)
	}
	f.sheets[spreadsheetID] = grid
	return nil
}

func (f *FakeAPI) AppendRow(_ context.Context, spreadsheetID, _ string, row []string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["AppendRow"]++
	if err := f.failures["AppendRow"]; err != nil {
		return err
	}

	grid, ok := f.sheets[spreadsheetID]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", spreadsheetID)
	}
	f.sheets[spreadsheetID] = append(grid, append([]string(nil), row...))
	return nil
}

func (f *FakeAPI) ReadRange(_ context.Context, spreadsheetID, _ string) ([][]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls["ReadRange"]++
	if err := f.failures["ReadRange"]; err != nil {
		return nil, err
	}

	grid, ok := f.sheets[spreadsheetID]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %s not found", spreadsheetID)
	}
	rows := make([][]string, 0, len(grid))
	for _, row := range grid {
		rows = append(rows, append([]string(nil), row...))
	}
	return rows, nil
}

// Calls returns how often method was invoked.
func (f *FakeAPI) Calls(method string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *FakeAPI) TotalCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Spreadsheets returns the ids of every created spreadsheet.
func (f *FakeAPI) Spreadsheets() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	ids := make([]string, 0, len(f.sheets))
	for id := range f.sheets {
		ids = append(ids, id)
	}
	return ids
}

// Title returns the title a spreadsheet was created with.
func (f *FakeAPI) Title(spreadsheetID string) string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.titles[spreadsheetID]
}

// startRow extracts the first row number of an A1 range, defaulting to 1.
func startRow(rng string) int {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	if i := strings.Index(rng, ":"); i >= 0 {
		rng = rng[:i]
	}
	digits := strings.TrimLeft(rng, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// FakeFactory hands out the same FakeAPI for every credential.
type FakeFactory struct {
	API *FakeAPI
	Err error

	lock       sync.Mutex
	identities []string
}

func NewFakeFactory(api *FakeAPI) *FakeFactory {
	return &FakeFactory{API: api}
}

func (f *FakeFactory) ForCredential(_ context.Context, identity string, _ *credentials.Credential) (spreadsheet.API, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.identities = append(f.identities, identity)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.API, nil
}

// Identities returns the identities clients were requested for, in order.
func (f *FakeFactory) Identities() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.identities...)
}
