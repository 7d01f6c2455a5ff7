package ingredients_test

import (
	"net/url"
	"strings"
	"testing"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/ingredients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromForm(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		wantRow []string
		wantErr string
	}{
		{
			name: "all fields",
			form: url.Values{
				"name": {"Oats"}, "protein": {"13"}, "carbs": {"66"}, "fat": {"7"},
				"fiber": {"10"}, "sodium": {"0"}, "sugar": {"1"}, "weight": {"100"},
			},
			wantRow: []string{"Oats", "13", "66", "7", "10", "0", "1", "100"},
		},
		{
			name:    "only name",
			form:    url.Values{"name": {"  Salt "}},
			wantRow: []string{"Salt", "", "", "", "", "", "", ""},
		},
		{
			name:    "decimal values",
			form:    url.Values{"name": {"Milk"}, "fat": {"3.5"}, "sugar": {"-0.1"}},
			wantRow: []string{"Milk", "", "", "3.5", "", "", "-0.1", ""},
		},
		{
			name:    "missing name",
			form:    url.Values{"protein": {"1"}},
			wantErr: "invalid input: name is required",
		},
		{
			name:    "free text amounts",
			form:    url.Values{"name": {"Oats"}, "protein": {"13g"}, "carbs": {"~5"}},
			wantRow: []string{"Oats", "13g", "~5", "", "", "", "", ""},
		},
		{
			name:    "value too long",
			form:    url.Values{"name": {"Oats"}, "carbs": {strings.Repeat("9", 65)}},
			wantErr: "invalid input: carbs must be at most 64 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ingredients.FromForm(tt.form)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRow, in.Row())
		})
	}
}

func TestHeaderSchema(t *testing.T) {
	assert.Equal(t, []string{"Name", "Protein", "Carbs", "Fat", "Fiber", "Sodium", "Sugar", "Weight"}, ingredients.Header)
	assert.Equal(t, "Sheet1!A1:H1", ingredients.HeaderRange)
	assert.Equal(t, "Sheet1!A1:H", ingredients.DataRange)
}
