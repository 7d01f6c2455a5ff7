// Package ingredients holds the nutrition row schema and reads and appends
// rows in a user's spreadsheet.
package ingredients

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
)

// Header is the fixed column schema written to row 1 of every spreadsheet.
var Header = []string{"Name", "Protein", "Carbs", "Fat", "Fiber", "Sodium", "Sugar", "Weight"}

// Ranges used against the DefaultSheet tab.
var (
	HeaderRange = spreadsheet.DefaultSheet + "!A1:H1"
	DataRange   = spreadsheet.DefaultSheet + "!A1:H"
	AppendRange = spreadsheet.DefaultSheet + "!A1"
)

var validate = validator.New()

// Ingredient is one nutrition row. Values are kept as entered, so "13g" or
// "~5" are accepted; only the name is required and every field is bounded.
type Ingredient struct {
	Name    string `form:"name" validate:"required,max=128"`
	Protein string `form:"protein" validate:"max=64"`
	Carbs   string `form:"carbs" validate:"max=64"`
	Fat     string `form:"fat" validate:"max=64"`
	Fiber   string `form:"fiber" validate:"max=64"`
	Sodium  string `form:"sodium" validate:"max=64"`
	Sugar   string `form:"sugar" validate:"max=64"`
	Weight  string `form:"weight" validate:"max=64"`
}

// FromForm reads and validates an Ingredient from submitted form values.
func FromForm(values url.Values) (Ingredient, error) {
	in := Ingredient{
		Name:    strings.TrimSpace(values.Get("name")),
		Protein: strings.TrimSpace(values.Get("protein")),
		Carbs:   strings.TrimSpace(values.Get("carbs")),
		Fat:     strings.TrimSpace(values.Get("fat")),
		Fiber:   strings.TrimSpace(values.Get("fiber")),
		Sodium:  strings.TrimSpace(values.Get("sodium")),
		Sugar:   strings.TrimSpace(values.Get("sugar")),
		Weight:  strings.TrimSpace(values.Get("weight")),
	}
	if err := in.Validate(); err != nil {
		return Ingredient{}, err
	}
	return in, nil
}

// Validate checks the field rules, reporting the first failing field.
func (in Ingredient) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return fmt.Errorf("%w: %s is required", apperrors.ErrInvalidInput, strings.ToLower(fe.Field()))
		}
		return fmt.Errorf("%w: %s must be at most %s characters", apperrors.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Param())
	}
	return apperrors.Kind(apperrors.ErrInvalidInput, err)
}

// Row returns the ingredient in Header column order.
func (in Ingredient) Row() []string {
	return []string{in.Name, in.Protein, in.Carbs, in.Fat, in.Fiber, in.Sodium, in.Sugar, in.Weight}
}
