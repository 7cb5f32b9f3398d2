package academicyear

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Mavuisra/naklass-sub005/core"
)

func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(yearStructValidation, NewYear{})
}

// yearStructValidation requires date_debut < date_fin.
// Dates are compared as "2006-01-02" strings, which sort chronologically.
func yearStructValidation(sl validator.StructLevel) {
	ny, ok := sl.Current().Interface().(NewYear)
	if !ok {
		return
	}
	if _, err := core.ParseDate(ny.StartDate); err != nil {
		return
	}
	if _, err := core.ParseDate(ny.EndDate); err != nil {
		return
	}
	if ny.StartDate >= ny.EndDate {
		sl.ReportError(ny.EndDate, "date_fin", "EndDate", core.DateOrderTag, "")
	}
}
