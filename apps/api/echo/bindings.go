package echoapi

import (
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// ConfirmRequest guards irreversible operations.
type ConfirmRequest struct {
	Confirm bool `json:"confirm" validate:"required"`
}

func bindConfirm(ctx echo.Context, v *core.Validator) error {
	var data ConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmRequest")
	}
	return v.Struct(data)
}

// formFile opens the uploaded file of the multipart field.
func formFile(ctx echo.Context, field string) (string, io.ReadCloser, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return "", nil, core.NewValidationError(nil, core.FieldError{Field: field, Error: "a file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, errors.Wrap(err, "opening uploaded file")
	}
	return fh.Filename, f, nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
