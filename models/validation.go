package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"storefront-service/apperrors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names so messages match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Numeric rules (gte, lt) on prices compare the decimal as a float.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Validate checks the product field invariants and returns a validation
// error describing the first violation.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.Wrap(apperrors.ErrValidation, "name is required")
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.Wrap(apperrors.ErrValidation, "%s", describe(verrs[0]))
		}
		return apperrors.Wrap(apperrors.ErrValidation, "%s", err.Error())
	}

	if !p.Price.Equal(p.Price.Round(2)) {
		return apperrors.Wrap(apperrors.ErrValidation, "price must have at most 2 decimal places")
	}
	if p.Price.GreaterThanOrEqual(MaxPrice) {
		return apperrors.Wrap(apperrors.ErrValidation, "price must be less than %s", MaxPrice.String())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed total_quantity", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
