// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	productIDPattern = regexp.MustCompile(`^[0-9]+$`)
	brandPattern     = regexp.MustCompile(`^[\p{L}\p{N} ._&'-]+$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("product_id", validateProductID)
	validate.RegisterValidation("brand", validateBrand)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar checks a single value against a tag expression.
func ValidateVar(v interface{}, tag string) error {
	return validate.Var(v, tag)
}

func validateProductID(fl validator.FieldLevel) bool {
	return productIDPattern.MatchString(fl.Field().String())
}

func validateBrand(fl validator.FieldLevel) bool {
	brand := strings.TrimSpace(fl.Field().String())
	if brand == "" || len(brand) > 100 {
		return false
	}
	return brandPattern.MatchString(brand)
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "url":
		return e.Field() + " must be an absolute URL"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "product_id":
		return "Product ID must contain digits only"
	case "brand":
		return "Brand must be 1-100 characters of letters, digits and basic punctuation"
	default:
		return e.Field() + " is invalid"
	}
}
