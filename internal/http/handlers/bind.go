package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// BindJSON decodes and validates a request payload. Rule violations
// short-circuit with 422 and a field-level error list; anything that is
// not even well-formed JSON is a plain 400.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err == nil {
		return true
	}

	var validatorErrors validator.ValidationErrors

	if errors.As(err, &validatorErrors) {
		fields := make([]FieldError, 0, len(validatorErrors))

		for _, fieldError := range validatorErrors {
			field := jsonFieldName(out, fieldError.StructField())
			rule := fieldError.Tag()

			fields = append(fields, FieldError{
				Field:   field,
				Rule:    rule,
				Message: validationMessage(rule, fieldError.Param()),
			})
		}

		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fields})

		return false
	}

	RespondMessage(ctx, http.StatusBadRequest, "Invalid request body")

	return false
}

// jsonFieldName maps a struct field back to its json tag. The request
// DTOs here are flat, so a top-level lookup is all that is needed.
func jsonFieldName(out interface{}, structField string) string {
	t := reflect.TypeOf(out)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return structField
	}

	sf, ok := t.FieldByName(structField)

	if !ok {
		return structField
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")

	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "userpassword":
		return "must be at least 8 characters with a number and an uppercase letter"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return "failed " + rule + " validation (" + param + ")"
		}
		return "failed " + rule + " validation"
	}
}
