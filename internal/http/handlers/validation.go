package handlers

import (
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the custom binding rules on gin's
// validator engine. Call once at router construction.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)

	if !ok {
		return
	}

	_ = v.RegisterValidation("userpassword", validUserPassword)
}

// validUserPassword enforces the login password policy: minimum length
// 8, at least one digit, at least one uppercase letter.
func validUserPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	hasDigit := false
	hasUpper := false

	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}

	return hasDigit && hasUpper
}
