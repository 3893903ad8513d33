package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RespondMessage(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"message": message})
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondMessage(ctx, http.StatusNotFound, message)
}

// RespondServerError is the single sink for store/hash/token failures.
// Nothing is allowed to escape a handler as a panic; everything lands
// here as a generic 500 with the underlying cause.
func RespondServerError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"message": "Error",
		"cause":   err.Error(),
	})
}

// RespondText sends one of the legacy raw-text bodies ("Email already
// registered", "Invalid Credentials", ...). These are deliberately not
// JSON: existing clients match on the exact plain-text payload.
func RespondText(ctx *gin.Context, status int, message string) {
	ctx.String(status, message)
}
