package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// Unprocessable reports a template design that cannot be rendered.
func Unprocessable(c *gin.Context, err error) {
	body := gin.H{"error": err.Error(), "code": errcode.InvalidTemplate}
	var cfgErr *card.ConfigurationError
	if errors.As(err, &cfgErr) {
		body["field"] = cfgErr.Field
	}
	c.JSON(http.StatusUnprocessableEntity, body)
}

// renderFailure maps loader and renderer errors onto a response.
func renderFailure(c *gin.Context, err error, internalMsg string) {
	switch {
	case card.IsConfigurationError(err):
		Unprocessable(c, err)
	case errors.Is(err, database.ErrNotFound):
		NotFound(c, err.Error())
	default:
		Internal(c, internalMsg)
	}
}
