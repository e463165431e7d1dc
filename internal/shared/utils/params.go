package utils

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/cellcore/internal/shared/errors"
)

// ParseIMSIParam reads a subscriber identity from a URL path parameter.
func ParseIMSIParam(c *gin.Context, paramName string) (string, error) {
	imsi := c.Param(paramName)
	if imsi == "" {
		return "", errors.NewValidationError("imsi is required")
	}
	if len(imsi) > 15 || !IsDigits(imsi) {
		return "", errors.NewValidationError("invalid imsi, expected up to 15 digits", imsi)
	}
	return imsi, nil
}
