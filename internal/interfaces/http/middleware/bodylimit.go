package middleware

import (
	"net/http"

	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit rejects requests whose body exceeds maxBytes. A non-positive
// limit disables the check.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			resp := dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			resp.Error.RequestID = RequestIDFrom(c)
			c.Set(ErrorCodeKey, dto.ErrCodeRequestTooLarge)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}

		// Streaming bodies without Content-Length are cut off while reading
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
