package respond

import (
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

// Error represents a standard structure for error responses.
type Error struct {
	Message string `json:"message"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK sends a 200 OK JSON response with the given payload.
func OK(c *ginext.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Fail sends an error JSON response with the specified HTTP status code.
// The error message is wrapped in an Error struct.
func Fail(c *ginext.Context, status int, err error) {
	JSON(c, status, Error{Message: err.Error()})
}

// File streams raw bytes from a reader with the given content type and
// Content-Disposition header.
func File(c *ginext.Context, contentType, disposition string, reader io.Reader) {
	c.DataFromReader(http.StatusOK, -1, contentType, reader, map[string]string{
		"Content-Disposition": disposition,
	})
}
