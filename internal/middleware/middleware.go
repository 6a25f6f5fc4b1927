package middleware

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger returns a Gin middleware that writes one access line per request
// to gin.DefaultWriter.
func Logger() gin.HandlerFunc {
	return LoggerTo(nil)
}

// LoggerTo is Logger writing to w; nil means gin.DefaultWriter.
//
// Each line names the horde role the endpoint serves and which key, if
// any, was accepted, so a worker sending its reception key to the
// generation endpoints shows up in the log.
func LoggerTo(w io.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		out := w
		if out == nil {
			out = gin.DefaultWriter
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fmt.Fprintf(out, "%s [mockhorde] %-4s %-30s role=%-10s key=%s status=%d %v\n",
			start.Format("2006/01/02 15:04:05"),
			c.Request.Method,
			route,
			roleFor(route),
			keyLabel(c),
			c.Writer.Status(),
			time.Since(start).Round(time.Microsecond),
		)
	}
}

// roleFor maps a route to the worker identity expected to call it.
func roleFor(route string) string {
	switch {
	case strings.HasSuffix(route, "/generate/pop"):
		return "reception"
	case strings.Contains(route, "/generate/"):
		return "generation"
	case strings.Contains(route, "/admin/"):
		return "admin"
	default:
		return "-"
	}
}

// keyLabel reports the accepted key by a short prefix only.
func keyLabel(c *gin.Context) string {
	key := c.GetString(CtxKeyAPIKey)
	switch {
	case key != "":
		if len(key) > 4 {
			key = key[:4] + "…"
		}
		return key
	case c.GetHeader("apikey") != "":
		return "rejected"
	default:
		return "none"
	}
}
