package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kidlearn/tutor/internal/domain"
)

const (
	MsgMissingHeader = "Missing or invalid authorization header"
	MsgInvalidToken  = "Invalid token"

	contextKey = "principal"
)

// Extractor pulls a raw token out of a request. It returns "" when absent.
type Extractor func(c echo.Context) string

// FromHeader reads a "Bearer <token>" Authorization header.
func FromHeader(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// FromQuery reads the token from a query parameter. Browsers cannot set
// headers on a WebSocket handshake.
func FromQuery(param string) Extractor {
	return func(c echo.Context) string {
		return c.QueryParam(param)
	}
}

// Middleware rejects requests without a valid token and stores the caller on
// the echo context. Extractors are tried in order; the header is used when none are given.
func (v *Verifier) Middleware(extractors ...Extractor) echo.MiddlewareFunc {
	if len(extractors) == 0 {
		extractors = []Extractor{FromHeader}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var token string
			for _, extract := range extractors {
				if token = extract(c); token != "" {
					break
				}
			}
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": MsgMissingHeader})
			}
			p, err := v.Verify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": MsgInvalidToken})
			}
			c.Set(contextKey, p)
			return next(c)
		}
	}
}

// PrincipalFrom returns the caller stored by Middleware.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(contextKey).(domain.Principal)
	return p, ok
}

// WithPrincipal stores a caller on the context. Used by tests and in-process callers.
func WithPrincipal(c echo.Context, p domain.Principal) {
	c.Set(contextKey, p)
}
