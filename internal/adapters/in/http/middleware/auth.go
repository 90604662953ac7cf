package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// UploaderKey is the echo context key holding the authenticated uploader label.
const UploaderKey = "uploader"

// UploadAuth accepts requests carrying a bearer token (or X-Upload-Token)
// matching one of the configured bcrypt hashes. With no hashes configured
// every request is refused.
func UploadAuth(hashes []string, log zerowrap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c.Request())
			if token != "" {
				for i, hash := range hashes {
					if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
						c.Set(UploaderKey, tokenLabel(i))
						return next(c)
					}
				}
			}

			log.Warn().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str(zerowrap.FieldMethod, c.Request().Method).
				Str(zerowrap.FieldPath, c.Request().URL.Path).
				Str(zerowrap.FieldClientIP, c.RealIP()).
				Bool("has_token", token != "").
				Msg("unauthorized upload attempt")

			c.Response().Header().Set("WWW-Authenticate", `Bearer realm="catalogd"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Upload-Token"))
}

func tokenLabel(i int) string {
	return "token-" + strconv.Itoa(i+1)
}
