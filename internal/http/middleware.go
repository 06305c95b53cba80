package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"notekeeper/internal/domain"
)

const principalKey = "notekeeper.principal"

// requestLogger writes one access line per request. Server errors carry the
// errors attached to the gin context, which never reach the response body.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		entry := h.log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"route":     route,
			"status":    status,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if p := principalFrom(c); !p.Anonymous() {
			entry = entry.WithField("user_id", p.UserID)
		}

		if status >= http.StatusInternalServerError {
			if len(c.Errors) > 0 {
				entry = entry.WithError(c.Errors.Last().Err)
			}
			entry.Error("request failed")
			return
		}
		entry.Info("request")
	}
}

// identify resolves the bearer token into a principal. Missing or invalid
// tokens leave the request anonymous; the services reject it from there.
func (h *Handler) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Set(principalKey, domain.Principal{})
			c.Next()
			return
		}

		p, err := h.identity.ResolveToken(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
