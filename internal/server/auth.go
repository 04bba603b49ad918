package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const tokenCookieName = "abtest_token"

// authMiddleware accepts the token as a bearer header, a cookie, or once as a
// query parameter, which is traded for a cookie and a redirect to the clean
// URL so the token does not linger in browser history.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if queryToken := c.Query("token"); queryToken != "" {
			if !s.validToken(queryToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}

			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(tokenCookieName, s.token, int(24*time.Hour/time.Second), "/", "", false, true)

			u := *c.Request.URL
			q := u.Query()
			q.Del("token")
			u.RawQuery = q.Encode()
			c.Redirect(http.StatusFound, u.String())
			c.Abort()
			return
		}

		if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && s.validToken(bearer) {
			c.Next()
			return
		}

		if cookie, err := c.Cookie(tokenCookieName); err == nil && s.validToken(cookie) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func (s *Server) validToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}
