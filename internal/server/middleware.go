package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dphuang2/browser-record-app/pkg/auth"
)

// TokenCookie is the cookie carrying the shop access token.
const TokenCookie = "token"

// ShopAuthRequired validates the shop token from the "token" cookie or a
// Bearer header and checks it was issued for the :shop route parameter.
func ShopAuthRequired(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(TokenCookie)
		if err != nil {
			header := c.GetHeader("Authorization")
			if header == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
				return
			}
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}

		if err := manager.ValidateForShop(tokenString, c.Param("shop")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
