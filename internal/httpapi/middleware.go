package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucentmedia/genstudio/internal/auth"
)

const contextKeyUserID = "auth_user_id"

// requireAuth validates the bearer token and stores the user id for
// handlers downstream.
func (server *Server) requireAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		claims, parseError := auth.ParseToken(server.cfg.JWTSecret, token)
		if parseError != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		ctx.Set(contextKeyUserID, claims.UserID)
		ctx.Next()
	}
}

func currentUserID(ctx *gin.Context) string {
	return ctx.GetString(contextKeyUserID)
}
