package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/middleware"
)

// actorFromContext resolves the caller from validated token claims.
func actorFromContext(c *gin.Context) (dto.Actor, bool) {
	claims, ok := middleware.Claims(c)
	if !ok || claims.UserID == "" {
		return dto.Actor{}, false
	}
	return dto.Actor{ID: claims.UserID, Role: claims.Role}, true
}
