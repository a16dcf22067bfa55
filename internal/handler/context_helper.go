package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edulink/edulink-api/internal/middleware"
	"github.com/edulink/edulink-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, size
}
