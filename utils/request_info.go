package utils

import (
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/gin-gonic/gin"
)

func GetRequestInfo(c *gin.Context) services.ClientMeta {
	meta := services.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if meta.IPAddress == "" {
		meta.IPAddress = "unknown"
	}
	if meta.UserAgent == "" {
		meta.UserAgent = "unknown"
	}
	return meta
}
