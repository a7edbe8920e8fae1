package handlers

import (
	"github.com/gin-gonic/gin"
)

// Live 升級為 websocket，接收各停車場的即時佔用數
func (h *Handler) Live(c *gin.Context) {
	h.Hub.ServeWS(c.Writer, c.Request)
}
