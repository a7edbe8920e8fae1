package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Dashboard(c *gin.Context) {
	summary, err := h.Reports.DashboardSummary(c.Request.Context())
	if err != nil {
		serviceError(c, "查詢統計失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", summary)
}

func (h *Handler) Charts(c *gin.Context) {
	data, err := h.Reports.ChartData(c.Request.Context())
	if err != nil {
		serviceError(c, "查詢圖表失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", data)
}

func (h *Handler) UserCharts(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	data, err := h.Reports.UserChartData(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "查詢圖表失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", data)
}
