package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vparking/models"
)

// SubmitExport 建立 CSV 匯出工作，回傳查詢用的 task_id
func (h *Handler) SubmitExport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	job, err := h.Exports.Submit(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "建立匯出工作失敗", err)
		return
	}
	SuccessResponse(c, http.StatusAccepted, "匯出工作已建立", job)
}

func (h *Handler) ExportStatus(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", job)
}

func (h *Handler) DownloadExport(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	ready, err := h.Exports.Download(c.Request.Context(), job.ID)
	if err != nil {
		serviceError(c, "匯出尚未完成", err)
		return
	}
	c.FileAttachment(ready.FilePath, ready.FileName)
}

// ownedJob 只有工作的擁有者或管理者可以查詢
func (h *Handler) ownedJob(c *gin.Context) (*models.ExportJob, bool) {
	userID, role, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	job, err := h.Exports.Status(c.Request.Context(), c.Param("token"))
	if err != nil {
		serviceError(c, "查詢匯出工作失敗", err)
		return nil, false
	}
	if role != models.RoleAdmin && job.UserID != userID {
		ErrorResponse(c, http.StatusForbidden, "無權限", "export job belongs to another user")
		return nil, false
	}
	return job, true
}
