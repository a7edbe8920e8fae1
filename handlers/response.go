package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vparking/services"
)

// APIResponse 定義統一的 API 回應結構
type APIResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"` // omitempty 表示如果為空則不顯示
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse 返回成功的回應
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 返回失敗的回應
func ErrorResponse(c *gin.Context, statusCode int, message string, err string) {
	c.JSON(statusCode, APIResponse{
		Status:  false,
		Message: message,
		Error:   err,
	})
}

// StatusFor 將服務層錯誤對應到 HTTP 狀態碼
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// serviceError 回傳服務層錯誤；500 時不外露內部訊息
func serviceError(c *gin.Context, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
		ErrorResponse(c, status, message, "internal server error")
		return
	}
	ErrorResponse(c, status, message, err.Error())
}

func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "無效的 ID", "invalid "+name)
		return 0, false
	}
	return id, true
}

// currentUser 取出 AuthMiddleware 放入的 user_id 與 role
func currentUser(c *gin.Context) (int, string, bool) {
	userID, ok := c.Get("user_id")
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "未授權", "user_id not found in token")
		return 0, "", false
	}
	id, ok := userID.(int)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "未授權", "invalid user_id type")
		return 0, "", false
	}
	role, _ := c.Get("role")
	roleStr, _ := role.(string)
	return id, roleStr, true
}
