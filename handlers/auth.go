package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"vparking/models"
	"vparking/utils"
)

type registerInput struct {
	Username string `json:"username" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register 註冊一般使用者
func (h *Handler) Register(c *gin.Context) {
	var input registerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}

	user, err := h.Users.Register(c.Request.Context(), input.Username, input.Email, input.Password)
	if err != nil {
		serviceError(c, "註冊失敗", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "註冊成功", user.ToResponse())
}

// Login 驗證帳密並簽發 token
func (h *Handler) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}

	user, err := h.Users.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		serviceError(c, "登入失敗，檢查電子郵件或密碼", err)
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Role, h.TokenTTL)
	if err != nil {
		log.Printf("Failed to generate token for user %d: %v", user.ID, err)
		ErrorResponse(c, http.StatusInternalServerError, "登入失敗", "failed to generate token")
		return
	}

	SuccessResponse(c, http.StatusOK, "登入成功", gin.H{
		"token": token,
		"user":  user.ToResponse(),
	})
}

// CheckEmail 註冊前檢查電子郵件是否已被使用
func (h *Handler) CheckEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		ErrorResponse(c, http.StatusBadRequest, "請提供電子郵件", "email is required")
		return
	}
	exists, err := h.Users.EmailExists(c.Request.Context(), email)
	if err != nil {
		serviceError(c, "查詢失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", gin.H{"exists": exists})
}

// ListUsers 管理者查詢使用者，?active=true 只列出啟用中的帳號
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		serviceError(c, "查詢使用者失敗", err)
		return
	}
	resp := make([]models.UserResponse, len(users))
	for i := range users {
		resp[i] = users[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", resp)
}
