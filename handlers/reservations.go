package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vparking/models"
)

type reserveInput struct {
	LotID         int    `json:"lot_id" binding:"required"`
	VehicleNumber string `json:"vehicle_number" binding:"required,max=20"`
	Remarks       string `json:"remarks" binding:"max=512"`
	// 只有管理者可以代其他使用者預約
	UserID int `json:"user_id"`
}

// Reserve 預約停車場中第一個空位
func (h *Handler) Reserve(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	var input reserveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}
	if input.UserID != 0 && input.UserID != userID {
		if role != models.RoleAdmin {
			ErrorResponse(c, http.StatusForbidden, "無權限", "only admin can reserve for another user")
			return
		}
		userID = input.UserID
	}

	result, err := h.Reservations.Reserve(c.Request.Context(), userID, input.LotID, input.VehicleNumber, input.Remarks)
	if err != nil {
		serviceError(c, "預約失敗", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "預約成功", result)
}

// Release 結算離場，一律以伺服器目前時間計費
func (h *Handler) Release(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reservation, err := h.Reservations.Get(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "結算失敗", err)
		return
	}
	if role != models.RoleAdmin && reservation.UserID != userID {
		ErrorResponse(c, http.StatusForbidden, "無權限", "you can only release your own reservation")
		return
	}

	result, err := h.Reservations.Finalize(c.Request.Context(), id, time.Time{})
	if err != nil {
		serviceError(c, "結算失敗", err)
		return
	}

	message := "結算成功"
	if result.AlreadyFinalized {
		message = "預約已結算"
	}
	SuccessResponse(c, http.StatusOK, message, result)
}

func (h *Handler) ListUserReservations(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reservations, err := h.Reservations.ListForUser(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "查詢預約紀錄失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservations)
}

func (h *Handler) ListAllReservations(c *gin.Context) {
	reservations, err := h.Reservations.ListAll(c.Request.Context())
	if err != nil {
		serviceError(c, "查詢預約紀錄失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", reservations)
}
