package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"vparking/models"
)

type resizeInput struct {
	NumberOfSpots *int `json:"number_of_spots" binding:"required"`
}

func (h *Handler) ListLots(c *gin.Context) {
	lots, err := h.Lots.ListLots(c.Request.Context())
	if err != nil {
		serviceError(c, "查詢停車場失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", lots)
}

func (h *Handler) GetLot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	lot, err := h.Lots.GetLot(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "查詢停車場失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", lot)
}

func (h *Handler) CreateLot(c *gin.Context) {
	var input models.CreateParkingLotRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}
	lot, err := h.Lots.CreateLot(c.Request.Context(), input)
	if err != nil {
		serviceError(c, "新增停車場失敗", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "新增停車場成功", lot)
}

// UpdateLot 部分更新；帶 number_of_spots 時同一交易內調整車位
func (h *Handler) UpdateLot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateParkingLotRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}
	lot, err := h.Lots.UpdateLot(c.Request.Context(), id, input)
	if err != nil {
		serviceError(c, "更新停車場失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "更新停車場成功", lot)
}

func (h *Handler) ResizeLot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input resizeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "無效的輸入資料", err.Error())
		return
	}
	lot, err := h.Lots.ResizeLot(c.Request.Context(), id, *input.NumberOfSpots)
	if err != nil {
		serviceError(c, "調整車位數失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "調整車位數成功", lot)
}

func (h *Handler) DeleteLot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Lots.DeleteLot(c.Request.Context(), id); err != nil {
		serviceError(c, "刪除停車場失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "刪除停車場成功", nil)
}

func (h *Handler) ListLotSpots(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	spots, err := h.Spots.ListSpotsForLot(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "查詢車位失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", spots)
}

func (h *Handler) GetSpot(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	spot, err := h.Spots.GetSpotDetail(c.Request.Context(), id)
	if err != nil {
		serviceError(c, "查詢車位失敗", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", spot)
}
