package handlers

import (
	"time"

	"vparking/live"
	"vparking/services"
)

// Handler 持有各路由需要的服務；handler 只做參數綁定與錯誤轉換
type Handler struct {
	Users        *services.UserDirectory
	Lots         services.LotService
	Spots        services.SpotService
	Reservations services.ReservationService
	Reports      *services.Reports
	Exports      *services.ExportQueue
	Hub          *live.Hub
	TokenTTL     time.Duration
}
