package models

// DashboardSummary 管理者儀表板統計
type DashboardSummary struct {
	Lots               int64 `json:"lots"`
	Spots              int64 `json:"spots"`
	OccupiedSpots      int64 `json:"occupied_spots"`
	Users              int64 `json:"users"`
	ActiveReservations int64 `json:"active_reservations"`
}

type LotOccupancy struct {
	LotID      int    `json:"lot_id"`
	LotName    string `json:"lot_name"`
	TotalSpots int    `json:"total_spots"`
	Available  int    `json:"available"`
	Occupied   int    `json:"occupied"`
}

type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type ChartData struct {
	SpotsByLot          []LotOccupancy `json:"spots_by_lot"`
	MonthlyReservations []MonthlyCount `json:"monthly_reservations"`
}

type UserLotUsage struct {
	LotID      int    `json:"lot_id"`
	LotName    string `json:"lot_name"`
	TotalSpots int    `json:"total_spots"`
	UserBooked int    `json:"user_booked"`
}

type UserChartData struct {
	UserID     int            `json:"user_id"`
	SpotsByLot []UserLotUsage `json:"spots_by_lot"`
}
