package models

import "time"

// ParkingLot 定義停車場模型
type ParkingLot struct {
	ID            int           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string        `json:"prime_location_name" gorm:"column:prime_location_name;type:varchar(255);not null"`
	Address       string        `json:"address" gorm:"type:varchar(255);not null"`
	PinCode       string        `json:"pin_code" gorm:"type:varchar(10);not null"`
	PricePerHour  float64       `json:"price_per_hour" gorm:"type:decimal(10,2);not null;default:0"`
	NumberOfSpots int           `json:"number_of_spots" gorm:"not null;default:0"`
	LastSpotIndex int           `json:"-" gorm:"not null;default:0"` // 已發出的最大車位編號，編號不重複使用
	Notes         string        `json:"notes" gorm:"type:varchar(512)"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Spots         []ParkingSpot `json:"-" gorm:"foreignKey:LotID;references:ID;constraint:OnDelete:CASCADE"`
}

func (ParkingLot) TableName() string {
	return "parking_lots"
}

// ParkingLotResponse 定義停車場回應結構
type ParkingLotResponse struct {
	ID             int                   `json:"id"`
	Name           string                `json:"prime_location_name"`
	Address        string                `json:"address"`
	PinCode        string                `json:"pin_code"`
	PricePerHour   float64               `json:"price_per_hour"`
	NumberOfSpots  int                   `json:"number_of_spots"`
	AvailableSpots int                   `json:"available_spots"`
	Notes          string                `json:"notes,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	Spots          []ParkingSpotResponse `json:"spots,omitempty"`
}

// ToResponse 轉換為回應結構，includeSpots 為 true 時附帶車位清單
func (p *ParkingLot) ToResponse(includeSpots bool) ParkingLotResponse {
	available := 0
	for _, spot := range p.Spots {
		if spot.IsAvailable() {
			available++
		}
	}

	resp := ParkingLotResponse{
		ID:             p.ID,
		Name:           p.Name,
		Address:        p.Address,
		PinCode:        p.PinCode,
		PricePerHour:   p.PricePerHour,
		NumberOfSpots:  p.NumberOfSpots,
		AvailableSpots: available,
		Notes:          p.Notes,
		CreatedAt:      p.CreatedAt,
	}
	if includeSpots {
		resp.Spots = make([]ParkingSpotResponse, len(p.Spots))
		for i, spot := range p.Spots {
			resp.Spots[i] = spot.ToResponse()
		}
	}
	return resp
}

// CreateParkingLotRequest 新增停車場，number_of_spots 決定初始車位數
type CreateParkingLotRequest struct {
	Name          string  `json:"prime_location_name" binding:"required,max=255"`
	Address       string  `json:"address" binding:"required,max=255"`
	PinCode       string  `json:"pin_code" binding:"required,max=10"`
	PricePerHour  float64 `json:"price_per_hour" binding:"gte=0"`
	NumberOfSpots int     `json:"number_of_spots" binding:"gte=0"`
	Notes         string  `json:"notes" binding:"max=512"`
}

// UpdateParkingLotRequest 用於 PUT 部分更新
type UpdateParkingLotRequest struct {
	Name          *string  `json:"prime_location_name" binding:"omitempty,max=255"`
	Address       *string  `json:"address" binding:"omitempty,max=255"`
	PinCode       *string  `json:"pin_code" binding:"omitempty,max=10"`
	PricePerHour  *float64 `json:"price_per_hour" binding:"omitempty,gte=0"`
	NumberOfSpots *int     `json:"number_of_spots" binding:"omitempty,gte=0"`
	Notes         *string  `json:"notes" binding:"omitempty,max=512"`
}
