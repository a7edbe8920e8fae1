package models

import "time"

const (
	SpotAvailable = "available"
	SpotOccupied  = "occupied"
)

type ParkingSpot struct {
	ID            int           `json:"id" gorm:"primaryKey;autoIncrement"`
	LotID         int           `json:"lot_id" gorm:"not null;index;uniqueIndex:uix_lot_spotnumber,priority:1"`
	SpotIndex     int           `json:"-" gorm:"not null"`
	SpotNumber    string        `json:"spot_number" gorm:"type:varchar(50);not null;uniqueIndex:uix_lot_spotnumber,priority:2"`
	Status        string        `json:"status" gorm:"type:varchar(16);not null;default:available;index"`
	VehicleNumber *string       `json:"vehicle_number" gorm:"type:varchar(20)"`
	ReservedAt    *time.Time    `json:"reserved_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Lot           *ParkingLot   `json:"-" gorm:"foreignKey:LotID;references:ID;constraint:OnDelete:CASCADE"`
	Reservations  []Reservation `json:"-" gorm:"foreignKey:SpotID;references:ID;constraint:OnDelete:CASCADE"`
}

func (ParkingSpot) TableName() string {
	return "parking_spots"
}

func (p *ParkingSpot) IsAvailable() bool {
	return p.Status == SpotAvailable
}

type ParkingSpotResponse struct {
	ID            int        `json:"id"`
	LotID         int        `json:"lot_id"`
	SpotNumber    string     `json:"spot_number"`
	Status        string     `json:"status"`
	VehicleNumber *string    `json:"vehicle_number"`
	ReservedAt    *time.Time `json:"reserved_at"`
}

func (p *ParkingSpot) ToResponse() ParkingSpotResponse {
	return ParkingSpotResponse{
		ID:            p.ID,
		LotID:         p.LotID,
		SpotNumber:    p.SpotNumber,
		Status:        p.Status,
		VehicleNumber: p.VehicleNumber,
		ReservedAt:    p.ReservedAt,
	}
}

// LotSpotsResponse 單一停車場的車位清單
type LotSpotsResponse struct {
	LotID   int                   `json:"lot_id"`
	LotName string                `json:"lot_name"`
	Spots   []ParkingSpotResponse `json:"spots"`
}

// SpotDetailResponse 車位詳細資訊，佔用中時附帶目前停放者
type SpotDetailResponse struct {
	SpotID        int        `json:"spot_id"`
	SpotNumber    string     `json:"spot_number"`
	Status        string     `json:"status"`
	LotID         int        `json:"lot_id"`
	LotName       string     `json:"lot_name"`
	ReservationID *int       `json:"reservation_id"`
	VehicleNumber *string    `json:"vehicle_number"`
	ReservedAt    *time.Time `json:"reserved_at"`
	UserName      *string    `json:"user_name"`
	UserEmail     *string    `json:"user_email"`
	CostTillNow   float64    `json:"cost_till_now"`
}
