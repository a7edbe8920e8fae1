package models

import "time"

const (
	ReservationActive   = "active"
	ReservationReleased = "released"
)

type Reservation struct {
	ID            int          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        int          `json:"user_id" gorm:"not null;index"`
	SpotID        int          `json:"spot_id" gorm:"not null;index"`
	ParkedAt      time.Time    `json:"parking_timestamp" gorm:"column:parking_timestamp;not null;index"`
	LeftAt        *time.Time   `json:"leaving_timestamp" gorm:"column:leaving_timestamp"`
	Cost          *float64     `json:"parking_cost" gorm:"column:parking_cost;type:decimal(10,2)"`
	VehicleNumber string       `json:"vehicle_number" gorm:"type:varchar(20);not null"`
	Remarks       string       `json:"remarks" gorm:"type:varchar(512)"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	User          *User        `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Spot          *ParkingSpot `json:"-" gorm:"foreignKey:SpotID;references:ID;constraint:OnDelete:CASCADE"`
}

func (Reservation) TableName() string {
	return "reservations"
}

func (r *Reservation) IsActive() bool {
	return r.LeftAt == nil
}

// CurrentCost 未結算時回傳 0
func (r *Reservation) CurrentCost() float64 {
	if r.Cost == nil {
		return 0
	}
	return *r.Cost
}

type ReservationResponse struct {
	ID            int                 `json:"id"`
	UserID        int                 `json:"user_id"`
	SpotID        int                 `json:"spot_id"`
	LotID         int                 `json:"lot_id,omitempty"`
	LotName       string              `json:"lot_name,omitempty"`
	SpotNumber    string              `json:"spot_number,omitempty"`
	Status        string              `json:"status"`
	ParkedAt      time.Time           `json:"parking_timestamp"`
	LeftAt        *time.Time          `json:"leaving_timestamp"`
	Cost          float64             `json:"parking_cost"`
	VehicleNumber string              `json:"vehicle_number"`
	Remarks       string              `json:"remarks"`
	User          *SimpleUserResponse `json:"user,omitempty"`
}

// ToResponse 轉換為回應結構；Spot/Spot.Lot/User 有 Preload 時一併輸出
func (r *Reservation) ToResponse() ReservationResponse {
	status := ReservationActive
	if !r.IsActive() {
		status = ReservationReleased
	}

	resp := ReservationResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		SpotID:        r.SpotID,
		Status:        status,
		ParkedAt:      r.ParkedAt,
		LeftAt:        r.LeftAt,
		Cost:          r.CurrentCost(),
		VehicleNumber: r.VehicleNumber,
		Remarks:       r.Remarks,
	}
	if r.Spot != nil {
		resp.SpotNumber = r.Spot.SpotNumber
		resp.LotID = r.Spot.LotID
		if r.Spot.Lot != nil {
			resp.LotName = r.Spot.Lot.Name
		}
	}
	if r.User != nil {
		u := r.User.ToSimpleResponse()
		resp.User = &u
	}
	return resp
}
