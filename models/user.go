package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User 使用者（身分資料由認證流程建立，核心只讀取 id、username、email）
type User struct {
	ID           int           `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string        `json:"username" gorm:"type:varchar(100);not null"`
	Email        string        `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Password     string        `json:"-" gorm:"type:varchar(255);not null"`
	Role         string        `json:"role" gorm:"type:varchar(20);not null;default:user"`
	Active       bool          `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Reservations []Reservation `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (User) TableName() string {
	return "users"
}

type UserResponse struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// SimpleUserResponse 預約列表中附帶的使用者資訊
type SimpleUserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u *User) ToSimpleResponse() SimpleUserResponse {
	return SimpleUserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}
