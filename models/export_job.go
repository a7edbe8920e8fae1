package models

import "time"

const (
	ExportPending = "pending"
	ExportSuccess = "success"
	ExportFailure = "failure"
)

// ExportJob CSV 匯出工作，以 uuid 作為查詢憑證
type ExportJob struct {
	ID         string     `json:"task_id" gorm:"primaryKey;type:varchar(36)"`
	UserID     int        `json:"user_id" gorm:"not null;index"`
	Status     string     `json:"status" gorm:"type:varchar(16);not null;default:pending;index"`
	FilePath   string     `json:"-" gorm:"type:varchar(512)"`
	FileName   string     `json:"file_name,omitempty" gorm:"type:varchar(255)"`
	Error      string     `json:"message,omitempty" gorm:"type:varchar(512)"`
	StartedAt  *time.Time `json:"-"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ExportJob) TableName() string {
	return "export_jobs"
}
