package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vparking/cache"
	"vparking/metrics"
	"vparking/models"
)

// 佔用車位時 CAS 失敗的重試次數
const allocateAttempts = 3

type SpotService interface {
	AllocateTx(tx *gorm.DB, lotID int, vehicleNumber string, at time.Time) (*models.ParkingSpot, error)
	ReleaseTx(tx *gorm.DB, spotID int) error
	IsAvailable(ctx context.Context, spotID int) (bool, error)
	ListSpotsForLot(ctx context.Context, lotID int) (models.LotSpotsResponse, error)
	GetSpotDetail(ctx context.Context, spotID int) (models.SpotDetailResponse, error)
}

var _ SpotService = (*SpotPool)(nil)

// SpotPool 管理車位佔用狀態；佔用與釋放只在呼叫端的交易內進行
type SpotPool struct {
	db    *gorm.DB
	views *cache.ReadViews
}

func NewSpotPool(db *gorm.DB, views *cache.ReadViews) *SpotPool {
	return &SpotPool{db: db, views: views}
}

// AllocateTx 以 id 遞增順序取第一個空位並標記為佔用
func (p *SpotPool) AllocateTx(tx *gorm.DB, lotID int, vehicleNumber string, at time.Time) (*models.ParkingSpot, error) {
	var lot models.ParkingLot
	if err := shareLockLot(tx, lotID, &lot).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("parking lot %d not found", lotID)
		}
		return nil, fmt.Errorf("failed to check parking lot %d: %w", lotID, err)
	}

	for attempt := 1; attempt <= allocateAttempts; attempt++ {
		var spot models.ParkingSpot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lot_id = ? AND status = ?", lotID, models.SpotAvailable).
			Order("id ASC").
			First(&spot).Error
		if isRecordNotFound(err) {
			// READ COMMITTED 下等待的鎖被釋放後，該列若已不符條件會回傳空結果，即使後面仍有空位
			free, countErr := countAvailable(tx, lotID)
			if countErr != nil {
				return nil, countErr
			}
			if free == 0 {
				metrics.AllocationConflicts.WithLabelValues("no_available_spots").Inc()
				return nil, conflictf("no available spots")
			}
			log.Printf("Locked read in lot %d returned no spot while %d are free (attempt %d/%d)", lotID, free, attempt, allocateAttempts)
			metrics.AllocationConflicts.WithLabelValues("lost_race").Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select available spot in lot %d: %w", lotID, err)
		}

		vehicle := vehicleNumber
		result := tx.Model(&models.ParkingSpot{}).
			Where("id = ? AND status = ?", spot.ID, models.SpotAvailable).
			Updates(map[string]interface{}{
				"status":         models.SpotOccupied,
				"vehicle_number": vehicle,
				"reserved_at":    at,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to occupy spot %d: %w", spot.ID, result.Error)
		}
		if result.RowsAffected == 1 {
			spot.Status = models.SpotOccupied
			spot.VehicleNumber = &vehicle
			spot.ReservedAt = &at
			return &spot, nil
		}

		log.Printf("Spot %d was taken concurrently (attempt %d/%d)", spot.ID, attempt, allocateAttempts)
		metrics.AllocationConflicts.WithLabelValues("lost_race").Inc()
	}
	return nil, conflictf("no available spots")
}

// shareLockLot 共享鎖：與刪除、調整車位數（對停車場列加 FOR UPDATE）互斥，配置之間不互斥
func shareLockLot(tx *gorm.DB, lotID int, lot *models.ParkingLot) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").First(lot, lotID)
}

func countAvailable(tx *gorm.DB, lotID int) (int64, error) {
	var free int64
	if err := tx.Model(&models.ParkingSpot{}).
		Where("lot_id = ? AND status = ?", lotID, models.SpotAvailable).
		Count(&free).Error; err != nil {
		return 0, fmt.Errorf("failed to count available spots in lot %d: %w", lotID, err)
	}
	return free, nil
}

// ReleaseTx 車位已空閒時回傳 ErrSpotAlreadyAvailable
func (p *SpotPool) ReleaseTx(tx *gorm.DB, spotID int) error {
	result := tx.Model(&models.ParkingSpot{}).
		Where("id = ? AND status = ?", spotID, models.SpotOccupied).
		Updates(map[string]interface{}{
			"status":         models.SpotAvailable,
			"vehicle_number": nil,
			"reserved_at":    nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release spot %d: %w", spotID, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var spot models.ParkingSpot
	if err := tx.Select("id", "status").First(&spot, spotID).Error; err != nil {
		if isRecordNotFound(err) {
			return notFoundf("parking spot %d not found", spotID)
		}
		return fmt.Errorf("failed to get parking spot %d: %w", spotID, err)
	}
	return ErrSpotAlreadyAvailable
}

func (p *SpotPool) IsAvailable(ctx context.Context, spotID int) (bool, error) {
	var spot models.ParkingSpot
	if err := p.db.WithContext(ctx).Select("id", "status").First(&spot, spotID).Error; err != nil {
		if isRecordNotFound(err) {
			return false, notFoundf("parking spot %d not found", spotID)
		}
		return false, fmt.Errorf("failed to get parking spot %d: %w", spotID, err)
	}
	return spot.IsAvailable(), nil
}

// ListSpotsForLot 依 id 排序的車位清單（快取）
func (p *SpotPool) ListSpotsForLot(ctx context.Context, lotID int) (models.LotSpotsResponse, error) {
	return cache.Fetch(p.views, cache.LotSpotsKey(lotID), func() (models.LotSpotsResponse, error) {
		var lot models.ParkingLot
		err := p.db.WithContext(ctx).
			Preload("Spots", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			First(&lot, lotID).Error
		if err != nil {
			if isRecordNotFound(err) {
				return models.LotSpotsResponse{}, notFoundf("parking lot %d not found", lotID)
			}
			return models.LotSpotsResponse{}, fmt.Errorf("failed to get spots for lot %d: %w", lotID, err)
		}

		resp := models.LotSpotsResponse{
			LotID:   lot.ID,
			LotName: lot.Name,
			Spots:   make([]models.ParkingSpotResponse, len(lot.Spots)),
		}
		for i := range lot.Spots {
			resp.Spots[i] = lot.Spots[i].ToResponse()
		}
		return resp, nil
	})
}

// GetSpotDetail 佔用中的車位附帶目前預約與累計費用
func (p *SpotPool) GetSpotDetail(ctx context.Context, spotID int) (models.SpotDetailResponse, error) {
	db := p.db.WithContext(ctx)

	var spot models.ParkingSpot
	if err := db.Preload("Lot").First(&spot, spotID).Error; err != nil {
		if isRecordNotFound(err) {
			return models.SpotDetailResponse{}, notFoundf("parking spot %d not found", spotID)
		}
		return models.SpotDetailResponse{}, fmt.Errorf("failed to get parking spot %d: %w", spotID, err)
	}
	if spot.Lot == nil {
		log.Printf("INTEGRITY: spot %d references missing lot %d", spot.ID, spot.LotID)
		return models.SpotDetailResponse{}, integrityf("spot %d has no parking lot", spot.ID)
	}

	detail := models.SpotDetailResponse{
		SpotID:     spot.ID,
		SpotNumber: spot.SpotNumber,
		Status:     spot.Status,
		LotID:      spot.LotID,
		LotName:    spot.Lot.Name,
	}
	if spot.IsAvailable() {
		return detail, nil
	}

	var reservation models.Reservation
	err := db.Preload("User").
		Where("spot_id = ? AND leaving_timestamp IS NULL", spot.ID).
		Order("id DESC").
		First(&reservation).Error
	if err != nil {
		if isRecordNotFound(err) {
			log.Printf("INTEGRITY: spot %d is occupied without an active reservation", spot.ID)
			return detail, nil
		}
		return models.SpotDetailResponse{}, fmt.Errorf("failed to get active reservation for spot %d: %w", spot.ID, err)
	}

	detail.ReservationID = &reservation.ID
	detail.VehicleNumber = &reservation.VehicleNumber
	detail.ReservedAt = &reservation.ParkedAt
	if reservation.User != nil {
		detail.UserName = &reservation.User.Username
		detail.UserEmail = &reservation.User.Email
	}
	detail.CostTillNow = CalculateCost(reservation.ParkedAt, time.Now().UTC(), spot.Lot.PricePerHour)
	return detail, nil
}
