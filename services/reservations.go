package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vparking/cache"
	"vparking/metrics"
	"vparking/models"
)

type ReservationService interface {
	Reserve(ctx context.Context, userID, lotID int, vehicleNumber, remarks string) (*ReserveResult, error)
	Finalize(ctx context.Context, reservationID int, at time.Time) (*FinalizeResult, error)
	ListForUser(ctx context.Context, userID int) ([]models.ReservationResponse, error)
	ListAll(ctx context.Context) ([]models.ReservationResponse, error)
	Get(ctx context.Context, reservationID int) (models.ReservationResponse, error)
}

var _ ReservationService = (*ReservationLedger)(nil)

type ReserveResult struct {
	ReservationID int       `json:"reservation_id"`
	SpotID        int       `json:"spot_id"`
	SpotNumber    string    `json:"spot_number"`
	LotID         int       `json:"lot_id"`
	ParkedAt      time.Time `json:"parking_timestamp"`
}

type FinalizeResult struct {
	ReservationID    int       `json:"reservation_id"`
	SpotID           int       `json:"spot_id"`
	LotID            int       `json:"lot_id"`
	ParkedAt         time.Time `json:"parking_timestamp"`
	LeftAt           time.Time `json:"leaving_timestamp"`
	Cost             float64   `json:"parking_cost"`
	AlreadyFinalized bool      `json:"already_finalized"`
}

// ReservationLedger 建立與結算預約；車位佔用與預約列在同一交易內變更
type ReservationLedger struct {
	lotChanges
	spots SpotService
}

func NewReservationLedger(db *gorm.DB, views *cache.ReadViews, publisher OccupancyPublisher, spots SpotService) *ReservationLedger {
	return &ReservationLedger{
		lotChanges: newLotChanges(db, views, publisher),
		spots:      spots,
	}
}

// Reserve 配置停車場中第一個空位並建立預約
func (l *ReservationLedger) Reserve(ctx context.Context, userID, lotID int, vehicleNumber, remarks string) (*ReserveResult, error) {
	vehicleNumber = strings.TrimSpace(vehicleNumber)
	if vehicleNumber == "" {
		return nil, validationf("vehicle_number is required")
	}

	now := time.Now().UTC()
	var result ReserveResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id", "active").First(&user, userID).Error; err != nil {
			if isRecordNotFound(err) {
				return notFoundf("user %d not found", userID)
			}
			return fmt.Errorf("failed to get user %d: %w", userID, err)
		}
		if !user.Active {
			return validationf("user %d is inactive", userID)
		}

		spot, err := l.spots.AllocateTx(tx, lotID, vehicleNumber, now)
		if err != nil {
			return err
		}

		reservation := models.Reservation{
			UserID:        userID,
			SpotID:        spot.ID,
			ParkedAt:      now,
			VehicleNumber: vehicleNumber,
			Remarks:       remarks,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		result = ReserveResult{
			ReservationID: reservation.ID,
			SpotID:        spot.ID,
			SpotNumber:    spot.SpotNumber,
			LotID:         spot.LotID,
			ParkedAt:      reservation.ParkedAt,
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to reserve spot in lot %d for user %d: %v", lotID, userID, err)
		return nil, err
	}

	log.Printf("Reservation %d: user %d parked %s at spot %s (lot %d)",
		result.ReservationID, userID, vehicleNumber, result.SpotNumber, lotID)
	metrics.ReservationsCreated.Inc()
	l.committed(ctx, lotID)
	return &result, nil
}

// Finalize 結算費用並釋放車位；已結算的預約直接回傳既有結果
func (l *ReservationLedger) Finalize(ctx context.Context, reservationID int, at time.Time) (*FinalizeResult, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	var result *FinalizeResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservation models.Reservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reservation, reservationID).Error; err != nil {
			if isRecordNotFound(err) {
				return notFoundf("reservation %d not found", reservationID)
			}
			return fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
		}
		if !reservation.IsActive() {
			var err error
			result, err = finalizedResult(tx, reservation.ID, true)
			return err
		}
		if at.Before(reservation.ParkedAt) {
			return validationf("leaving time %s is before parking time %s",
				at.Format(time.RFC3339), reservation.ParkedAt.Format(time.RFC3339))
		}

		var spot models.ParkingSpot
		if err := tx.First(&spot, reservation.SpotID).Error; err != nil {
			if isRecordNotFound(err) {
				log.Printf("INTEGRITY: reservation %d references missing spot %d", reservation.ID, reservation.SpotID)
				return integrityf("cannot finalize reservation %d: spot not found", reservation.ID)
			}
			return fmt.Errorf("failed to get spot %d: %w", reservation.SpotID, err)
		}
		var lot models.ParkingLot
		if err := tx.First(&lot, spot.LotID).Error; err != nil {
			if isRecordNotFound(err) {
				log.Printf("INTEGRITY: spot %d references missing lot %d", spot.ID, spot.LotID)
				return integrityf("cannot finalize reservation %d: parking lot not found", reservation.ID)
			}
			return fmt.Errorf("failed to get parking lot %d: %w", spot.LotID, err)
		}

		cost := CalculateCost(reservation.ParkedAt, at, lot.PricePerHour)
		update := tx.Model(&models.Reservation{}).
			Where("id = ? AND leaving_timestamp IS NULL", reservation.ID).
			Updates(map[string]interface{}{
				"leaving_timestamp": at,
				"parking_cost":      cost,
			})
		if update.Error != nil {
			return fmt.Errorf("failed to finalize reservation %d: %w", reservation.ID, update.Error)
		}
		if update.RowsAffected == 0 {
			// 已被另一次結算完成，不可再釋放一次車位
			log.Printf("Reservation %d was finalized concurrently, returning stored result", reservation.ID)
			var err error
			result, err = finalizedResult(tx, reservation.ID, true)
			return err
		}

		// 帳務紀錄優先；車位已是空閒只記錄不中斷
		if err := l.spots.ReleaseTx(tx, spot.ID); err != nil {
			if !errors.Is(err, ErrSpotAlreadyAvailable) {
				return err
			}
			log.Printf("Spot %d was already available when finalizing reservation %d", spot.ID, reservation.ID)
		}

		var err error
		result, err = finalizedResult(tx, reservation.ID, false)
		return err
	})
	if err != nil {
		log.Printf("Failed to finalize reservation %d: %v", reservationID, err)
		return nil, err
	}

	if result.AlreadyFinalized {
		log.Printf("Reservation %d already finalized, returning stored result", reservationID)
		return result, nil
	}

	log.Printf("Reservation %d finalized: cost %.2f", reservationID, result.Cost)
	metrics.ReservationsFinalized.Inc()
	metrics.BilledAmount.Add(result.Cost)
	l.committed(ctx, result.LotID)
	return result, nil
}

// finalizedResult 從資料庫重新讀取，重複結算時回傳的值與第一次相同
func finalizedResult(tx *gorm.DB, reservationID int, already bool) (*FinalizeResult, error) {
	var reservation models.Reservation
	if err := tx.Preload("Spot").First(&reservation, reservationID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload reservation %d: %w", reservationID, err)
	}
	if reservation.LeftAt == nil {
		return nil, fmt.Errorf("reservation %d has no leaving timestamp after finalize", reservationID)
	}

	result := &FinalizeResult{
		ReservationID:    reservation.ID,
		SpotID:           reservation.SpotID,
		ParkedAt:         reservation.ParkedAt,
		LeftAt:           *reservation.LeftAt,
		Cost:             reservation.CurrentCost(),
		AlreadyFinalized: already,
	}
	if reservation.Spot != nil {
		result.LotID = reservation.Spot.LotID
	}
	return result, nil
}

// ListForUser 使用者的所有預約，新的在前
func (l *ReservationLedger) ListForUser(ctx context.Context, userID int) ([]models.ReservationResponse, error) {
	db := l.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if count == 0 {
		return nil, notFoundf("user %d not found", userID)
	}

	var reservations []models.Reservation
	if err := db.Preload("Spot.Lot").
		Where("user_id = ?", userID).
		Order("parking_timestamp DESC, id DESC").
		Find(&reservations).Error; err != nil {
		log.Printf("Failed to list reservations for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return toReservationResponses(reservations), nil
}

// ListForUserSince 供排程通知使用，不含使用者資料
func (l *ReservationLedger) ListForUserSince(ctx context.Context, userID int, since time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := l.db.WithContext(ctx).
		Preload("Spot.Lot").
		Where("user_id = ? AND parking_timestamp >= ?", userID, since.UTC()).
		Order("parking_timestamp ASC, id ASC").
		Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations for user %d since %s: %w", userID, since.Format(time.RFC3339), err)
	}
	return reservations, nil
}

// ListAll 管理者檢視，新的在前
func (l *ReservationLedger) ListAll(ctx context.Context) ([]models.ReservationResponse, error) {
	var reservations []models.Reservation
	if err := l.db.WithContext(ctx).
		Preload("User").
		Preload("Spot.Lot").
		Order("parking_timestamp DESC, id DESC").
		Find(&reservations).Error; err != nil {
		log.Printf("Failed to list all reservations: %v", err)
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return toReservationResponses(reservations), nil
}

func (l *ReservationLedger) Get(ctx context.Context, reservationID int) (models.ReservationResponse, error) {
	var reservation models.Reservation
	if err := l.db.WithContext(ctx).Preload("Spot.Lot").First(&reservation, reservationID).Error; err != nil {
		if isRecordNotFound(err) {
			return models.ReservationResponse{}, notFoundf("reservation %d not found", reservationID)
		}
		return models.ReservationResponse{}, fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
	}
	return reservation.ToResponse(), nil
}

func toReservationResponses(reservations []models.Reservation) []models.ReservationResponse {
	resp := make([]models.ReservationResponse, len(reservations))
	for i := range reservations {
		resp[i] = reservations[i].ToResponse()
	}
	return resp
}
