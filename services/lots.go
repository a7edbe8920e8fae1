package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vparking/cache"
	"vparking/models"
)

type LotService interface {
	CreateLot(ctx context.Context, req models.CreateParkingLotRequest) (*models.ParkingLotResponse, error)
	UpdateLot(ctx context.Context, lotID int, req models.UpdateParkingLotRequest) (*models.ParkingLotResponse, error)
	ResizeLot(ctx context.Context, lotID int, newCount int) (*models.ParkingLotResponse, error)
	DeleteLot(ctx context.Context, lotID int) error
	ListLots(ctx context.Context) ([]models.ParkingLotResponse, error)
	GetLot(ctx context.Context, lotID int) (models.ParkingLotResponse, error)
}

var _ LotService = (*LotRegistry)(nil)

// LotRegistry 管理停車場與其車位數量，車位數與實際車位列數在每次交易後一致
type LotRegistry struct {
	lotChanges
	spotPrefix string
}

func NewLotRegistry(db *gorm.DB, views *cache.ReadViews, publisher OccupancyPublisher, spotPrefix string) *LotRegistry {
	if spotPrefix == "" {
		spotPrefix = "S"
	}
	return &LotRegistry{
		lotChanges: newLotChanges(db, views, publisher),
		spotPrefix: spotPrefix,
	}
}

// CreateLot 建立停車場並一次建立 number_of_spots 個車位
func (r *LotRegistry) CreateLot(ctx context.Context, req models.CreateParkingLotRequest) (*models.ParkingLotResponse, error) {
	lot := models.ParkingLot{
		Name:         strings.TrimSpace(req.Name),
		Address:      strings.TrimSpace(req.Address),
		PinCode:      strings.TrimSpace(req.PinCode),
		PricePerHour: req.PricePerHour,
		Notes:        req.Notes,
	}
	if lot.Name == "" || lot.Address == "" || lot.PinCode == "" {
		return nil, validationf("prime_location_name, address and pin_code are required")
	}
	if lot.PricePerHour < 0 {
		return nil, validationf("price_per_hour must be >= 0")
	}
	if req.NumberOfSpots < 0 {
		return nil, validationf("number_of_spots must be >= 0")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lot).Error; err != nil {
			return fmt.Errorf("failed to create parking lot: %w", err)
		}
		return r.resizeTx(tx, &lot, req.NumberOfSpots)
	})
	if err != nil {
		log.Printf("Failed to create parking lot %q: %v", lot.Name, err)
		return nil, err
	}

	log.Printf("Successfully created parking lot %d with %d spots", lot.ID, lot.NumberOfSpots)
	r.committed(ctx, lot.ID)
	return r.lotDetail(ctx, lot.ID)
}

// UpdateLot 部分更新；有 number_of_spots 時在同一交易內調整車位
func (r *LotRegistry) UpdateLot(ctx context.Context, lotID int, req models.UpdateParkingLotRequest) (*models.ParkingLotResponse, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, validationf("prime_location_name cannot be empty")
		}
		updates["prime_location_name"] = name
	}
	if req.Address != nil {
		address := strings.TrimSpace(*req.Address)
		if address == "" {
			return nil, validationf("address cannot be empty")
		}
		updates["address"] = address
	}
	if req.PinCode != nil {
		pin := strings.TrimSpace(*req.PinCode)
		if pin == "" {
			return nil, validationf("pin_code cannot be empty")
		}
		updates["pin_code"] = pin
	}
	if req.PricePerHour != nil {
		if *req.PricePerHour < 0 {
			return nil, validationf("price_per_hour must be >= 0")
		}
		updates["price_per_hour"] = *req.PricePerHour
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.NumberOfSpots != nil && *req.NumberOfSpots < 0 {
		return nil, validationf("number_of_spots must be >= 0")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, err := lockLot(tx, lotID)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(lot).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update parking lot %d: %w", lotID, err)
			}
		}
		if req.NumberOfSpots != nil {
			return r.resizeTx(tx, lot, *req.NumberOfSpots)
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to update parking lot %d: %v", lotID, err)
		return nil, err
	}

	log.Printf("Successfully updated parking lot %d", lotID)
	r.committed(ctx, lotID)
	return r.lotDetail(ctx, lotID)
}

func (r *LotRegistry) ResizeLot(ctx context.Context, lotID int, newCount int) (*models.ParkingLotResponse, error) {
	if newCount < 0 {
		return nil, validationf("number_of_spots must be >= 0")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, err := lockLot(tx, lotID)
		if err != nil {
			return err
		}
		return r.resizeTx(tx, lot, newCount)
	})
	if err != nil {
		log.Printf("Failed to resize parking lot %d to %d spots: %v", lotID, newCount, err)
		return nil, err
	}

	log.Printf("Successfully resized parking lot %d to %d spots", lotID, newCount)
	r.committed(ctx, lotID)
	return r.lotDetail(ctx, lotID)
}

// DeleteLot 有任何車位佔用中時拒絕；否則連同車位與歷史預約一併刪除
func (r *LotRegistry) DeleteLot(ctx context.Context, lotID int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockLot(tx, lotID); err != nil {
			return err
		}

		var statuses []string
		if err := lockSpotStatuses(tx, lotID, &statuses).Error; err != nil {
			return fmt.Errorf("failed to lock spots of lot %d: %w", lotID, err)
		}
		for _, status := range statuses {
			if status == models.SpotOccupied {
				return conflictf("cannot delete lot: some spots are occupied")
			}
		}

		spotIDs := tx.Model(&models.ParkingSpot{}).Select("id").Where("lot_id = ?", lotID)
		if err := tx.Where("spot_id IN (?)", spotIDs).Delete(&models.Reservation{}).Error; err != nil {
			return fmt.Errorf("failed to delete reservations of lot %d: %w", lotID, err)
		}
		if err := tx.Where("lot_id = ?", lotID).Delete(&models.ParkingSpot{}).Error; err != nil {
			return fmt.Errorf("failed to delete spots of lot %d: %w", lotID, err)
		}
		if err := tx.Delete(&models.ParkingLot{}, lotID).Error; err != nil {
			return fmt.Errorf("failed to delete parking lot %d: %w", lotID, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to delete parking lot %d: %v", lotID, err)
		return err
	}

	log.Printf("Successfully deleted parking lot %d", lotID)
	r.committed(ctx, lotID)
	return nil
}

func (r *LotRegistry) ListLots(ctx context.Context) ([]models.ParkingLotResponse, error) {
	return cache.Fetch(r.views, cache.LotListKey(), func() ([]models.ParkingLotResponse, error) {
		var lots []models.ParkingLot
		if err := r.db.WithContext(ctx).Preload("Spots").Order("id ASC").Find(&lots).Error; err != nil {
			return nil, fmt.Errorf("failed to list parking lots: %w", err)
		}
		resp := make([]models.ParkingLotResponse, len(lots))
		for i := range lots {
			resp[i] = lots[i].ToResponse(false)
		}
		return resp, nil
	})
}

func (r *LotRegistry) GetLot(ctx context.Context, lotID int) (models.ParkingLotResponse, error) {
	return cache.Fetch(r.views, cache.LotKey(lotID), func() (models.ParkingLotResponse, error) {
		detail, err := r.lotDetail(ctx, lotID)
		if err != nil {
			return models.ParkingLotResponse{}, err
		}
		return *detail, nil
	})
}

func (r *LotRegistry) lotDetail(ctx context.Context, lotID int) (*models.ParkingLotResponse, error) {
	var lot models.ParkingLot
	err := r.db.WithContext(ctx).
		Preload("Spots", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&lot, lotID).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("parking lot %d not found", lotID)
		}
		return nil, fmt.Errorf("failed to get parking lot %d: %w", lotID, err)
	}
	resp := lot.ToResponse(true)
	return &resp, nil
}

// lockSpotStatuses 鎖定停車場的所有車位列；postgres 不允許對聚合查詢加 FOR UPDATE，因此在 Go 端計數
func lockSpotStatuses(tx *gorm.DB, lotID int, statuses *[]string) *gorm.DB {
	return tx.Model(&models.ParkingSpot{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lot_id = ?", lotID).
		Order("id ASC").
		Pluck("status", statuses)
}

func lockLot(tx *gorm.DB, lotID int) (*models.ParkingLot, error) {
	var lot models.ParkingLot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, lotID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("parking lot %d not found", lotID)
		}
		return nil, fmt.Errorf("failed to get parking lot %d: %w", lotID, err)
	}
	return &lot, nil
}

// resizeTx 以實際車位列數為準調整到 newCount，並同步寫回 number_of_spots
func (r *LotRegistry) resizeTx(tx *gorm.DB, lot *models.ParkingLot, newCount int) error {
	var current int64
	if err := tx.Model(&models.ParkingSpot{}).Where("lot_id = ?", lot.ID).Count(&current).Error; err != nil {
		return fmt.Errorf("failed to count spots of lot %d: %w", lot.ID, err)
	}

	switch {
	case int64(newCount) > current:
		if err := r.createSpotsTx(tx, lot, newCount-int(current)); err != nil {
			return err
		}
	case int64(newCount) < current:
		if err := removeSpotsTx(tx, lot.ID, int(current)-newCount); err != nil {
			return err
		}
	}

	if err := tx.Model(lot).Update("number_of_spots", newCount).Error; err != nil {
		return fmt.Errorf("failed to update spot count of lot %d: %w", lot.ID, err)
	}
	lot.NumberOfSpots = newCount
	return nil
}

// createSpotsTx 編號接續已發出的最大編號，刪除過的編號不再使用
func (r *LotRegistry) createSpotsTx(tx *gorm.DB, lot *models.ParkingLot, n int) error {
	var maxIndex int
	if err := tx.Model(&models.ParkingSpot{}).
		Select("COALESCE(MAX(spot_index), 0)").
		Where("lot_id = ?", lot.ID).
		Scan(&maxIndex).Error; err != nil {
		return fmt.Errorf("failed to get max spot index of lot %d: %w", lot.ID, err)
	}
	next := lot.LastSpotIndex
	if maxIndex > next {
		next = maxIndex
	}

	spots := make([]models.ParkingSpot, n)
	for i := range spots {
		index := next + i + 1
		spots[i] = models.ParkingSpot{
			LotID:      lot.ID,
			SpotIndex:  index,
			SpotNumber: fmt.Sprintf("%s%d", r.spotPrefix, index),
			Status:     models.SpotAvailable,
		}
	}
	if err := tx.CreateInBatches(&spots, 100).Error; err != nil {
		if isDuplicateKey(err) {
			return conflictf("spot label already exists in lot %d", lot.ID)
		}
		return fmt.Errorf("failed to create spots for lot %d: %w", lot.ID, err)
	}

	lastIndex := next + n
	if err := tx.Model(lot).Update("last_spot_index", lastIndex).Error; err != nil {
		return fmt.Errorf("failed to update last spot index of lot %d: %w", lot.ID, err)
	}
	lot.LastSpotIndex = lastIndex
	return nil
}

// removeSpotsTx 從 id 最大的空位開始刪除；空位不足時整筆失敗
func removeSpotsTx(tx *gorm.DB, lotID int, n int) error {
	var ids []int
	if err := tx.Model(&models.ParkingSpot{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lot_id = ? AND status = ?", lotID, models.SpotAvailable).
		Order("id DESC").
		Limit(n).
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to select removable spots of lot %d: %w", lotID, err)
	}
	if len(ids) < n {
		return conflictf("cannot reduce spots: some are occupied")
	}

	if err := tx.Where("spot_id IN ?", ids).Delete(&models.Reservation{}).Error; err != nil {
		return fmt.Errorf("failed to delete reservations of removed spots: %w", err)
	}
	result := tx.Where("id IN ? AND status = ?", ids, models.SpotAvailable).Delete(&models.ParkingSpot{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete spots of lot %d: %w", lotID, result.Error)
	}
	if result.RowsAffected != int64(len(ids)) {
		return conflictf("cannot reduce spots: some are occupied")
	}
	return nil
}
