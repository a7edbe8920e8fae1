package services

import (
	"context"
	"log"

	"gorm.io/gorm"

	"vparking/cache"
	"vparking/models"
)

// OccupancyPublisher 接收交易提交後的車位佔用快照
type OccupancyPublisher interface {
	PublishOccupancy(update models.LotOccupancy)
}

type nopPublisher struct{}

func (nopPublisher) PublishOccupancy(models.LotOccupancy) {}

// lotChanges 共用的交易後處理：清快取並推播佔用狀況
type lotChanges struct {
	db        *gorm.DB
	views     *cache.ReadViews
	publisher OccupancyPublisher
}

func newLotChanges(db *gorm.DB, views *cache.ReadViews, publisher OccupancyPublisher) lotChanges {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return lotChanges{db: db, views: views, publisher: publisher}
}

// committed 必須在交易提交之後呼叫
func (c lotChanges) committed(ctx context.Context, lotID int) {
	c.views.InvalidateLot(lotID)

	occupancy, err := lotOccupancy(c.db.WithContext(ctx), lotID)
	if err != nil {
		log.Printf("Failed to compute occupancy for lot %d: %v", lotID, err)
		return
	}
	c.publisher.PublishOccupancy(occupancy)
}

// lotOccupancy 已刪除的停車場回報 0 個車位
func lotOccupancy(db *gorm.DB, lotID int) (models.LotOccupancy, error) {
	occupancy := models.LotOccupancy{LotID: lotID}

	var lot models.ParkingLot
	err := db.Select("id", "prime_location_name").First(&lot, lotID).Error
	if err != nil && !isRecordNotFound(err) {
		return occupancy, err
	}
	occupancy.LotName = lot.Name

	var rows []struct {
		Status string
		Total  int
	}
	if err := db.Model(&models.ParkingSpot{}).
		Select("status, COUNT(*) AS total").
		Where("lot_id = ?", lotID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return occupancy, err
	}
	for _, row := range rows {
		switch row.Status {
		case models.SpotAvailable:
			occupancy.Available = row.Total
		case models.SpotOccupied:
			occupancy.Occupied = row.Total
		}
		occupancy.TotalSpots += row.Total
	}
	return occupancy, nil
}
