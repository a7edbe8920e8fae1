package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"vparking/cache"
	"vparking/models"
)

// Reports 儀表板與圖表統計，結果經由讀取視圖快取
type Reports struct {
	db    *gorm.DB
	views *cache.ReadViews
}

func NewReports(db *gorm.DB, views *cache.ReadViews) *Reports {
	return &Reports{db: db, views: views}
}

func (r *Reports) DashboardSummary(ctx context.Context) (models.DashboardSummary, error) {
	return cache.Fetch(r.views, cache.DashboardKey(), func() (models.DashboardSummary, error) {
		db := r.db.WithContext(ctx)
		var summary models.DashboardSummary

		counts := []struct {
			name  string
			query *gorm.DB
			dest  *int64
		}{
			{"lots", db.Model(&models.ParkingLot{}), &summary.Lots},
			{"spots", db.Model(&models.ParkingSpot{}), &summary.Spots},
			{"occupied spots", db.Model(&models.ParkingSpot{}).Where("status = ?", models.SpotOccupied), &summary.OccupiedSpots},
			{"users", db.Model(&models.User{}), &summary.Users},
			{"active reservations", db.Model(&models.Reservation{}).Where("leaving_timestamp IS NULL"), &summary.ActiveReservations},
		}
		for _, c := range counts {
			if err := c.query.Count(c.dest).Error; err != nil {
				return models.DashboardSummary{}, fmt.Errorf("failed to count %s: %w", c.name, err)
			}
		}
		return summary, nil
	})
}

func (r *Reports) ChartData(ctx context.Context) (models.ChartData, error) {
	return cache.Fetch(r.views, cache.ChartsKey(), func() (models.ChartData, error) {
		db := r.db.WithContext(ctx)

		byLot, err := occupancyByLot(db)
		if err != nil {
			return models.ChartData{}, err
		}

		// 以 Go 分組，避免各資料庫日期函式不同
		var timestamps []time.Time
		if err := db.Model(&models.Reservation{}).Pluck("parking_timestamp", &timestamps).Error; err != nil {
			return models.ChartData{}, fmt.Errorf("failed to load reservation timestamps: %w", err)
		}
		perMonth := make(map[string]int)
		for _, ts := range timestamps {
			perMonth[ts.UTC().Format("2006-01")]++
		}
		monthly := make([]models.MonthlyCount, 0, len(perMonth))
		for month, count := range perMonth {
			monthly = append(monthly, models.MonthlyCount{Month: month, Count: count})
		}
		sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month < monthly[j].Month })

		return models.ChartData{SpotsByLot: byLot, MonthlyReservations: monthly}, nil
	})
}

func (r *Reports) UserChartData(ctx context.Context, userID int) (models.UserChartData, error) {
	return cache.Fetch(r.views, cache.UserChartsKey(userID), func() (models.UserChartData, error) {
		db := r.db.WithContext(ctx)

		var count int64
		if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return models.UserChartData{}, fmt.Errorf("failed to check user %d: %w", userID, err)
		}
		if count == 0 {
			return models.UserChartData{}, notFoundf("user %d not found", userID)
		}

		byLot, err := occupancyByLot(db)
		if err != nil {
			return models.UserChartData{}, err
		}

		var booked []struct {
			LotID int
			Total int
		}
		if err := db.Model(&models.Reservation{}).
			Select("parking_spots.lot_id AS lot_id, COUNT(*) AS total").
			Joins("JOIN parking_spots ON parking_spots.id = reservations.spot_id").
			Where("reservations.user_id = ?", userID).
			Group("parking_spots.lot_id").
			Scan(&booked).Error; err != nil {
			return models.UserChartData{}, fmt.Errorf("failed to count reservations of user %d: %w", userID, err)
		}
		bookedByLot := make(map[int]int, len(booked))
		for _, b := range booked {
			bookedByLot[b.LotID] = b.Total
		}

		usage := make([]models.UserLotUsage, len(byLot))
		for i, lot := range byLot {
			usage[i] = models.UserLotUsage{
				LotID:      lot.LotID,
				LotName:    lot.LotName,
				TotalSpots: lot.TotalSpots,
				UserBooked: bookedByLot[lot.LotID],
			}
		}
		return models.UserChartData{UserID: userID, SpotsByLot: usage}, nil
	})
}

// occupancyByLot 每個停車場的車位總數與佔用數，依 id 排序
func occupancyByLot(db *gorm.DB) ([]models.LotOccupancy, error) {
	var lots []models.ParkingLot
	if err := db.Select("id", "prime_location_name").Order("id ASC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to list parking lots: %w", err)
	}

	var rows []struct {
		LotID  int
		Status string
		Total  int
	}
	if err := db.Model(&models.ParkingSpot{}).
		Select("lot_id, status, COUNT(*) AS total").
		Group("lot_id, status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count spots by lot: %w", err)
	}

	index := make(map[int]*models.LotOccupancy, len(lots))
	result := make([]models.LotOccupancy, len(lots))
	for i, lot := range lots {
		result[i] = models.LotOccupancy{LotID: lot.ID, LotName: lot.Name}
		index[lot.ID] = &result[i]
	}
	for _, row := range rows {
		occ, ok := index[row.LotID]
		if !ok {
			continue
		}
		switch row.Status {
		case models.SpotAvailable:
			occ.Available += row.Total
		case models.SpotOccupied:
			occ.Occupied += row.Total
		}
		occ.TotalSpots += row.Total
	}
	return result, nil
}
