package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vparking/cache"
	"vparking/config"
	"vparking/database"
	"vparking/models"
	"vparking/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DBDriver:     "sqlite",
		DBSqlitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		GinMode:      "release",
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fakePublisher struct {
	mu      sync.Mutex
	updates []models.LotOccupancy
}

func (p *fakePublisher) PublishOccupancy(update models.LotOccupancy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
}

func (p *fakePublisher) last() (models.LotOccupancy, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return models.LotOccupancy{}, false
	}
	return p.updates[len(p.updates)-1], true
}

type testEnv struct {
	db      *gorm.DB
	views   *cache.ReadViews
	pub     *fakePublisher
	lots    *services.LotRegistry
	spots   *services.SpotPool
	ledger  *services.ReservationLedger
	reports *services.Reports
	users   *services.UserDirectory
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWithViews(t, nil)
}

func newCachedEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	views, err := cache.New(ctx, cache.DefaultTTLs())
	require.NoError(t, err)
	t.Cleanup(func() {
		views.Close()
		cancel()
	})
	return newEnvWithViews(t, views)
}

func newEnvWithViews(t *testing.T, views *cache.ReadViews) *testEnv {
	t.Helper()
	db := newTestDB(t)
	pub := &fakePublisher{}
	spots := services.NewSpotPool(db, views)
	return &testEnv{
		db:      db,
		views:   views,
		pub:     pub,
		lots:    services.NewLotRegistry(db, views, pub, "S"),
		spots:   spots,
		ledger:  services.NewReservationLedger(db, views, pub, spots),
		reports: services.NewReports(db, views),
		users:   services.NewUserDirectory(db),
	}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), name, name+"@example.com", "password")
	require.NoError(t, err)
	return user
}

func (e *testEnv) createLot(t *testing.T, name string, spots int, price float64) *models.ParkingLotResponse {
	t.Helper()
	lot, err := e.lots.CreateLot(context.Background(), models.CreateParkingLotRequest{
		Name:          name,
		Address:       "1 Main Road",
		PinCode:       "560001",
		PricePerHour:  price,
		NumberOfSpots: spots,
	})
	require.NoError(t, err)
	return lot
}

func (e *testEnv) spotsOf(t *testing.T, lotID int) []models.ParkingSpot {
	t.Helper()
	var spots []models.ParkingSpot
	require.NoError(t, e.db.Where("lot_id = ?", lotID).Order("id ASC").Find(&spots).Error)
	return spots
}

func (e *testEnv) spotByLabel(t *testing.T, lotID int, label string) models.ParkingSpot {
	t.Helper()
	var spot models.ParkingSpot
	require.NoError(t, e.db.Where("lot_id = ? AND spot_number = ?", lotID, label).First(&spot).Error)
	return spot
}

// requireOccupancyMirrorsReservations 車位佔用 <=> 存在進行中的預約，且每個車位最多一筆
func (e *testEnv) requireOccupancyMirrorsReservations(t *testing.T) {
	t.Helper()
	var spots []models.ParkingSpot
	require.NoError(t, e.db.Find(&spots).Error)
	for _, spot := range spots {
		var active int64
		require.NoError(t, e.db.Model(&models.Reservation{}).
			Where("spot_id = ? AND leaving_timestamp IS NULL", spot.ID).
			Count(&active).Error)
		require.LessOrEqual(t, active, int64(1), "spot %s has more than one active reservation", spot.SpotNumber)
		if spot.Status == models.SpotOccupied {
			require.Equal(t, int64(1), active, "occupied spot %s has no active reservation", spot.SpotNumber)
		} else {
			require.Equal(t, int64(0), active, "available spot %s has an active reservation", spot.SpotNumber)
		}
	}
}
