package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vparking/config"
	"vparking/database"
	"vparking/handlers"
	"vparking/live"
	"vparking/models"
	"vparking/routes"
	"vparking/services"
	"vparking/utils"
)

type apiEnv struct {
	router  *gin.Engine
	users   *services.UserDirectory
	exports *services.ExportQueue
	admin   string
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.InitJWTSecret("test-secret")

	db, err := database.Open(&config.Config{
		DBDriver:     "sqlite",
		DBSqlitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		GinMode:      "release",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	hub := live.NewHub()
	users := services.NewUserDirectory(db)
	spots := services.NewSpotPool(db, nil)
	ledger := services.NewReservationLedger(db, nil, hub, spots)
	exports := services.NewExportQueue(db, ledger, t.TempDir(), 8)

	admin, err := users.EnsureAdmin(context.Background(), "admin@parking.local", "admin1234")
	require.NoError(t, err)
	adminToken, err := utils.GenerateToken(admin.ID, models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	router := routes.NewRouter(&handlers.Handler{
		Users:        users,
		Lots:         services.NewLotRegistry(db, nil, hub, "S"),
		Spots:        spots,
		Reservations: ledger,
		Reports:      services.NewReports(db, nil),
		Exports:      exports,
		Hub:          hub,
		TokenTTL:     time.Hour,
	})
	return &apiEnv{router: router, users: users, exports: exports, admin: adminToken}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

// signUp 註冊並登入，回傳使用者 ID 與 token
func (e *apiEnv) signUp(t *testing.T, name string) (int, string) {
	t.Helper()
	w, _ := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": name,
		"email":    name + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, resp := e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    name + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string              `json:"token"`
		User  models.UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.User.ID, data.Token
}

func (e *apiEnv) createLot(t *testing.T, spots int) int {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/api/v1/lots", e.admin, gin.H{
		"prime_location_name": "Central",
		"address":             "1 Main Road",
		"pin_code":            "560001",
		"price_per_hour":      10,
		"number_of_spots":     spots,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var lot models.ParkingLotResponse
	require.NoError(t, json.Unmarshal(resp.Data, &lot))
	return lot.ID
}

func TestPing(t *testing.T) {
	env := newAPIEnv(t)
	w, _ := env.do(t, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	w, _ := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	env := newAPIEnv(t)

	w, resp := env.do(t, http.MethodGet, "/api/v1/lots", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "ERR_NO_AUTH_HEADER", resp.Code)

	expired, err := utils.GenerateToken(1, models.RoleUser, -time.Minute)
	require.NoError(t, err)
	w, resp = env.do(t, http.MethodGet, "/api/v1/lots", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "ERR_TOKEN_EXPIRED", resp.Code)

	w, resp = env.do(t, http.MethodGet, "/api/v1/lots", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "ERR_INVALID_TOKEN", resp.Code)

	unknownRole, err := utils.GenerateToken(1, "renter", time.Hour)
	require.NoError(t, err)
	w, resp = env.do(t, http.MethodGet, "/api/v1/lots", unknownRole, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "ERR_INVALID_ROLE", resp.Code)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.signUp(t, "alice")

	w, _ := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "bob", "email": "not-an-email", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/v1/auth/check-email?email=alice@example.com", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists":true}`, string(resp.Data))
}

func TestLotMutationsRequireAdmin(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.signUp(t, "alice")

	w, resp := env.do(t, http.MethodPost, "/api/v1/lots", token, gin.H{
		"prime_location_name": "Mine", "address": "a", "pin_code": "1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ERR_INSUFFICIENT_PERMISSIONS", resp.Code)

	lotID := env.createLot(t, 2)
	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/lots/%d", lotID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/lots/999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/lots/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/lots/%d/spots", lotID), env.admin, gin.H{"number_of_spots": 5})
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/lots/%d/spots", lotID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var spots models.LotSpotsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &spots))
	assert.Len(t, spots.Spots, 5)

	w, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/lots/%d/spots", lotID), env.admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReserveAndReleaseFlow(t *testing.T) {
	env := newAPIEnv(t)
	aliceID, alice := env.signUp(t, "alice")
	_, bob := env.signUp(t, "bob")
	lotID := env.createLot(t, 1)

	w, resp := env.do(t, http.MethodPost, "/api/v1/reservations", alice, gin.H{
		"lot_id": lotID, "vehicle_number": "KA01AA1111",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reserved services.ReserveResult
	require.NoError(t, json.Unmarshal(resp.Data, &reserved))
	assert.Equal(t, "S1", reserved.SpotNumber)

	w, resp = env.do(t, http.MethodPost, "/api/v1/reservations", bob, gin.H{
		"lot_id": lotID, "vehicle_number": "KA02",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no available spots", resp.Error)

	// bob 不能結算別人的預約，也不能代別人預約
	release := fmt.Sprintf("/api/v1/reservations/%d/release", reserved.ReservationID)
	w, _ = env.do(t, http.MethodPost, release, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/v1/reservations", bob, gin.H{
		"lot_id": lotID, "vehicle_number": "KA02", "user_id": aliceID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = env.do(t, http.MethodPost, release, alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first services.FinalizeResult
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.False(t, first.AlreadyFinalized)
	assert.WithinDuration(t, time.Now(), first.LeftAt, time.Minute)

	w, resp = env.do(t, http.MethodPost, release, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var second services.FinalizeResult
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.True(t, second.AlreadyFinalized)
	assert.True(t, first.LeftAt.Equal(second.LeftAt))
	assert.Equal(t, first.Cost, second.Cost)

	w, _ = env.do(t, http.MethodPost, "/api/v1/reservations/999/release", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// 離場時間一律由伺服器決定，客戶端帶的時間不影響計費
func TestReleaseIgnoresClientLeavingTimestamp(t *testing.T) {
	env := newAPIEnv(t)
	_, alice := env.signUp(t, "alice")
	lotID := env.createLot(t, 1)

	w, resp := env.do(t, http.MethodPost, "/api/v1/reservations", alice, gin.H{
		"lot_id": lotID, "vehicle_number": "KA01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reserved services.ReserveResult
	require.NoError(t, json.Unmarshal(resp.Data, &reserved))

	release := fmt.Sprintf("/api/v1/reservations/%d/release", reserved.ReservationID)
	w, resp = env.do(t, http.MethodPost, release, alice, gin.H{
		"leaving_timestamp": reserved.ParkedAt.Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var finalized services.FinalizeResult
	require.NoError(t, json.Unmarshal(resp.Data, &finalized))

	assert.WithinDuration(t, time.Now(), finalized.LeftAt, time.Minute)
	assert.Less(t, finalized.Cost, 1.0)
}

func TestAdminCanReserveForAnotherUser(t *testing.T) {
	env := newAPIEnv(t)
	aliceID, alice := env.signUp(t, "alice")
	lotID := env.createLot(t, 1)

	w, _ := env.do(t, http.MethodPost, "/api/v1/reservations", env.admin, gin.H{
		"lot_id": lotID, "vehicle_number": "KA01", "user_id": aliceID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/reservations", aliceID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reservations []models.ReservationResponse
	require.NoError(t, json.Unmarshal(resp.Data, &reservations))
	require.Len(t, reservations, 1)
	assert.Equal(t, aliceID, reservations[0].UserID)
}

func TestSelfOrAdminGuard(t *testing.T) {
	env := newAPIEnv(t)
	aliceID, _ := env.signUp(t, "alice")
	_, bob := env.signUp(t, "bob")

	for _, path := range []string{
		fmt.Sprintf("/api/v1/users/%d/reservations", aliceID),
		fmt.Sprintf("/api/v1/users/%d/charts", aliceID),
	} {
		w, _ := env.do(t, http.MethodGet, path, bob, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)

		w, _ = env.do(t, http.MethodGet, path, env.admin, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, _ := env.do(t, http.MethodGet, "/api/v1/users/999/charts", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	env := newAPIEnv(t)
	_, alice := env.signUp(t, "alice")
	env.createLot(t, 3)

	for _, path := range []string{
		"/api/v1/admin/dashboard",
		"/api/v1/admin/reservations",
		"/api/v1/admin/users",
		"/api/v1/charts",
	} {
		w, _ := env.do(t, http.MethodGet, path, alice, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)

		w, _ = env.do(t, http.MethodGet, path, env.admin, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, resp := env.do(t, http.MethodGet, "/api/v1/admin/dashboard", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.DashboardSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, int64(1), summary.Lots)
}

func TestExportFlow(t *testing.T) {
	env := newAPIEnv(t)
	aliceID, alice := env.signUp(t, "alice")
	_, bob := env.signUp(t, "bob")

	w, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/exports", aliceID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/exports", aliceID), alice, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var job models.ExportJob
	require.NoError(t, json.Unmarshal(resp.Data, &job))
	require.NotEmpty(t, job.ID)

	status := "/api/v1/exports/" + job.ID
	w, _ = env.do(t, http.MethodGet, status+"/download", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = env.do(t, http.MethodGet, status, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, env.exports.ProcessJob(context.Background(), job.ID))

	w, resp = env.do(t, http.MethodGet, status, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &job))
	assert.Equal(t, models.ExportSuccess, job.Status)

	w, _ = env.do(t, http.MethodGet, status+"/download", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), job.FileName)
	assert.Contains(t, w.Body.String(), "reservation_id,spot_id,lot_id")

	w, _ = env.do(t, http.MethodGet, "/api/v1/exports/unknown", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
