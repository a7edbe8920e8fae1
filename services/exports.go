package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vparking/metrics"
	"vparking/models"
)

var exportHeader = []string{
	"reservation_id", "spot_id", "lot_id",
	"parking_timestamp", "leaving_timestamp",
	"parking_cost", "vehicle_number", "remarks",
}

// 未被認領的 pending 工作會被定期重新排入佇列
const exportSweepInterval = 30 * time.Second

// ExportQueue CSV 匯出工作佇列；工作狀態存在資料庫，重啟後可恢復
type ExportQueue struct {
	db     *gorm.DB
	ledger *ReservationLedger
	dir    string
	jobs   chan string
}

func NewExportQueue(db *gorm.DB, ledger *ReservationLedger, dir string, buffer int) *ExportQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &ExportQueue{
		db:     db,
		ledger: ledger,
		dir:    dir,
		jobs:   make(chan string, buffer),
	}
}

// Submit 建立 pending 工作並回傳查詢用的 token
func (q *ExportQueue) Submit(ctx context.Context, userID int) (*models.ExportJob, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if count == 0 {
		return nil, notFoundf("user %d not found", userID)
	}

	job := models.ExportJob{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: models.ExportPending,
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		log.Printf("Failed to create export job for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to create export job: %w", err)
	}

	q.enqueue(job.ID)
	log.Printf("Export job %s submitted for user %d", job.ID, userID)
	return &job, nil
}

func (q *ExportQueue) enqueue(id string) {
	select {
	case q.jobs <- id:
	default:
		log.Printf("Export queue is full, job %s stays pending until the next sweep", id)
	}
}

// Status 未知 token 回傳 NotFound
func (q *ExportQueue) Status(ctx context.Context, token string) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := q.db.WithContext(ctx).Where("id = ?", token).First(&job).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundf("export job %s not found", token)
		}
		return nil, fmt.Errorf("failed to get export job %s: %w", token, err)
	}
	return &job, nil
}

// Download 只有成功的工作可以下載
func (q *ExportQueue) Download(ctx context.Context, token string) (*models.ExportJob, error) {
	job, err := q.Status(ctx, token)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportSuccess {
		return nil, conflictf("export job %s is %s", token, job.Status)
	}
	return job, nil
}

// Recover 啟動時呼叫：清除上次中斷時的認領，並重新排入所有 pending 工作
func (q *ExportQueue) Recover(ctx context.Context) (int, error) {
	if err := q.db.WithContext(ctx).Model(&models.ExportJob{}).
		Where("status = ? AND started_at IS NOT NULL", models.ExportPending).
		Update("started_at", nil).Error; err != nil {
		return 0, fmt.Errorf("failed to reset interrupted export jobs: %w", err)
	}
	n, err := q.enqueuePending(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("Recovered %d pending export jobs", n)
	return n, nil
}

func (q *ExportQueue) enqueuePending(ctx context.Context) (int, error) {
	var ids []string
	if err := q.db.WithContext(ctx).Model(&models.ExportJob{}).
		Where("status = ? AND started_at IS NULL", models.ExportPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list pending export jobs: %w", err)
	}
	for _, id := range ids {
		q.enqueue(id)
	}
	return len(ids), nil
}

// Run 啟動 workers 個背景 worker，ctx 取消後等待全部結束才返回
func (q *ExportQueue) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		log.Printf("Failed to create export dir %s: %v", q.dir, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.jobs:
					if err := q.ProcessJob(ctx, id); err != nil {
						log.Printf("Export worker %d: job %s: %v", worker, id, err)
					}
				}
			}
		}(i + 1)
	}

	ticker := time.NewTicker(exportSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Println("Export workers stopped")
			return
		case <-ticker.C:
			if _, err := q.enqueuePending(ctx); err != nil {
				log.Printf("Failed to sweep pending export jobs: %v", err)
			}
		}
	}
}

// ProcessJob 認領並執行一個工作；已被其他 worker 認領或已完成的工作直接略過
func (q *ExportQueue) ProcessJob(ctx context.Context, id string) error {
	db := q.db.WithContext(ctx)

	now := time.Now().UTC()
	claim := db.Model(&models.ExportJob{}).
		Where("id = ? AND status = ? AND started_at IS NULL", id, models.ExportPending).
		Update("started_at", now)
	if claim.Error != nil {
		return fmt.Errorf("failed to claim export job: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	var job models.ExportJob
	if err := db.Where("id = ?", id).First(&job).Error; err != nil {
		return fmt.Errorf("failed to load export job: %w", err)
	}

	fileName, filePath, err := q.writeCSV(ctx, job.UserID, now)
	finished := time.Now().UTC()
	updates := map[string]interface{}{"finished_at": finished}
	if err != nil {
		log.Printf("Export job %s failed: %v", id, err)
		updates["status"] = models.ExportFailure
		updates["error"] = err.Error()
		metrics.ExportJobs.WithLabelValues(models.ExportFailure).Inc()
	} else {
		log.Printf("Export job %s finished: %s", id, filePath)
		updates["status"] = models.ExportSuccess
		updates["file_name"] = fileName
		updates["file_path"] = filePath
		metrics.ExportJobs.WithLabelValues(models.ExportSuccess).Inc()
	}

	if err := db.Model(&models.ExportJob{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to save export job result: %w", err)
	}
	return nil
}

// writeCSV 先寫入暫存檔，成功後才改名；失敗時移除暫存檔
func (q *ExportQueue) writeCSV(ctx context.Context, userID int, at time.Time) (fileName, filePath string, err error) {
	reservations, err := q.ledger.ListForUser(ctx, userID)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create export dir: %w", err)
	}
	fileName = fmt.Sprintf("user_%d_parking_%s.csv", userID, at.Format("20060102150405"))
	filePath = filepath.Join(q.dir, fileName)
	tmpPath := filePath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create export file: %w", err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			f.Close()
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("Failed to remove partial export file %s: %v", tmpPath, rmErr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return "", "", fmt.Errorf("failed to write export header: %w", err)
	}
	for _, r := range reservations {
		record := []string{
			strconv.Itoa(r.ID),
			strconv.Itoa(r.SpotID),
			strconv.Itoa(r.LotID),
			r.ParkedAt.UTC().Format(time.RFC3339),
			"",
			"",
			r.VehicleNumber,
			r.Remarks,
		}
		if r.LeftAt != nil {
			record[4] = r.LeftAt.UTC().Format(time.RFC3339)
			record[5] = strconv.FormatFloat(r.Cost, 'f', 2, 64)
		}
		if err := w.Write(record); err != nil {
			return "", "", fmt.Errorf("failed to write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", "", fmt.Errorf("failed to flush export file: %w", err)
	}

	closed = true
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return "", "", fmt.Errorf("failed to move export file into place: %w", err)
	}
	return fileName, filePath, nil
}
