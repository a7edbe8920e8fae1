package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"vparking/cache"
	"vparking/config"
	"vparking/database"
	"vparking/handlers"
	"vparking/live"
	"vparking/mailer"
	"vparking/routes"
	"vparking/services"
	"vparking/utils"
)

func main() {
	// 載入 .env 與環境變數
	cfg := config.Load()

	// 初始化 JWTSecret
	utils.InitJWTSecret(cfg.JWTSecret)

	// 初始化資料庫並執行遷移
	database.InitDB(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users := services.NewUserDirectory(database.DB)
	// 確保預設管理員存在
	if _, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to ensure admin: %v", err)
	}

	var views *cache.ReadViews
	if cfg.CacheEnabled {
		var err error
		views, err = cache.New(ctx, cache.TTLs{
			Lots:   cfg.CacheTTLLots,
			Spots:  cfg.CacheTTLSpots,
			Charts: cfg.CacheTTLChart,
		})
		if err != nil {
			log.Fatalf("Failed to initialize read-view cache: %v", err)
		}
		defer views.Close()
		log.Println("Read-view cache enabled")
	}

	hub := live.NewHub()
	go hub.Run(ctx)

	spots := services.NewSpotPool(database.DB, views)
	lots := services.NewLotRegistry(database.DB, views, hub, cfg.SpotPrefix)
	ledger := services.NewReservationLedger(database.DB, views, hub, spots)
	reports := services.NewReports(database.DB, views)
	exports := services.NewExportQueue(database.DB, ledger, cfg.ExportDir, 0)
	notifier := services.NewNotifier(users, ledger, mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom))

	// 匯出 worker：先恢復上次中斷的工作
	exportsDone := make(chan struct{})
	go func() {
		exports.Run(ctx, cfg.ExportWorkers)
		close(exportsDone)
	}()
	if _, err := exports.Recover(ctx); err != nil {
		log.Printf("Failed to recover export jobs: %v", err)
	}

	// 啟動定時任務
	c := cron.New()
	_, err := c.AddFunc(cfg.ReminderCron, func() {
		log.Println("Sending daily parking reminders...")
		if _, err := notifier.SendDailyReminders(ctx, time.Now()); err != nil {
			log.Printf("Failed to send daily reminders: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily reminder cron job: %v", err)
	}
	_, err = c.AddFunc(cfg.MonthlyReportCron, func() {
		log.Println("Sending monthly parking reports...")
		if _, err := notifier.SendMonthlyReports(ctx, time.Now()); err != nil {
			log.Printf("Failed to send monthly reports: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule monthly report cron job: %v", err)
	}
	c.Start()
	log.Println("Cron jobs started")

	gin.SetMode(cfg.GinMode)
	log.Printf("Gin mode set to %s", cfg.GinMode)

	router := routes.NewRouter(&handlers.Handler{
		Users:        users,
		Lots:         lots,
		Spots:        spots,
		Reservations: ledger,
		Reports:      reports,
		Exports:      exports,
		Hub:          hub,
		TokenTTL:     cfg.JWTExpiration,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	<-c.Stop().Done()
	<-exportsDone
	log.Println("Server stopped")
}
