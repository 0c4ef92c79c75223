package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/config"
	"github.com/angelshop/reservation-api/internal/database"
	"github.com/angelshop/reservation-api/internal/handler"
	"github.com/angelshop/reservation-api/internal/queue"
	"github.com/angelshop/reservation-api/internal/repository"
	"github.com/angelshop/reservation-api/internal/router"
	"github.com/angelshop/reservation-api/internal/service"
	"github.com/angelshop/reservation-api/internal/ws"
)

func main() {
	// Missing .env is fine; production sets real environment variables.
	_ = godotenv.Load()
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reservation-api").Logger()
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	db, err := database.Open(database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open database failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when Redis is absent; features degrade

	// Repositories.
	products := repository.NewProductRepo(db)
	variants := repository.NewVariantRepo(db)
	reservations := repository.NewReservationRepo(db)
	otps := repository.NewOtpRepo(db)
	admins := repository.NewAdminUserRepo(db)

	// Realtime hub feeding admin dashboards.
	hub := ws.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	// Notifications are optional: without a broker the engine runs with
	// the no-op notifier and OTP codes go to the log.
	var notifier service.Notifier
	var mailer *queue.Publisher
	if cfg.AMQPURL != "" {
		mailer = queue.NewPublisher(cfg.AMQPURL, log)
		notifier = mailer
		go queue.StartNotificationConsumer(cfg.AMQPURL, log)
	}

	// Services.
	inventory := service.NewInventoryService(products, variants, log)
	lifecycle := service.NewReservationService(reservations, inventory, notifier, hub, cfg.ReservationTTL, log)

	sweeper := service.NewSweeper(reservations, lifecycle, cfg.SweepInterval, cfg.SweepBatchSize, cfg.SweepItemTimeout, log)
	sweeper.Start()
	defer sweeper.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, cfg, router.Handlers{
		Health:       handler.NewHealthHandler(db),
		Auth:         handler.NewAuthHandler(cfg, otps, admins, mailer, log),
		Catalog:      handler.NewCatalogHandler(products),
		Reservations: handler.NewReservationHandler(reservations, lifecycle),
		Admin:        handler.NewAdminHandler(products, variants, reservations, lifecycle, hub, log),
		WS:           handler.NewWSHandler(hub, cfg.JWTAdminSecret),
	}, rdb)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
