package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/lab-inventory/internal/auth"
	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/database"
	"github.com/iliyamo/lab-inventory/internal/handler"
	"github.com/iliyamo/lab-inventory/internal/queue"
	"github.com/iliyamo/lab-inventory/internal/repository"
	"github.com/iliyamo/lab-inventory/internal/router"
	"github.com/iliyamo/lab-inventory/internal/service"
)

func main() {
	// .env is a dev convenience; in production the variables come from the
	// environment and the file simply does not exist.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	devices := repository.NewDeviceRepo(db)
	loans := repository.NewLoanRepo(db)
	catalog := repository.NewCatalogRepo(db)

	// Seed the reference rows the ledger and role assignment depend on.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := users.EnsureRoles(ctx); err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	if err := catalog.EnsureStatuses(ctx); err != nil {
		log.Fatalf("seed statuses: %v", err)
	}

	directory := auth.NewLDAPAuthenticator(cfg.LDAP)
	svc := service.NewInventory(cfg, directory, users, devices, loans)

	// Nil when Redis is unreachable; rate limiting and caching degrade to
	// pass-throughs in that case.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	go func() {
		if err := queue.StartLoanConsumer(); err != nil {
			log.Printf("loan consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.Register(e, cfg, rdb, router.Handlers{
		Auth:    handler.NewAuthHandler(cfg, svc),
		Device:  handler.NewDeviceHandler(svc, devices),
		Loan:    handler.NewLoanHandler(svc),
		Catalog: handler.NewCatalogHandler(catalog),
		User:    handler.NewUserHandler(svc),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
