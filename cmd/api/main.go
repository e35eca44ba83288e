package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agoramarket/agora/internal/api"
	"github.com/agoramarket/agora/internal/chain"
	"github.com/agoramarket/agora/internal/config"
	"github.com/agoramarket/agora/internal/db"
	"github.com/agoramarket/agora/internal/job"
	"github.com/agoramarket/agora/internal/notify"
	"github.com/agoramarket/agora/internal/store"
	"github.com/agoramarket/agora/internal/x402"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	db.EnsureSchema(ctx, pool)

	st := store.NewPostgres(pool)
	verifier := chain.NewRPCVerifier(cfg.ChainRPC)
	notifier := notify.New(cfg.RedisAddr, st)
	defer notifier.Close()

	engine := job.NewEngine(st, notifier)
	registry := x402.NewRegistry(st, verifier, engine)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	api.New(st, engine, registry).Register(e)

	log.Printf("Agora API listening on :%s", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
