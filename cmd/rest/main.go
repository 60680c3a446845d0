package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"oncare-chatbot-be/internal/bootstrap"
	"oncare-chatbot-be/internal/config"
	"oncare-chatbot-be/internal/server"
	"oncare-chatbot-be/internal/tracer"
	"oncare-chatbot-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig(), cfg.Database.LogLevel)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start Background Services
	go container.WebSocketHub.Run(ctx)

	go func() {
		log.Println("Background: Starting Consumer Service...")
		if err := container.ConsumerService.Consume(ctx); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	if container.DocumentEventService != nil {
		if err := container.DocumentEventService.Start(ctx); err != nil {
			log.Printf("[WARN] Document events disabled: %v", err)
		}
	}

	if err := container.Guardrail.Watch(ctx); err != nil {
		log.Printf("[WARN] Guardrail hot reload disabled: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
