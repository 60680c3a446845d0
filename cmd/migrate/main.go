package main

import (
	"log"
	"os"
	"strconv"

	"oncare-chatbot-be/internal/model"
	"oncare-chatbot-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, database.DefaultPoolConfig(), os.Getenv("DB_LOG_LEVEL"))
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	m := envInt("HNSW_M", 16)
	efConstruction := envInt("HNSW_EF_CONSTRUCTION", 64)

	log.Printf("Starting GORM Migration (hnsw m=%d, ef_construction=%d)...", m, efConstruction)
	if err := model.Migrate(db, m, efConstruction); err != nil {
		log.Fatalf("Error: Migration failed: %v", err)
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
