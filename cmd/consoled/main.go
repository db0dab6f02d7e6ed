package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	v1 "fleetops/api/v1"
	"fleetops/internal/cascade"
	"fleetops/internal/config"
	"fleetops/internal/db"
	"fleetops/internal/notify"
	"fleetops/internal/store"
	"fleetops/internal/watchdog"
	"fleetops/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
			os.Exit(1)
		}
	}

	// 3. Initialize Redis for notification dispatch (optional)
	logger := logrus.NewEntry(logrus.StandardLogger())
	notifier := notify.New(nil, cfg.Notifier.Channel, logger)
	if cfg.Redis.Enabled {
		client, err := notify.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
			os.Exit(1)
		}
		defer client.Close()
		notifier = notify.New(client, cfg.Notifier.Channel, logger)
		log.Println("✓ Redis connected successfully")
	}

	// 4. Initialize the change feed
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize WebSocket server: %v", err)
		os.Exit(1)
	}
	defer ws.CloseServer()

	st := store.New(db.GetDB())
	feed := ws.NewPublisher(st)
	engine := cascade.New(st, notifier, feed, logger)

	// 5. Start the cascade watchdog
	if cfg.Watchdog.Enabled {
		worker := watchdog.NewWorker(&watchdog.Config{
			Store:       st,
			Engine:      engine,
			Logger:      logger,
			IntervalSec: cfg.Watchdog.IntervalSec,
			BatchSize:   cfg.Watchdog.BatchSize,
		})
		worker.Start()
		defer worker.Stop()
	}

	// 6. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Socket.IO endpoint
	r.GET("/socket.io/*any", gin.WrapH(ws.Server))
	r.POST("/socket.io/*any", gin.WrapH(ws.Server))

	// Setup API v1 routes
	v1.SetupRouter(r, st, engine, feed)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
