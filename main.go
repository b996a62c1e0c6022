package main

import (
	"github.com/tavern-games/gamesync/config"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/monitor"
	"github.com/tavern-games/gamesync/persistence"
	"github.com/tavern-games/gamesync/relay"
	"github.com/tavern-games/gamesync/rpc"
	"github.com/tavern-games/gamesync/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
		cfg.Game.StartingCoins,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Info("Database connection successful.")

	// Room directory store
	roomStore, err := persistence.NewRoomStore(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to open room directory: %v", err)
	}
	defer roomStore.Close()

	// Monitoring
	mon := monitor.NewMonitor("gamesync")
	if cfg.Monitor.Address != "" {
		mon.StartServer(cfg.Monitor.Address)
		logger.Log.Infof("Monitor listening on %s", cfg.Monitor.Address)
	}

	// Services
	rooms := services.NewRoomService(roomStore, cfg.Game)
	wallet := services.NewWalletService(db, mon)

	// Admin RPC
	if cfg.Relay.RPCAddress != "" {
		admin := rpc.NewAdminService(db, rooms, wallet)
		if err := admin.Register(); err != nil {
			logger.Log.Fatalf("Failed to register admin RPC service: %v", err)
		}
		rpcServer, err := rpc.NewServer(cfg.Relay.RPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to start RPC server: %v", err)
		}
		go rpcServer.Start()
		defer rpcServer.Stop()
	}

	// Broadcast relay
	relayServer := relay.NewServer(cfg.Relay.HTTPAddress, mon)
	logger.Log.Infof("Starting broadcast relay on %s", cfg.Relay.HTTPAddress)
	if err := relayServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start relay: %v", err)
	}
}
